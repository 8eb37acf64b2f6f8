package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"moralduel-controlplane/pkg/config"
	"moralduel-controlplane/pkg/security"
	"moralduel-controlplane/services/cases"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type completerStub struct {
	content string
	err     error
	last    openai.ChatCompletionRequest
}

func (s *completerStub) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.last = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: s.content}},
		},
	}, nil
}

func enabled(stub *completerStub) *Service {
	return &Service{client: stub, model: "test-model", timeout: time.Second}
}

func TestNewServiceDisabledWithoutKey(t *testing.T) {
	svc := NewService(ServiceParams{Config: config.Defaults()})
	require.False(t, svc.Enabled())
}

func TestGenerateCaseTruncates(t *testing.T) {
	longTitle := strings.Repeat("t", 250)
	longContext := strings.Repeat("c", 2500)
	stub := &completerStub{content: `{"title":"` + longTitle + `","context":"` + longContext + `"}`}

	got, err := enabled(stub).GenerateCase(context.Background())
	require.NoError(t, err)
	require.Len(t, []rune(got.Title), 200)
	require.True(t, strings.HasSuffix(got.Title, "..."))
	require.Len(t, []rune(got.Context), 2000)
	require.Equal(t, "test-model", stub.last.Model)
	require.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, stub.last.ResponseFormat.Type)
}

func TestGenerateCaseRejectsShortContext(t *testing.T) {
	stub := &completerStub{content: `{"title":"Short one","context":"too short"}`}

	_, err := enabled(stub).GenerateCase(context.Background())
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestGenerateCaseInvalidJSON(t *testing.T) {
	stub := &completerStub{content: `not json`}

	_, err := enabled(stub).GenerateCase(context.Background())
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestGenerateVerdictNormalizes(t *testing.T) {
	stub := &completerStub{content: `{"verdict":" yes ","reasoning":"Because honesty matters.","confidence":1.7}`}

	got, err := enabled(stub).GenerateVerdict(context.Background(), "title", "context")
	require.NoError(t, err)
	require.Equal(t, cases.SideYes, got.Verdict)
	require.Equal(t, 0.7, got.Confidence)
}

func TestGenerateVerdictRejectsUnknownSide(t *testing.T) {
	stub := &completerStub{content: `{"verdict":"MAYBE","reasoning":"Unclear."}`}

	_, err := enabled(stub).GenerateVerdict(context.Background(), "title", "context")
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestGenerateVerdictProviderError(t *testing.T) {
	stub := &completerStub{err: errors.New("rate limited")}

	_, err := enabled(stub).GenerateVerdict(context.Background(), "title", "context")
	require.Error(t, err)
}

func TestCatalogRoundTrip(t *testing.T) {
	svc := &Service{timeout: time.Second}
	ctx := context.Background()

	c, err := svc.GenerateCase(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len([]rune(c.Context)), contextMin)

	v, err := svc.GenerateVerdict(ctx, c.Title, c.Context)
	require.NoError(t, err)
	require.NotEmpty(t, security.Commitment(string(v.Verdict), v.Reasoning))

	_, err = svc.GenerateVerdict(ctx, "Unknown title", c.Context)
	require.ErrorIs(t, err, ErrDisabled)
}

func TestModerateCase(t *testing.T) {
	ctx := context.Background()

	got, err := enabled(&completerStub{content: `{"approved":false,"reason":"personal attack"}`}).ModerateCase(ctx, "t", "c")
	require.NoError(t, err)
	require.False(t, got.Approved)
	require.Equal(t, "personal attack", got.Reason)

	got, err = enabled(&completerStub{content: `{"approved":true,"reason":null}`}).ModerateCase(ctx, "t", "c")
	require.NoError(t, err)
	require.True(t, got.Approved)

	got, err = enabled(&completerStub{content: `???`}).ModerateCase(ctx, "t", "c")
	require.NoError(t, err)
	require.False(t, got.Approved)

	_, err = enabled(&completerStub{err: errors.New("timeout")}).ModerateCase(ctx, "t", "c")
	require.Error(t, err)
}

func TestModerateDisabled(t *testing.T) {
	ctx := context.Background()

	got, err := (&Service{bypass: true}).ModerateCase(ctx, "t", "c")
	require.NoError(t, err)
	require.True(t, got.Approved)

	got, err = (&Service{}).ModerateCase(ctx, "t", "c")
	require.NoError(t, err)
	require.False(t, got.Approved)
}
