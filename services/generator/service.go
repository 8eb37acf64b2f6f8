package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"moralduel-controlplane/pkg/config"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/services/cases"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	titleMax         = 200
	contextMin       = 100
	contextMax       = 2000
	defaultConfident = 0.7
)

// Completer is the part of the OpenAI client the generator uses.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Service struct {
	client  Completer
	model   string
	timeout time.Duration
	bypass  bool
}

type ServiceParams struct {
	fx.In
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	cfg := p.Config.AI
	s := &Service{
		model:   cfg.Model,
		timeout: cfg.Timeout,
		bypass:  cfg.BypassModeration,
	}
	if s.model == "" {
		s.model = openai.GPT4oMini
	}
	if s.timeout <= 0 {
		s.timeout = 60 * time.Second
	}

	if cfg.ApiKey == "" || strings.HasPrefix(cfg.ApiKey, "your-") {
		zap.L().Warn("[Generator] AI disabled, API key not configured")
		return s
	}

	clientCfg := openai.DefaultConfig(cfg.ApiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	s.client = openai.NewClientWithConfig(clientCfg)
	zap.L().Info("[Generator] AI enabled", zap.String("model", s.model))
	return s
}

func (s *Service) Enabled() bool {
	return s.client != nil
}

func (s *Service) complete(ctx context.Context, system, prompt string, temperature float32, maxTokens int, out any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return ErrInvalidResponse
	}

	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), out); err != nil {
		return ErrInvalidResponse.Wrap(err)
	}
	return nil
}

type caseResponse struct {
	Title   string `json:"title"`
	Context string `json:"context"`
}

// GenerateCase asks the model for a new dilemma. Without a provider it
// draws from the built-in catalog.
func (s *Service) GenerateCase(ctx context.Context) (cases.GeneratedCase, error) {
	zapLog := logger.FromContext(ctx)

	if !s.Enabled() {
		d := pickDilemma()
		zapLog.Info("[Generator] using catalog dilemma", zap.String("title", d.title))
		return cases.GeneratedCase{Title: d.title, Context: d.context}, nil
	}

	var out caseResponse
	if err := s.complete(ctx, caseSystemPrompt, casePrompt, 0.8, 800, &out); err != nil {
		zapLog.Error("[Generator] case generation failed", zap.Error(err))
		return cases.GeneratedCase{}, err
	}

	return normalizeCase(out)
}

func normalizeCase(out caseResponse) (cases.GeneratedCase, error) {
	title := strings.TrimSpace(out.Title)
	body := strings.TrimSpace(out.Context)
	if title == "" || body == "" {
		return cases.GeneratedCase{}, ErrInvalidResponse
	}
	if utf8.RuneCountInString(body) < contextMin {
		return cases.GeneratedCase{}, ErrInvalidResponse.Wrap(fmt.Errorf("context too short"))
	}

	return cases.GeneratedCase{
		Title:   cases.Truncate(title, titleMax),
		Context: cases.Truncate(body, contextMax),
	}, nil
}

type verdictResponse struct {
	Verdict    string   `json:"verdict"`
	Reasoning  string   `json:"reasoning"`
	Confidence *float64 `json:"confidence"`
}

func (s *Service) GenerateVerdict(ctx context.Context, title, body string) (cases.Verdict, error) {
	zapLog := logger.FromContext(ctx)

	if !s.Enabled() {
		if d, ok := lookupDilemma(title); ok {
			return cases.Verdict{Verdict: d.verdict, Reasoning: d.reasoning, Confidence: defaultConfident}, nil
		}
		return cases.Verdict{}, ErrDisabled
	}

	var out verdictResponse
	if err := s.complete(ctx, verdictSystemPrompt, fmt.Sprintf(verdictPrompt, title, body), 0.3, 800, &out); err != nil {
		zapLog.Error("[Generator] verdict generation failed", zap.Error(err))
		return cases.Verdict{}, err
	}

	v, err := normalizeVerdict(out)
	if err != nil {
		zapLog.Error("[Generator] invalid verdict", zap.String("verdict", out.Verdict), zap.Error(err))
		return cases.Verdict{}, err
	}

	zapLog.Info("[Generator] verdict generated", zap.Float64("confidence", v.Confidence))
	return v, nil
}

func normalizeVerdict(out verdictResponse) (cases.Verdict, error) {
	side, ok := cases.ParseSide(out.Verdict)
	if !ok {
		return cases.Verdict{}, ErrInvalidResponse.Wrap(fmt.Errorf("invalid verdict %q", out.Verdict))
	}
	reasoning := strings.TrimSpace(out.Reasoning)
	if reasoning == "" {
		return cases.Verdict{}, ErrInvalidResponse.Wrap(fmt.Errorf("missing reasoning"))
	}

	confidence := defaultConfident
	if out.Confidence != nil && *out.Confidence >= 0 && *out.Confidence <= 1 {
		confidence = *out.Confidence
	}

	return cases.Verdict{Verdict: side, Reasoning: reasoning, Confidence: confidence}, nil
}

type moderationResponse struct {
	Approved bool    `json:"approved"`
	Reason   *string `json:"reason"`
}

// ModerateCase reviews a user submission. An unparseable answer is a
// rejection; a provider error is returned so the caller can fail closed.
func (s *Service) ModerateCase(ctx context.Context, title, body string) (cases.ModerationResult, error) {
	zapLog := logger.FromContext(ctx)

	if !s.Enabled() {
		if s.bypass {
			zapLog.Info("[Generator] moderation bypassed")
			return cases.ModerationResult{Approved: true}, nil
		}
		return cases.ModerationResult{Approved: false, Reason: "AI moderation service unavailable"}, nil
	}

	var out moderationResponse
	err := s.complete(ctx, moderationSystemPrompt, fmt.Sprintf(moderationPrompt, title, body), 0.2, 200, &out)
	if err != nil {
		if errors.Is(err, ErrInvalidResponse) {
			return cases.ModerationResult{Approved: false, Reason: "Unable to verify content appropriateness"}, nil
		}
		zapLog.Error("[Generator] moderation failed", zap.Error(err))
		return cases.ModerationResult{}, err
	}

	result := cases.ModerationResult{Approved: out.Approved}
	if !out.Approved && out.Reason != nil {
		result.Reason = *out.Reason
	}
	zapLog.Info("[Generator] moderation finished", zap.Bool("approved", result.Approved))
	return result, nil
}
