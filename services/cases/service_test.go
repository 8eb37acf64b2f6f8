package cases

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"moralduel-controlplane/pkg/authz"
	"moralduel-controlplane/pkg/chain"
	"moralduel-controlplane/pkg/config"
	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/pkg/security"
	"moralduel-controlplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type contentStub struct {
	out GeneratedCase
	err error
}

func (s *contentStub) GenerateCase(ctx context.Context) (GeneratedCase, error) {
	return s.out, s.err
}

type verdictStub struct {
	out   Verdict
	err   error
	calls int
}

func (s *verdictStub) GenerateVerdict(ctx context.Context, title, context string) (Verdict, error) {
	s.calls++
	return s.out, s.err
}

type moderatorStub struct {
	out ModerationResult
	err error
}

func (s *moderatorStub) ModerateCase(ctx context.Context, title, context string) (ModerationResult, error) {
	return s.out, s.err
}

type distributorStub struct {
	calls []string
	err   error
}

func (s *distributorStub) Distribute(ctx context.Context, c *Case, votes []*Vote, args []*Argument) (int, error) {
	s.calls = append(s.calls, c.ID)
	if s.err != nil {
		return 0, s.err
	}
	return len(votes), nil
}

type archiverStub struct {
	ids []string
}

func (s *archiverStub) ArchiveLater(ctx context.Context, caseID string) error {
	s.ids = append(s.ids, caseID)
	return nil
}

type ledgerStub struct {
	commitErr error
	receipt   chain.Receipt
}

func (s *ledgerStub) Commit(ctx context.Context, caseID, hash string, ts time.Time) (string, error) {
	if s.commitErr != nil {
		return "", s.commitErr
	}
	return "ref-" + caseID, nil
}

func (s *ledgerStub) GetStatus(ctx context.Context, ref string) (chain.Receipt, error) {
	return s.receipt, nil
}

type fixture struct {
	svc         *Service
	db          *gorm.DB
	now         time.Time
	content     *contentStub
	verdict     *verdictStub
	moderator   *moderatorStub
	distributor *distributorStub
	archiver    *archiverStub
	ledger      *ledgerStub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, Models()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	az, err := authz.NewDefault()
	require.NoError(t, err)

	f := &fixture{
		db:  db,
		now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		content: &contentStub{out: GeneratedCase{
			Title:   "Should a finder keep a lost wallet?",
			Context: "A commuter finds a wallet with cash and no ID on an empty train platform late at night.",
		}},
		verdict:     &verdictStub{out: Verdict{Verdict: SideNo, Reasoning: "Returning property is expected.", Confidence: 0.8}},
		moderator:   &moderatorStub{out: ModerationResult{Approved: true}},
		distributor: &distributorStub{},
		archiver:    &archiverStub{},
		ledger:      &ledgerStub{receipt: chain.Receipt{Status: chain.StatusConfirmed, Confirmations: 2}},
	}

	f.svc = NewService(ServiceParams{
		DB:          db,
		Node:        node,
		Config:      config.Defaults(),
		Authz:       az,
		Ledger:      f.ledger,
		Content:     f.content,
		Verdict:     f.verdict,
		Moderator:   f.moderator,
		Distributor: f.distributor,
		Archiver:    f.archiver,
	})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) activeCase(t *testing.T, closesAt time.Time) *Case {
	t.Helper()
	id := fmt.Sprintf("case-%d", closesAt.UnixNano())
	c := &Case{
		ID:               id,
		Code:             "CASE-" + id,
		Title:            "Is it fair to split the bill evenly?",
		Context:          "Friends disagree about splitting a restaurant bill when orders differ widely in price.",
		Status:           StatusActive,
		VerdictHash:      security.Commitment("YES", "Shared meals imply shared cost."),
		Verdict:          SideYes,
		VerdictReasoning: "Shared meals imply shared cost.",
		RewardPool:       decimal.NewFromInt(1000),
		IsAIGenerated:    true,
		CreatedAt:        f.now.Add(-24 * time.Hour),
		ClosesAt:         &closesAt,
	}
	require.NoError(t, f.db.Create(c).Error)
	return c
}

func requireStatus(t *testing.T, err error, status errutil.CoreStatus) {
	t.Helper()
	var be errutil.BaseError
	require.True(t, errors.As(err, &be), "expected BaseError, got %v", err)
	require.Equal(t, status, be.Status())
}

func TestCreateUserCaseValidates(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateUserCase(context.Background(), CreateCaseRequest{
		UserID:  "u1",
		Title:   "  short ",
		Context: "too short",
	})
	requireStatus(t, err, errutil.StatusValidationFailed)

	be, _ := errutil.From(err)
	require.Len(t, be.Details, 2)

	var n int64
	require.NoError(t, f.db.Model(&Case{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestCreateUserCasePendingModeration(t *testing.T) {
	f := newFixture(t)

	c, err := f.svc.CreateUserCase(context.Background(), CreateCaseRequest{
		UserID:  "u1",
		Title:   "  Is lying to protect a friend acceptable?  ",
		Context: "A friend asks you to cover for them with their partner about where they were last night.",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPendingModeration, c.Status)
	require.Equal(t, "Is lying to protect a friend acceptable?", c.Title)
	require.Nil(t, c.ClosesAt)
	require.Empty(t, c.VerdictHash)
	require.NotNil(t, c.CreatedBy)
	require.Equal(t, "u1", *c.CreatedBy)
	require.True(t, c.RewardPool.Equal(decimal.NewFromInt(1000)))
	require.Equal(t, "is-lying-to-protect-a-friend-acceptable", c.Slug)
}

func TestCreateSystemCaseSealsVerdict(t *testing.T) {
	f := newFixture(t)

	c, err := f.svc.CreateSystemCase(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusActive, c.Status)
	require.True(t, c.IsAIGenerated)
	require.Nil(t, c.CreatedBy)
	require.NotNil(t, c.ClosesAt)
	require.True(t, c.ClosesAt.Equal(f.now.Add(24*time.Hour)))
	require.True(t, security.VerifyCommitment(c.VerdictHash, "NO", "Returning property is expected."))
	require.Equal(t, "ref-"+c.ID, c.LedgerRef)

	var stored Case
	require.NoError(t, f.db.First(&stored, "id = ?", c.ID).Error)
	require.Equal(t, c.VerdictHash, stored.VerdictHash)
	require.Equal(t, "ref-"+c.ID, stored.LedgerRef)
}

func TestCreateSystemCaseVerdictFailureCreatesNothing(t *testing.T) {
	f := newFixture(t)
	f.verdict.err = errors.New("model unavailable")

	_, err := f.svc.CreateSystemCase(context.Background())
	require.ErrorIs(t, err, ErrVerdictFailed)

	var n int64
	require.NoError(t, f.db.Model(&Case{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestCreateSystemCaseLedgerFailureStillCreates(t *testing.T) {
	f := newFixture(t)
	f.ledger.commitErr = errors.New("rpc down")

	c, err := f.svc.CreateSystemCase(context.Background())
	require.NoError(t, err)
	require.Empty(t, c.LedgerRef)
	require.NotEmpty(t, c.VerdictHash)
}

func TestActivateRequiresModerator(t *testing.T) {
	f := newFixture(t)
	c, err := f.svc.CreateUserCase(context.Background(), CreateCaseRequest{
		UserID:  "u1",
		Title:   "Should you report a coworker?",
		Context: "A coworker has been padding expense reports by small amounts every month for a year.",
	})
	require.NoError(t, err)

	_, err = f.svc.Activate(context.Background(), c.ID, authz.RoleUser)
	require.ErrorIs(t, err, ErrNotAllowed)
}

func TestActivateSealsVerdictAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	c, err := f.svc.CreateUserCase(context.Background(), CreateCaseRequest{
		UserID:  "u1",
		Title:   "Should you report a coworker?",
		Context: "A coworker has been padding expense reports by small amounts every month for a year.",
	})
	require.NoError(t, err)

	activated, err := f.svc.Activate(context.Background(), c.ID, authz.RoleModerator)
	require.NoError(t, err)
	require.Equal(t, StatusActive, activated.Status)
	require.True(t, activated.ClosesAt.Equal(f.now.Add(24*time.Hour)))
	require.NotEmpty(t, activated.VerdictHash)
	require.Empty(t, activated.Verdict)
	require.Equal(t, 1, f.verdict.calls)

	f.now = f.now.Add(time.Hour)
	again, err := f.svc.Activate(context.Background(), c.ID, authz.RoleModerator)
	require.NoError(t, err)
	require.True(t, again.ClosesAt.Equal(*activated.ClosesAt))
	require.Equal(t, activated.VerdictHash, again.VerdictHash)
	require.Equal(t, 1, f.verdict.calls)
}

func TestActivateVerdictFailureLeavesPending(t *testing.T) {
	f := newFixture(t)
	c, err := f.svc.CreateUserCase(context.Background(), CreateCaseRequest{
		UserID:  "u1",
		Title:   "Should you report a coworker?",
		Context: "A coworker has been padding expense reports by small amounts every month for a year.",
	})
	require.NoError(t, err)
	f.verdict.err = errors.New("timeout")

	_, err = f.svc.Activate(context.Background(), c.ID, authz.RoleModerator)
	require.ErrorIs(t, err, ErrVerdictFailed)

	var stored Case
	require.NoError(t, f.db.First(&stored, "id = ?", c.ID).Error)
	require.Equal(t, StatusPendingModeration, stored.Status)
	require.Nil(t, stored.ClosesAt)
	require.Empty(t, stored.VerdictHash)
}

func TestModerateFailsClosed(t *testing.T) {
	f := newFixture(t)
	c, err := f.svc.CreateUserCase(context.Background(), CreateCaseRequest{
		UserID:  "u1",
		Title:   "Should you report a coworker?",
		Context: "A coworker has been padding expense reports by small amounts every month for a year.",
	})
	require.NoError(t, err)
	f.moderator.err = errors.New("unreachable")

	got, result, err := f.svc.Moderate(context.Background(), c.ID, authz.RoleSystem)
	require.NoError(t, err)
	require.False(t, result.Approved)
	require.Equal(t, StatusPendingModeration, got.Status)
	require.Contains(t, got.ModerationReason, "unreachable")
}

func TestModerateApprovesAndActivates(t *testing.T) {
	f := newFixture(t)
	c, err := f.svc.CreateUserCase(context.Background(), CreateCaseRequest{
		UserID:  "u1",
		Title:   "Should you report a coworker?",
		Context: "A coworker has been padding expense reports by small amounts every month for a year.",
	})
	require.NoError(t, err)

	got, result, err := f.svc.Moderate(context.Background(), c.ID, authz.RoleModerator)
	require.NoError(t, err)
	require.True(t, result.Approved)
	require.Equal(t, StatusActive, got.Status)
}

func TestSweepExpiredClosesAndFlagsTopArguments(t *testing.T) {
	f := newFixture(t)
	expired := f.activeCase(t, f.now.Add(-time.Minute))
	open := f.activeCase(t, f.now.Add(time.Hour))

	base := f.now.Add(-10 * time.Hour)
	args := []*Argument{
		{ID: "a1", CaseID: expired.ID, AuthorID: "u1", Side: SideYes, LikeCount: 5, CreatedAt: base.Add(3 * time.Minute)},
		{ID: "a2", CaseID: expired.ID, AuthorID: "u2", Side: SideNo, LikeCount: 7, CreatedAt: base.Add(4 * time.Minute)},
		{ID: "a3", CaseID: expired.ID, AuthorID: "u3", Side: SideYes, LikeCount: 5, CreatedAt: base.Add(1 * time.Minute)},
		{ID: "a4", CaseID: expired.ID, AuthorID: "u4", Side: SideNo, LikeCount: 5, CreatedAt: base.Add(2 * time.Minute)},
	}
	require.NoError(t, f.db.Create(&args).Error)

	res, err := f.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Scanned)
	require.Equal(t, 1, res.Closed)
	require.Equal(t, []string{expired.ID}, f.distributor.calls)
	require.Equal(t, []string{expired.ID}, f.archiver.ids)

	var stored []Argument
	require.NoError(t, f.db.Order("id").Find(&stored).Error)
	ranks := map[string]int{}
	for _, a := range stored {
		if a.IsTop3 {
			ranks[a.ID] = a.TopRank
		}
	}
	require.Equal(t, map[string]int{"a2": 1, "a3": 2, "a4": 3}, ranks)

	var closed Case
	require.NoError(t, f.db.First(&closed, "id = ?", expired.ID).Error)
	require.Equal(t, StatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	var stillOpen Case
	require.NoError(t, f.db.First(&stillOpen, "id = ?", open.ID).Error)
	require.Equal(t, StatusActive, stillOpen.Status)

	res, err = f.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.Closed)
	require.Len(t, f.distributor.calls, 1)
}

func TestSweepClosesEvenWhenRewardsFail(t *testing.T) {
	f := newFixture(t)
	c := f.activeCase(t, f.now.Add(-time.Minute))
	f.distributor.err = errors.New("reward config invalid")

	res, err := f.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Closed)
	require.Zero(t, res.Rewards)

	var closed Case
	require.NoError(t, f.db.First(&closed, "id = ?", c.ID).Error)
	require.Equal(t, StatusClosed, closed.Status)
}

func TestGetHidesVerdictUntilClosed(t *testing.T) {
	f := newFixture(t)
	c := f.activeCase(t, f.now.Add(time.Hour))

	detail, err := f.svc.Get(context.Background(), c.ID, "")
	require.NoError(t, err)
	require.Empty(t, detail.Case.Verdict)
	require.Empty(t, detail.Case.VerdictReasoning)
	require.NotEmpty(t, detail.Case.VerdictHash)

	f.now = f.now.Add(2 * time.Hour)
	_, err = f.svc.SweepExpired(context.Background())
	require.NoError(t, err)

	detail, err = f.svc.Get(context.Background(), c.ID, "")
	require.NoError(t, err)
	require.Equal(t, SideYes, detail.Case.Verdict)
	require.True(t, security.VerifyCommitment(detail.Case.VerdictHash, string(detail.Case.Verdict), detail.Case.VerdictReasoning))
}

func TestGetMissingCase(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), "nope", "")
	require.ErrorIs(t, err, ErrCaseNotFound)

	f.activeCase(t, f.now.Add(time.Hour))
	_, err = f.svc.Get(context.Background(), "", "")
	require.ErrorIs(t, err, ErrCaseNotFound)

	vote, err := f.svc.VoteOf(context.Background(), "", "")
	require.NoError(t, err)
	require.Nil(t, vote)
}

func TestListPaginates(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.activeCase(t, f.now.Add(time.Duration(i+1)*time.Hour))
	}

	first, err := f.svc.List(context.Background(), ListRequest{Status: StatusActive})
	require.NoError(t, err)
	require.Len(t, first.Cases, 5)
	require.False(t, first.PageInfo.HasMore)
	for _, c := range first.Cases {
		require.Empty(t, c.Verdict)
	}

	_, err = f.svc.List(context.Background(), ListRequest{Status: "bogus"})
	requireStatus(t, err, errutil.StatusValidationFailed)
}

func TestVerifyCommitments(t *testing.T) {
	f := newFixture(t)
	c, err := f.svc.CreateSystemCase(context.Background())
	require.NoError(t, err)

	n, err := f.svc.VerifyCommitments(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var stored Case
	require.NoError(t, f.db.First(&stored, "id = ?", c.ID).Error)
	require.NotNil(t, stored.CommitmentVerifiedAt)

	n, err = f.svc.VerifyCommitments(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRankTopArgumentsTieBreak(t *testing.T) {
	now := time.Now()
	args := []*Argument{
		{ID: "b", LikeCount: 3, CreatedAt: now},
		{ID: "a", LikeCount: 3, CreatedAt: now},
		{ID: "c", LikeCount: 3, CreatedAt: now.Add(-time.Second)},
		{ID: "d", LikeCount: 9, CreatedAt: now.Add(time.Hour)},
	}

	top := RankTopArguments(args)
	require.Len(t, top, 3)
	require.Equal(t, []string{"d", "c", "a"}, []string{top[0].ID, top[1].ID, top[2].ID})
	require.Equal(t, "b", args[0].ID)
}
