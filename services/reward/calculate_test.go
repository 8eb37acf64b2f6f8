package reward

import (
	"fmt"
	"testing"
	"time"

	"moralduel-controlplane/pkg/config"
	"moralduel-controlplane/services/cases"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func defaultPolicy() Policy {
	return PolicyFromConfig(config.Defaults().Reward)
}

func strPtr(s string) *string { return &s }

type scenario struct {
	c     *cases.Case
	votes []*cases.Vote
	args  []*cases.Argument
}

// newScenario builds a closed YES case with 3 YES voters, 2 NO voters and
// three ranked top arguments written by the voters.
func newScenario(pool int64, participants int64) scenario {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := &cases.Case{
		ID:                "case-1",
		Status:            cases.StatusClosed,
		Verdict:           cases.SideYes,
		RewardPool:        decimal.NewFromInt(pool),
		TotalParticipants: participants,
		CreatedBy:         strPtr("creator"),
	}

	var votes []*cases.Vote
	for i, side := range []cases.Side{cases.SideYes, cases.SideYes, cases.SideYes, cases.SideNo, cases.SideNo} {
		votes = append(votes, &cases.Vote{UserID: fmt.Sprintf("u%d", i+1), CaseID: c.ID, Side: side})
	}

	args := []*cases.Argument{
		{ID: "a1", CaseID: c.ID, AuthorID: "u4", LikeCount: 9, IsTop3: true, TopRank: 1, CreatedAt: base},
		{ID: "a2", CaseID: c.ID, AuthorID: "u5", LikeCount: 5, IsTop3: true, TopRank: 2, CreatedAt: base},
		{ID: "a3", CaseID: c.ID, AuthorID: "u1", LikeCount: 2, IsTop3: true, TopRank: 3, CreatedAt: base},
		{ID: "a4", CaseID: c.ID, AuthorID: "u2", LikeCount: 1, CreatedAt: base},
	}
	return scenario{c: c, votes: votes, args: args}
}

func byUser(allocs []Allocation) map[string]Allocation {
	out := map[string]Allocation{}
	for _, a := range allocs {
		out[a.UserID] = a
	}
	return out
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Equal(t, want, got.StringFixed(2))
}

func TestCalculateReferenceScenario(t *testing.T) {
	s := newScenario(1000, 50)

	allocs, err := Calculate(s.c, s.votes, s.args, defaultPolicy())
	require.NoError(t, err)

	got := byUser(allocs)
	require.NotContains(t, got, "creator")

	for _, userID := range []string{"u1", "u2", "u3"} {
		requireAmount(t, "133.33", got[userID].Breakdown[CategoryWinningVoter])
	}
	requireAmount(t, "150.00", got["u4"].Breakdown[CategoryTopArgument])
	requireAmount(t, "90.00", got["u5"].Breakdown[CategoryTopArgument])
	requireAmount(t, "60.00", got["u1"].Breakdown[CategoryTopArgument])

	for _, userID := range []string{"u1", "u2", "u3", "u4", "u5"} {
		requireAmount(t, "40.00", got[userID].Breakdown[CategoryParticipant])
	}

	requireAmount(t, "233.33", got["u1"].Amount)
	requireAmount(t, "190.00", got["u4"].Amount)
}

func TestCalculateOneAllocationPerUser(t *testing.T) {
	s := newScenario(1000, 50)

	allocs, err := Calculate(s.c, s.votes, s.args, defaultPolicy())
	require.NoError(t, err)
	require.Len(t, allocs, 5)

	seen := map[string]bool{}
	for _, a := range allocs {
		require.False(t, seen[a.UserID])
		seen[a.UserID] = true
	}
}

func TestCalculateSumNeverExceedsPool(t *testing.T) {
	s := newScenario(1000, 150)

	allocs, err := Calculate(s.c, s.votes, s.args, defaultPolicy())
	require.NoError(t, err)

	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.Amount)
	}
	require.True(t, total.LessThanOrEqual(s.c.RewardPool), "total %s", total)
	requireAmount(t, "100.00", byUser(allocs)["creator"].Breakdown[CategoryCreator])
}

func TestCalculateIsDeterministic(t *testing.T) {
	s := newScenario(777, 10)

	first, err := Calculate(s.c, s.votes, s.args, defaultPolicy())
	require.NoError(t, err)
	second, err := Calculate(s.c, s.votes, s.args, defaultPolicy())
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestCalculateZeroPool(t *testing.T) {
	s := newScenario(0, 50)

	allocs, err := Calculate(s.c, s.votes, s.args, defaultPolicy())
	require.NoError(t, err)
	require.Empty(t, allocs)
}

func TestCalculateNoWinnersLeavesPoolUnallocated(t *testing.T) {
	s := newScenario(1000, 50)
	s.c.Verdict = cases.SideNo
	for _, v := range s.votes {
		v.Side = cases.SideYes
	}

	allocs, err := Calculate(s.c, s.votes, s.args, defaultPolicy())
	require.NoError(t, err)
	for _, a := range allocs {
		_, ok := a.Breakdown[CategoryWinningVoter]
		require.False(t, ok)
	}
}

func TestCalculateFewerTopArguments(t *testing.T) {
	s := newScenario(1000, 50)
	s.args = s.args[:1]

	allocs, err := Calculate(s.c, s.votes, s.args, defaultPolicy())
	require.NoError(t, err)

	top := decimal.Zero
	for _, a := range allocs {
		top = top.Add(a.Breakdown[CategoryTopArgument])
	}
	requireAmount(t, "150.00", top)
}

func TestCalculateInvalidPolicy(t *testing.T) {
	s := newScenario(1000, 50)
	p := defaultPolicy()
	p.CreatorPercent = 20

	_, err := Calculate(s.c, s.votes, s.args, p)
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestCreatorExpression(t *testing.T) {
	s := newScenario(1000, 10)
	p := defaultPolicy()

	require.False(t, creatorEligible(s.c, p))

	p.CreatorExpression = "total_participants >= 5 && !is_ai_generated"
	require.True(t, creatorEligible(s.c, p))

	p.CreatorExpression = "total_participants >="
	require.False(t, creatorEligible(s.c, p))

	s.c.CreatedBy = nil
	p.CreatorExpression = "true"
	require.False(t, creatorEligible(s.c, p))
}

func TestCheckCreatorExpression(t *testing.T) {
	require.NoError(t, CheckCreatorExpression(""))
	require.NoError(t, CheckCreatorExpression("total_participants >= creator_threshold"))
	require.NoError(t, CheckCreatorExpression("yes_votes > no_votes && !is_ai_generated"))
	require.Error(t, CheckCreatorExpression("total_participants >="))
	require.Error(t, CheckCreatorExpression("unknown_field > 1"))
}
