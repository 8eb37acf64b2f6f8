package leaderboard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"moralduel-controlplane/services/reward"
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

type fixture struct {
	svc *Service
	db  *gorm.DB
	now time.Time
	seq int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	models := append(Models(), reward.Models()...)
	db := testutil.NewTestDB(t, models...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{db: db, now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	f.svc = NewService(ServiceParams{DB: db, Node: node})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) completed(t *testing.T, userID, amount string, ago time.Duration) {
	t.Helper()
	f.seq++
	at := f.now.Add(-ago)
	require.NoError(t, f.db.Create(&reward.Reward{
		ID:          fmt.Sprintf("r%d", f.seq),
		UserID:      userID,
		CaseID:      fmt.Sprintf("case-%d", f.seq),
		Amount:      decimal.RequireFromString(amount),
		Status:      reward.StatusCompleted,
		CreatedAt:   at,
		UpdatedAt:   at,
		CompletedAt: &at,
	}).Error)
}

func TestRankSharesTies(t *testing.T) {
	rows := []standing{
		{UserID: "a", Total: decimal.NewFromInt(100)},
		{UserID: "b", Total: decimal.NewFromInt(100)},
		{UserID: "c", Total: decimal.NewFromInt(50)},
	}
	require.Equal(t, []int{1, 1, 3}, rank(rows))
}

func TestRefreshBuildsPeriods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.completed(t, "alice", "300", 30*24*time.Hour)
	f.completed(t, "bob", "150", 3*24*time.Hour)
	f.completed(t, "carol", "150", time.Hour)
	f.completed(t, "carol", "10", 2*time.Hour)
	require.NoError(t, f.db.Create(&reward.Reward{
		ID: "pending", UserID: "dave", CaseID: "case-x", Amount: decimal.NewFromInt(999), Status: reward.StatusPending,
	}).Error)

	res, err := f.svc.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, res.Periods[PeriodAllTime])
	require.Equal(t, 2, res.Periods[PeriodWeekly])
	require.Equal(t, 1, res.Periods[PeriodDaily])

	board, err := f.svc.Get(ctx, PeriodAllTime, 10)
	require.NoError(t, err)
	require.Len(t, board, 3)
	require.Equal(t, "alice", board[0].UserID)
	require.Equal(t, 1, board[0].Rank)
	require.Equal(t, "carol", board[1].UserID)
	require.Equal(t, "160.00", board[1].TotalPoints.StringFixed(2))
	require.Equal(t, int64(2), board[1].RewardCount)

	weekly, err := f.svc.Get(ctx, PeriodWeekly, 10)
	require.NoError(t, err)
	require.Equal(t, "carol", weekly[0].UserID)
	require.Equal(t, "bob", weekly[1].UserID)
}

func TestRefreshReplacesPreviousBoard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.completed(t, "alice", "100", time.Hour)
	_, err := f.svc.Refresh(ctx)
	require.NoError(t, err)

	f.completed(t, "bob", "500", time.Hour)
	_, err = f.svc.Refresh(ctx)
	require.NoError(t, err)

	board, err := f.svc.Get(ctx, PeriodDaily, 0)
	require.NoError(t, err)
	require.Len(t, board, 2)
	require.Equal(t, "bob", board[0].UserID)
}

func TestGetUserRankCachedAndLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.completed(t, "alice", "300", time.Hour)
	f.completed(t, "bob", "100", time.Hour)
	_, err := f.svc.Refresh(ctx)
	require.NoError(t, err)

	got, err := f.svc.GetUserRank(ctx, "bob", PeriodAllTime)
	require.NoError(t, err)
	require.True(t, got.Cached)
	require.Equal(t, 2, got.Rank)

	f.completed(t, "bob", "500", time.Minute)
	f.now = f.now.Add(CacheTTL + time.Minute)

	got, err = f.svc.GetUserRank(ctx, "bob", PeriodAllTime)
	require.NoError(t, err)
	require.False(t, got.Cached)
	require.Equal(t, 1, got.Rank)
	require.Equal(t, "600.00", got.TotalPoints.StringFixed(2))
}

func TestGetUserRankUnranked(t *testing.T) {
	f := newFixture(t)

	got, err := f.svc.GetUserRank(context.Background(), "nobody", PeriodWeekly)
	require.NoError(t, err)
	require.Zero(t, got.Rank)
	require.True(t, got.TotalPoints.IsZero())
}

func TestInvalidPeriod(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Get(context.Background(), "monthly", 10)
	require.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = f.svc.GetUserRank(context.Background(), "u", "monthly")
	require.ErrorIs(t, err, ErrInvalidPeriod)
}
