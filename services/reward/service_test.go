package reward

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"moralduel-controlplane/pkg/config"
	"moralduel-controlplane/pkg/db/pagination"
	"moralduel-controlplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, Models()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParams{DB: db, Node: node, Config: config.Defaults()})
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, db
}

func TestDistributePersistsOneRowPerUser(t *testing.T) {
	svc, db := newTestService(t)
	s := newScenario(1000, 50)
	ctx := context.Background()

	n, err := svc.Distribute(ctx, s.c, s.votes, s.args)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	var rows []*Reward
	require.NoError(t, db.Order("user_id").Find(&rows, "case_id = ?", s.c.ID).Error)
	require.Len(t, rows, 5)
	for _, r := range rows {
		require.Equal(t, StatusPending, r.Status)
	}
	require.Equal(t, "u1", rows[0].UserID)
	require.Equal(t, "233.33", rows[0].Amount.StringFixed(2))

	var breakdown map[string]string
	require.NoError(t, json.Unmarshal(rows[0].Breakdown, &breakdown))
	require.Equal(t, "133.33", breakdown[string(CategoryWinningVoter)])
	require.Equal(t, "60.00", breakdown[string(CategoryTopArgument)])
}

func TestDistributeIsIdempotent(t *testing.T) {
	svc, db := newTestService(t)
	s := newScenario(1000, 50)
	ctx := context.Background()

	_, err := svc.Distribute(ctx, s.c, s.votes, s.args)
	require.NoError(t, err)

	n, err := svc.Distribute(ctx, s.c, s.votes, s.args)
	require.NoError(t, err)
	require.Zero(t, n)

	var count int64
	require.NoError(t, db.Model(&Reward{}).Where("case_id = ?", s.c.ID).Count(&count).Error)
	require.Equal(t, int64(5), count)
}

func TestGetChecksOwner(t *testing.T) {
	svc, _ := newTestService(t)
	s := newScenario(1000, 50)
	ctx := context.Background()

	_, err := svc.Distribute(ctx, s.c, s.votes, s.args)
	require.NoError(t, err)

	list, err := svc.ListByUser(ctx, ListRequest{UserID: "u1", Pagination: pagination.Pagination{Limit: 10}})
	require.NoError(t, err)
	require.Len(t, list.Rewards, 1)
	require.False(t, list.PageInfo.HasMore)

	got, err := svc.Get(ctx, "u1", list.Rewards[0].ID)
	require.NoError(t, err)
	require.Equal(t, s.c.ID, got.CaseID)

	_, err = svc.Get(ctx, "u2", list.Rewards[0].ID)
	require.ErrorIs(t, err, ErrRewardNotFound)
}

func TestEmptyIdentifiersMatchNothing(t *testing.T) {
	svc, _ := newTestService(t)
	s := newScenario(1000, 50)
	ctx := context.Background()

	_, err := svc.Distribute(ctx, s.c, s.votes, s.args)
	require.NoError(t, err)

	_, err = svc.Get(ctx, "u1", "")
	require.ErrorIs(t, err, ErrRewardNotFound)

	_, err = svc.ForCase(ctx, "")
	require.Error(t, err)

	rows, err := svc.ForCase(ctx, s.c.ID)
	require.NoError(t, err)
	require.Len(t, rows, 5)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ListByUser(context.Background(), ListRequest{UserID: "u1", Status: "paid"})
	require.Error(t, err)
}

func TestSummaryGroupsByStatus(t *testing.T) {
	svc, db := newTestService(t)
	s := newScenario(1000, 50)
	ctx := context.Background()

	_, err := svc.Distribute(ctx, s.c, s.votes, s.args)
	require.NoError(t, err)
	require.NoError(t, db.Model(&Reward{}).Where("user_id = ?", "u4").Update("status", StatusCompleted).Error)

	sum, err := svc.Summary(ctx, "u4")
	require.NoError(t, err)
	require.Equal(t, int64(1), sum.Count)
	require.Equal(t, "190.00", sum.Completed.StringFixed(2))
	require.True(t, sum.Pending.IsZero())
}
