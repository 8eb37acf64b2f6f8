package leaderboard

import (
	"context"
	"fmt"
	"time"

	"moralduel-controlplane/pkg/db/option"
	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/pkg/rediskey"
	"moralduel-controlplane/pkg/repository"
	"moralduel-controlplane/services/reward"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	// BoardSize is the number of ranked users persisted per period.
	BoardSize = 100
	// CacheTTL bounds how old a persisted rank may be before it is
	// recomputed live.
	CacheTTL = 15 * time.Minute
)

var ErrInvalidPeriod = errutil.BaseError{Code: errutil.StatusValidationFailed, Message: "period must be one of all_time, weekly, daily"}

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	now  func() time.Time

	entries repository.Repository[Entry]
	group   singleflight.Group
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		now:  time.Now,

		entries: repository.ProvideStore[Entry](p.DB),
	}
}

type standing struct {
	UserID  string
	Total   decimal.Decimal
	Rewards int64
}

func (s *Service) completed(ctx context.Context, db *gorm.DB, period Period) *gorm.DB {
	q := db.WithContext(ctx).
		Model(&reward.Reward{}).
		Where("status = ?", reward.StatusCompleted)
	if w := period.Window(); w > 0 {
		q = q.Where("completed_at >= ?", s.now().UTC().Add(-w))
	}
	return q
}

func (s *Service) standings(ctx context.Context, db *gorm.DB, period Period, limit int) ([]standing, error) {
	var rows []standing
	err := s.completed(ctx, db, period).
		Select("user_id, SUM(amount) AS total, COUNT(*) AS rewards").
		Group("user_id").
		Order("total DESC, user_id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

// rank assigns competition ranks: equal totals share a rank and the next
// distinct total skips ahead.
func rank(rows []standing) []int {
	ranks := make([]int, len(rows))
	for i := range rows {
		if i > 0 && rows[i].Total.Equal(rows[i-1].Total) {
			ranks[i] = ranks[i-1]
			continue
		}
		ranks[i] = i + 1
	}
	return ranks
}

type RefreshResult struct {
	Periods map[Period]int `json:"periods"`
}

// Refresh recomputes and replaces the persisted board for every period.
func (s *Service) Refresh(ctx context.Context) (RefreshResult, error) {
	zapLog := logger.FromContext(ctx)
	result := RefreshResult{Periods: map[Period]int{}}

	for _, period := range Periods {
		n, err := s.refreshPeriod(ctx, period)
		if err != nil {
			zapLog.Error("[Leaderboard] refresh failed", zap.String("period", string(period)), zap.Error(err))
			return result, errutil.Internal(fmt.Sprintf("failed to refresh %s leaderboard", period), err)
		}
		result.Periods[period] = n
	}

	zapLog.Info("[Leaderboard] refreshed",
		zap.Int("all_time", result.Periods[PeriodAllTime]),
		zap.Int("weekly", result.Periods[PeriodWeekly]),
		zap.Int("daily", result.Periods[PeriodDaily]),
	)
	return result, nil
}

func (s *Service) refreshPeriod(ctx context.Context, period Period) (int, error) {
	var count int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.standings(ctx, tx, period, BoardSize)
		if err != nil {
			return err
		}

		if err := tx.Where("period = ?", period).Delete(&Entry{}).Error; err != nil {
			return err
		}

		now := s.now().UTC()
		ranks := rank(rows)
		entries := make([]*Entry, 0, len(rows))
		for i, r := range rows {
			entries = append(entries, &Entry{
				ID:          s.node.Generate().String(),
				Period:      period,
				UserID:      r.UserID,
				Rank:        ranks[i],
				TotalPoints: r.Total,
				RewardCount: r.Rewards,
				ComputedAt:  now,
			})
		}
		count = len(entries)
		return s.entries.WithTrx(tx).BatchCreate(ctx, entries)
	})
	return count, err
}

// Get returns the persisted board for a period. Concurrent reads of the same
// board share one query.
func (s *Service) Get(ctx context.Context, period Period, limit int) ([]*Entry, error) {
	if period == "" {
		period = PeriodAllTime
	}
	if period.String() == "" {
		return nil, ErrInvalidPeriod
	}
	if limit <= 0 || limit > BoardSize {
		limit = BoardSize
	}

	key := fmt.Sprintf("%s:%d", rediskey.BuildLeaderboardKey(string(period)), limit)
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.entries.Find(ctx, &Entry{Period: period},
			option.WithSortBy(option.QuerySortBy{
				SortBy:  "board_rank",
				OrderBy: "asc",
				Allow:   map[string]bool{"board_rank": true},
			}),
			option.WithLimit(limit),
		)
	})
	if err != nil {
		logger.FromContext(ctx).Error("[Leaderboard] failed to load board", zap.Error(err))
		return nil, errutil.Internal("failed to load leaderboard", err)
	}
	return v.([]*Entry), nil
}

type UserRank struct {
	UserID      string          `json:"user_id"`
	Period      Period          `json:"period"`
	Rank        int             `json:"rank"`
	TotalPoints decimal.Decimal `json:"total_points"`
	Cached      bool            `json:"cached"`
}

// GetUserRank serves the persisted rank when it is fresh and otherwise ranks
// the user live. Rank 0 means the user has no completed rewards.
func (s *Service) GetUserRank(ctx context.Context, userID string, period Period) (*UserRank, error) {
	if period == "" {
		period = PeriodAllTime
	}
	if period.String() == "" {
		return nil, ErrInvalidPeriod
	}

	entry, err := s.entries.FindOne(ctx, &Entry{Period: period, UserID: userID})
	if err != nil {
		return nil, errutil.Internal("failed to load rank", err)
	}
	if entry != nil && s.now().UTC().Sub(entry.ComputedAt) < CacheTTL {
		return &UserRank{
			UserID:      userID,
			Period:      period,
			Rank:        entry.Rank,
			TotalPoints: entry.TotalPoints,
			Cached:      true,
		}, nil
	}

	out, err := s.liveRank(ctx, userID, period)
	if err != nil {
		logger.FromContext(ctx).Error("[Leaderboard] failed to compute rank", zap.String("user_id", userID), zap.Error(err))
		return nil, errutil.Internal("failed to compute rank", err)
	}
	return out, nil
}

func (s *Service) liveRank(ctx context.Context, userID string, period Period) (*UserRank, error) {
	out := &UserRank{UserID: userID, Period: period, TotalPoints: decimal.Zero}

	var own []standing
	err := s.completed(ctx, s.db, period).
		Select("user_id, SUM(amount) AS total, COUNT(*) AS rewards").
		Where("user_id = ?", userID).
		Group("user_id").
		Scan(&own).Error
	if err != nil {
		return nil, err
	}
	if len(own) == 0 || !own[0].Total.IsPositive() {
		return out, nil
	}
	out.TotalPoints = own[0].Total

	totals := s.completed(ctx, s.db, period).
		Select("user_id, SUM(amount) AS total").
		Group("user_id")

	var ahead int64
	err = s.db.WithContext(ctx).
		Table("(?) AS totals", totals).
		Where("total > ?", own[0].Total.InexactFloat64()).
		Count(&ahead).Error
	if err != nil {
		return nil, err
	}

	out.Rank = int(ahead) + 1
	return out, nil
}
