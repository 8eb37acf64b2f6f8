package reward

import (
	"context"
	"encoding/json"
	"time"

	"moralduel-controlplane/pkg/config"
	"moralduel-controlplane/pkg/db/option"
	"moralduel-controlplane/pkg/db/pagination"
	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/pkg/repository"
	"moralduel-controlplane/services/cases"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	config *config.Config
	now    func() time.Time

	rewards repository.Repository[Reward]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	if err := CheckCreatorExpression(p.Config.Reward.CreatorExpression); err != nil {
		zap.L().Warn("invalid creator expression, threshold will be used",
			zap.String("expression", p.Config.Reward.CreatorExpression),
			zap.Error(err),
		)
	}

	return &Service{
		db:     p.DB,
		node:   p.Node,
		config: p.Config,
		now:    time.Now,

		rewards: repository.ProvideStore[Reward](p.DB),
	}
}

func breakdownJSON(b map[Category]decimal.Decimal) (datatypes.JSON, error) {
	out := make(map[string]string, len(b))
	for k, v := range b {
		out[string(k)] = v.StringFixed(2)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// Distribute persists one pending reward per allocated user. A case that
// already has rewards is left untouched.
func (s *Service) Distribute(ctx context.Context, c *cases.Case, votes []*cases.Vote, args []*cases.Argument) (int, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("case_id", c.ID))

	policy := PolicyFromConfig(config.Current(s.config).Reward)
	allocations, err := Calculate(c, votes, args, policy)
	if err != nil {
		zapLog.Error("failed to calculate rewards", zap.Error(err))
		return 0, err
	}
	if len(allocations) == 0 {
		zapLog.Info("no rewards to distribute", zap.String("pool", c.RewardPool.StringFixed(2)))
		return 0, nil
	}

	created := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.rewards.WithTrx(tx).Count(ctx, &Reward{CaseID: c.ID})
		if err != nil {
			return err
		}
		if existing > 0 {
			zapLog.Warn("rewards already distributed", zap.Int64("existing", existing))
			return nil
		}

		now := s.now().UTC()
		rows := make([]*Reward, 0, len(allocations))
		for _, alloc := range allocations {
			breakdown, err := breakdownJSON(alloc.Breakdown)
			if err != nil {
				return err
			}
			rows = append(rows, &Reward{
				ID:        s.node.Generate().String(),
				UserID:    alloc.UserID,
				CaseID:    c.ID,
				Amount:    alloc.Amount,
				Status:    StatusPending,
				Breakdown: breakdown,
				CreatedAt: now,
				UpdatedAt: now,
			})
		}

		if err := s.rewards.WithTrx(tx).BatchCreate(ctx, rows); err != nil {
			return err
		}
		created = len(rows)
		return nil
	})
	if err != nil {
		zapLog.Error("failed to persist rewards", zap.Error(err))
		return 0, errutil.Internal("failed to persist rewards", err)
	}

	if created > 0 {
		zapLog.Info("rewards distributed", zap.Int("count", created))
	}
	return created, nil
}

type ListRequest struct {
	UserID string
	Status Status
	pagination.Pagination
}

type ListResponse struct {
	Rewards  []*Reward            `json:"rewards"`
	PageInfo *pagination.PageInfo `json:"page_info"`
}

func (s *Service) ListByUser(ctx context.Context, req ListRequest) (*ListResponse, error) {
	if req.Status != "" && req.Status.String() == "" {
		return nil, errutil.ValidationFailed("invalid status", nil, errutil.WithDetails(errutil.Detail{
			Field:   "status",
			Message: "must be one of pending, processing, completed, failed",
		}))
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 250 {
		limit = 250
	}
	req.Limit = limit

	out, err := s.rewards.Find(ctx, &Reward{UserID: req.UserID, Status: req.Status}, option.ApplyPagination(req.Pagination))
	if err != nil {
		logger.FromContext(ctx).Error("failed to list rewards", zap.Error(err))
		return nil, errutil.Internal("failed to list rewards", err)
	}

	out, pageInfo := pagination.BuildCursorPageInfo(out, limit, func(r *Reward) string {
		return pagination.CursorOf(r.CreatedAt, r.ID)
	})
	return &ListResponse{Rewards: out, PageInfo: pageInfo}, nil
}

// Get returns the reward when it belongs to userID.
func (s *Service) Get(ctx context.Context, userID, rewardID string) (*Reward, error) {
	if rewardID == "" {
		return nil, ErrRewardNotFound
	}
	r, err := s.rewards.FindOne(ctx, &Reward{ID: rewardID})
	if err != nil {
		return nil, errutil.Internal("failed to get reward", err)
	}
	if r == nil || r.UserID != userID {
		return nil, ErrRewardNotFound
	}
	return r, nil
}

type Summary struct {
	UserID     string          `json:"user_id"`
	Pending    decimal.Decimal `json:"pending"`
	Processing decimal.Decimal `json:"processing"`
	Completed  decimal.Decimal `json:"completed"`
	Failed     decimal.Decimal `json:"failed"`
	Count      int64           `json:"count"`
}

type statusTotal struct {
	Status Status
	Total  decimal.Decimal
	Count  int64
}

func (s *Service) Summary(ctx context.Context, userID string) (*Summary, error) {
	var rows []statusTotal
	err := s.db.WithContext(ctx).
		Model(&Reward{}).
		Select("status, SUM(amount) AS total, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		logger.FromContext(ctx).Error("failed to summarize rewards", zap.Error(err))
		return nil, errutil.Internal("failed to summarize rewards", err)
	}

	out := &Summary{UserID: userID}
	for _, r := range rows {
		out.Count += r.Count
		switch r.Status {
		case StatusPending:
			out.Pending = r.Total
		case StatusProcessing:
			out.Processing = r.Total
		case StatusCompleted:
			out.Completed = r.Total
		case StatusFailed:
			out.Failed = r.Total
		}
	}
	return out, nil
}

// ForCase returns every reward of a case ordered by amount.
func (s *Service) ForCase(ctx context.Context, caseID string) ([]*Reward, error) {
	if caseID == "" {
		return nil, errutil.ValidationFailed("case id is required", nil)
	}
	out, err := s.rewards.Find(ctx, &Reward{CaseID: caseID}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "amount",
		OrderBy: "desc",
		Allow:   map[string]bool{"amount": true},
	}))
	if err != nil {
		return nil, errutil.Internal("failed to list case rewards", err)
	}
	return out, nil
}
