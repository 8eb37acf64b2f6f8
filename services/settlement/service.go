package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"moralduel-controlplane/pkg/chain"
	"moralduel-controlplane/pkg/config"
	"moralduel-controlplane/pkg/db/option"
	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/pkg/repository"
	"moralduel-controlplane/services/ledger"
	"moralduel-controlplane/services/reward"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Crediter books confirmed reward amounts to the user's point balance
// inside the caller's transaction.
type Crediter interface {
	Credit(ctx context.Context, tx *gorm.DB, req ledger.CreditRequest) (*ledger.LedgerEntry, error)
}

type Service struct {
	db       *gorm.DB
	config   *config.Config
	chain    chain.Client
	crediter Crediter
	now      func() time.Time

	rewards repository.Repository[reward.Reward]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
	Chain  chain.Client
	Ledger *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		config:   p.Config,
		chain:    p.Chain,
		crediter: p.Ledger,
		now:      time.Now,

		rewards: repository.ProvideStore[reward.Reward](p.DB),
	}
}

func (s *Service) cfg() config.LedgerConfig {
	return config.Current(s.config).Ledger
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) callTimeout() time.Duration {
	if t := s.cfg().Timeout; t > 0 {
		return t
	}
	return 10 * time.Second
}

// payoutDigest identifies a payout on the external ledger.
func payoutDigest(r *reward.Reward) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", r.ID, r.UserID, r.Amount.StringFixed(2))))
	return hex.EncodeToString(sum[:])
}

type ClaimRequest struct {
	UserID   string
	RewardID string
	// LedgerRef is an externally submitted transaction. When empty the
	// payout is submitted to the ledger on the user's behalf.
	LedgerRef string
}

// Claim moves a pending reward owned by the caller to processing and
// records its ledger reference.
func (s *Service) Claim(ctx context.Context, req ClaimRequest) (*reward.Reward, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("reward_id", req.RewardID), zap.String("user_id", req.UserID))

	if req.UserID == "" {
		return nil, ErrMissingRewardOwner
	}
	if req.RewardID == "" {
		claims.WithLabelValues("not_found").Inc()
		return nil, reward.ErrRewardNotFound
	}

	r, err := s.rewards.FindOne(ctx, &reward.Reward{ID: req.RewardID})
	if err != nil {
		return nil, errutil.Internal("failed to load reward", err)
	}
	if r == nil {
		claims.WithLabelValues("not_found").Inc()
		return nil, reward.ErrRewardNotFound
	}
	if r.UserID != req.UserID || r.Status != reward.StatusPending {
		claims.WithLabelValues("rejected").Inc()
		return nil, ErrNotClaimable
	}

	ref := req.LedgerRef
	if ref == "" {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout())
		ref, err = s.chain.Commit(callCtx, r.CaseID, payoutDigest(r), s.clock())
		cancel()
		if err != nil {
			claims.WithLabelValues("ledger_error").Inc()
			zapLog.Warn("[Settlement] payout submission failed", zap.Error(err))
			return nil, ErrLedgerUnavailable.Wrap(err)
		}
	}

	now := s.clock()
	updates := map[string]any{
		"status":     reward.StatusProcessing,
		"ledger_ref": ref,
		"claimed_at": now,
		"updated_at": now,
	}
	n, err := s.rewards.UpdateWhere(ctx, r.ID, &reward.Reward{UserID: req.UserID, Status: reward.StatusPending}, &updates)
	if err != nil {
		return nil, errutil.Internal("failed to claim reward", err)
	}
	if n == 0 {
		claims.WithLabelValues("rejected").Inc()
		return nil, ErrNotClaimable
	}

	claims.WithLabelValues("claimed").Inc()
	zapLog.Info("[Settlement] reward claimed", zap.String("ledger_ref", ref))

	out, err := s.rewards.FindOne(ctx, &reward.Reward{ID: r.ID})
	if err != nil {
		return nil, errutil.Internal("failed to load reward", err)
	}
	return out, nil
}

type ClaimSummary struct {
	Claimed int             `json:"rewards_claimed"`
	Amount  decimal.Decimal `json:"amount_claimed"`
	Failed  int             `json:"rewards_failed"`
}

// ClaimPending claims every pending reward of the user, oldest first.
func (s *Service) ClaimPending(ctx context.Context, userID string) (ClaimSummary, error) {
	summary := ClaimSummary{Amount: decimal.Zero}
	if userID == "" {
		return summary, ErrMissingRewardOwner
	}

	pending, err := s.rewards.Find(ctx, &reward.Reward{UserID: userID, Status: reward.StatusPending},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "asc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithLimit(s.batchSize()),
	)
	if err != nil {
		return summary, errutil.Internal("failed to list pending rewards", err)
	}

	for _, r := range pending {
		claimed, err := s.Claim(ctx, ClaimRequest{UserID: userID, RewardID: r.ID})
		if err != nil {
			summary.Failed++
			continue
		}
		summary.Claimed++
		summary.Amount = summary.Amount.Add(claimed.Amount)
	}
	return summary, nil
}

func (s *Service) batchSize() int {
	if n := s.cfg().BatchSize; n > 0 {
		return n
	}
	return 100
}
