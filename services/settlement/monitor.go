package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"moralduel-controlplane/pkg/chain"
	"moralduel-controlplane/pkg/db/option"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/services/ledger"
	"moralduel-controlplane/services/reward"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type outcome string

const (
	outcomeCompleted outcome = "completed"
	outcomeFailed    outcome = "failed"
	outcomeWaiting   outcome = "waiting"
	outcomeSkipped   outcome = "skipped"
)

type MonitorResult struct {
	Scanned   int `json:"scanned"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Waiting   int `json:"waiting"`
	Errors    int `json:"errors"`
}

// CreditReference is the idempotency key of the point credit for a reward.
func CreditReference(rewardID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("reward:"+rewardID)).String()
}

// Monitor polls the external ledger for a bounded batch of processing
// rewards. Each reward is handled on its own; an error on one is logged and
// the rest of the batch continues.
func (s *Service) Monitor(ctx context.Context) (MonitorResult, error) {
	zapLog := logger.FromContext(ctx)
	cfg := s.cfg()

	rows, err := s.rewards.Find(ctx, &reward.Reward{Status: reward.StatusProcessing},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "updated_at",
			OrderBy: "asc",
			Allow:   map[string]bool{"updated_at": true},
		}),
		option.WithLimit(s.batchSize()),
	)
	if err != nil {
		zapLog.Error("[Settlement] failed to load processing rewards", zap.Error(err))
		return MonitorResult{}, err
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var completed, failed, waiting, errs atomic.Int64
	var g errgroup.Group
	g.SetLimit(concurrency)

	for _, r := range rows {
		g.Go(func() error {
			res, err := s.settle(ctx, r)
			if err != nil {
				errs.Add(1)
				outcomes.WithLabelValues("error").Inc()
				zapLog.Warn("[Settlement] reward left processing",
					zap.String("reward_id", r.ID),
					zap.String("ledger_ref", r.LedgerRef),
					zap.Error(err),
				)
				return nil
			}

			outcomes.WithLabelValues(string(res)).Inc()
			switch res {
			case outcomeCompleted:
				completed.Add(1)
			case outcomeFailed:
				failed.Add(1)
			case outcomeWaiting:
				waiting.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := MonitorResult{
		Scanned:   len(rows),
		Completed: int(completed.Load()),
		Failed:    int(failed.Load()),
		Waiting:   int(waiting.Load()),
		Errors:    int(errs.Load()),
	}
	if result.Scanned > 0 {
		zapLog.Info("[Settlement] monitor run finished",
			zap.Int("scanned", result.Scanned),
			zap.Int("completed", result.Completed),
			zap.Int("failed", result.Failed),
			zap.Int("waiting", result.Waiting),
			zap.Int("errors", result.Errors),
		)
	}
	return result, nil
}

func (s *Service) settle(ctx context.Context, r *reward.Reward) (outcome, error) {
	receipt := chain.Receipt{Ref: r.LedgerRef, Status: chain.StatusNotFound}

	if r.LedgerRef != "" {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout())
		got, err := s.chain.GetStatus(callCtx, r.LedgerRef)
		cancel()

		switch {
		case err == nil:
			receipt = got
		case errors.Is(err, context.DeadlineExceeded):
			// a slow ledger counts as not found for this cycle
		default:
			return outcomeSkipped, err
		}
	}

	switch receipt.Status {
	case chain.StatusConfirmed:
		if receipt.Confirmations < 1 {
			return outcomeWaiting, nil
		}
		return s.complete(ctx, r)

	case chain.StatusNotFound:
		staleAfter := s.cfg().StaleAfter
		if staleAfter <= 0 {
			staleAfter = 24 * time.Hour
		}
		if s.clock().Sub(r.UpdatedAt) > staleAfter {
			return s.fail(ctx, r, fmt.Sprintf("transaction not found after %s", staleAfter))
		}
		return outcomeWaiting, nil

	case chain.StatusError:
		reason := receipt.Message
		if reason == "" {
			reason = "ledger reported an error"
		}
		return s.fail(ctx, r, reason)

	default:
		return outcomeWaiting, nil
	}
}

// complete marks the reward completed and credits the user's balance in one
// transaction. A reward already moved by another worker is skipped.
func (s *Service) complete(ctx context.Context, r *reward.Reward) (outcome, error) {
	res := outcomeSkipped
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock()
		updates := map[string]any{
			"status":       reward.StatusCompleted,
			"completed_at": now,
			"updated_at":   now,
		}
		n, err := s.rewards.WithTrx(tx).UpdateWhere(ctx, r.ID, &reward.Reward{Status: reward.StatusProcessing}, &updates)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		if _, err := s.crediter.Credit(ctx, tx, ledger.CreditRequest{
			UserID:      r.UserID,
			Amount:      r.Amount,
			ReferenceID: CreditReference(r.ID),
			Description: fmt.Sprintf("Reward for case %s", r.CaseID),
			Metadata: map[string]any{
				"reward_id":  r.ID,
				"case_id":    r.CaseID,
				"ledger_ref": r.LedgerRef,
			},
		}); err != nil {
			return err
		}

		res = outcomeCompleted
		return nil
	})
	if err != nil {
		return outcomeSkipped, err
	}

	if res == outcomeCompleted {
		logger.FromContext(ctx).Info("[Settlement] reward completed",
			zap.String("reward_id", r.ID),
			zap.String("user_id", r.UserID),
			zap.String("amount", r.Amount.StringFixed(2)),
		)
	}
	return res, nil
}

func (s *Service) fail(ctx context.Context, r *reward.Reward, reason string) (outcome, error) {
	now := s.clock()
	updates := map[string]any{
		"status":         reward.StatusFailed,
		"failure_reason": reason,
		"updated_at":     now,
	}
	n, err := s.rewards.UpdateWhere(ctx, r.ID, &reward.Reward{Status: reward.StatusProcessing}, &updates)
	if err != nil {
		return outcomeSkipped, err
	}
	if n == 0 {
		return outcomeSkipped, nil
	}

	logger.FromContext(ctx).Warn("[Settlement] reward failed",
		zap.String("reward_id", r.ID),
		zap.String("ledger_ref", r.LedgerRef),
		zap.String("reason", reason),
	)
	return outcomeFailed, nil
}
