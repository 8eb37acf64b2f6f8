package cases

import (
	"context"
	"errors"
	"time"

	"moralduel-controlplane/pkg/db/option"
	"moralduel-controlplane/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errAlreadyClosed = errors.New("case already closed")

type SweepResult struct {
	Scanned int `json:"scanned"`
	Closed  int `json:"closed"`
	Failed  int `json:"failed"`
	Rewards int `json:"rewards"`
}

// SweepExpired closes every active case whose voting window has ended. Each
// case is handled on its own; one failure never stops the batch.
func (s *Service) SweepExpired(ctx context.Context) (SweepResult, error) {
	zapLog := logger.FromContext(ctx)
	now := s.clock()

	batch := s.cfg().Case.SweepBatch
	if batch <= 0 {
		batch = 100
	}

	expired, err := s.cases.Find(ctx, &Case{Status: StatusActive},
		option.WithWhere("closes_at <= ?", now),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "closes_at",
			OrderBy: "asc",
			Allow:   map[string]bool{"closes_at": true},
		}),
		option.WithLimit(batch),
	)
	if err != nil {
		zapLog.Error("[Sweep] failed to query expired cases", zap.Error(err))
		return SweepResult{}, err
	}

	result := SweepResult{Scanned: len(expired)}
	for _, c := range expired {
		n, err := s.closeCase(ctx, c.ID, now)
		if errors.Is(err, errAlreadyClosed) {
			continue
		}
		if err != nil {
			result.Failed++
			zapLog.Error("[Sweep] failed to close case", zap.String("case_id", c.ID), zap.Error(err))
			continue
		}
		result.Closed++
		result.Rewards += n
	}

	if result.Scanned > 0 {
		zapLog.Info("[Sweep] expired cases processed",
			zap.Int("scanned", result.Scanned),
			zap.Int("closed", result.Closed),
			zap.Int("failed", result.Failed),
			zap.Int("rewards", result.Rewards),
		)
	}
	return result, nil
}

// closeCase flags the top arguments and closes the case in one transaction,
// then distributes rewards. Reward errors are logged and do not undo the
// closure.
func (s *Service) closeCase(ctx context.Context, caseID string, now time.Time) (int, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("case_id", caseID))

	var closed *Case
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		caseTx := s.cases.WithTrx(tx)
		argTx := s.arguments.WithTrx(tx)

		c, err := caseTx.FindOne(ctx, &Case{ID: caseID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if c == nil || c.Status != StatusActive || c.ClosesAt == nil || c.ClosesAt.After(now) {
			return errAlreadyClosed
		}

		args, err := argTx.Find(ctx, &Argument{CaseID: caseID})
		if err != nil {
			return err
		}

		for rank, arg := range RankTopArguments(args) {
			updates := map[string]any{
				"is_top3":  true,
				"top_rank": rank + 1,
			}
			if err := argTx.Update(ctx, arg.ID, &updates); err != nil {
				return err
			}
		}

		updates := map[string]any{
			"status":    StatusClosed,
			"closed_at": now,
		}
		n, err := caseTx.UpdateWhere(ctx, caseID, &Case{Status: StatusActive}, &updates)
		if err != nil {
			return err
		}
		if n == 0 {
			return errAlreadyClosed
		}

		c.Status = StatusClosed
		c.ClosedAt = &now
		closed = c
		return nil
	})
	if err != nil {
		return 0, err
	}

	zapLog.Info("case closed", zap.Int64("total_participants", closed.TotalParticipants))

	rewards := s.distribute(ctx, closed)

	if s.archiver != nil {
		if err := s.archiver.ArchiveLater(ctx, caseID); err != nil {
			zapLog.Warn("failed to schedule case archive", zap.Error(err))
		}
	}

	return rewards, nil
}

func (s *Service) distribute(ctx context.Context, c *Case) int {
	if s.distributor == nil {
		return 0
	}

	zapLog := logger.FromContext(ctx).With(zap.String("case_id", c.ID))

	votes, err := s.votes.Find(ctx, &Vote{CaseID: c.ID})
	if err != nil {
		zapLog.Error("failed to load votes for rewards", zap.Error(err))
		return 0
	}

	args, err := s.arguments.Find(ctx, &Argument{CaseID: c.ID})
	if err != nil {
		zapLog.Error("failed to load arguments for rewards", zap.Error(err))
		return 0
	}

	n, err := s.distributor.Distribute(ctx, c, votes, args)
	if err != nil {
		zapLog.Error("failed to distribute rewards", zap.Error(err))
		return 0
	}
	return n
}
