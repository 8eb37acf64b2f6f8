package participation

import (
	"context"

	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/services/cases"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ReconcileResult struct {
	CaseID        string `json:"case_id"`
	CaseRepaired  bool   `json:"case_repaired"`
	VotesRepaired int    `json:"votes_repaired"`
	ArgsRepaired  int    `json:"arguments_repaired"`
}

type countRow struct {
	Owner string
	Total int64
}

// Reconcile recomputes the derived counters of a case from its vote and
// like rows and rewrites the ones that drifted.
func (s *Service) Reconcile(ctx context.Context, caseID string) (ReconcileResult, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("case_id", caseID))
	result := ReconcileResult{CaseID: caseID}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.lockCase(ctx, tx, caseID)
		if err != nil {
			return err
		}

		votes, err := s.votes.WithTrx(tx).Find(ctx, &cases.Vote{CaseID: caseID})
		if err != nil {
			return err
		}

		var yes, no int64
		for _, v := range votes {
			if v.Side == cases.SideYes {
				yes++
			} else {
				no++
			}
		}
		total := int64(len(votes))
		if c.YesVotes != yes || c.NoVotes != no || c.TotalParticipants != total {
			updates := map[string]any{
				"yes_votes":          yes,
				"no_votes":           no,
				"total_participants": total,
			}
			if err := s.cases.WithTrx(tx).Update(ctx, caseID, &updates); err != nil {
				return err
			}
			result.CaseRepaired = true
		}

		byUser, err := s.countLikes(ctx, tx, caseID, "user_id")
		if err != nil {
			return err
		}
		for _, v := range votes {
			want := byUser[v.UserID]
			if v.LikeCount == want {
				continue
			}
			updates := map[string]any{"like_count": want}
			if err := s.votes.WithTrx(tx).Update(ctx, v.ID, &updates); err != nil {
				return err
			}
			result.VotesRepaired++
		}

		byArg, err := s.countLikes(ctx, tx, caseID, "argument_id")
		if err != nil {
			return err
		}
		args, err := s.arguments.WithTrx(tx).Find(ctx, &cases.Argument{CaseID: caseID})
		if err != nil {
			return err
		}
		for _, a := range args {
			want := byArg[a.ID]
			if a.LikeCount == want {
				continue
			}
			updates := map[string]any{"like_count": want}
			if err := s.arguments.WithTrx(tx).Update(ctx, a.ID, &updates); err != nil {
				return err
			}
			result.ArgsRepaired++
		}
		return nil
	})
	if err != nil {
		return result, passthrough("failed to reconcile case", err)
	}

	if result.CaseRepaired || result.VotesRepaired > 0 || result.ArgsRepaired > 0 {
		zapLog.Warn("participation counters repaired",
			zap.Bool("case", result.CaseRepaired),
			zap.Int("votes", result.VotesRepaired),
			zap.Int("arguments", result.ArgsRepaired),
		)
	}
	return result, nil
}

func (s *Service) countLikes(ctx context.Context, tx *gorm.DB, caseID, column string) (map[string]int64, error) {
	var rows []countRow
	err := tx.WithContext(ctx).
		Model(&cases.ArgumentLike{}).
		Select(column+" AS owner, COUNT(*) AS total").
		Where("case_id = ?", caseID).
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, errutil.Internal("failed to count likes", err)
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Owner] = r.Total
	}
	return out, nil
}
