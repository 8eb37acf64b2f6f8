package task

import (
	"context"
	"fmt"
	"sort"
	"time"

	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/services/cases"
	"moralduel-controlplane/services/reward"

	"go.uber.org/zap"
)

var ErrNotArchivable = errutil.BaseError{Code: errutil.StatusConflict, Message: "only closed cases can be archived"}

// CaseSnapshot is the document stored for a closed case.
type CaseSnapshot struct {
	Case         *cases.Case       `json:"case"`
	TopArguments []*cases.Argument `json:"top_arguments"`
	Rewards      []*reward.Reward  `json:"rewards"`
	ArchivedAt   time.Time         `json:"archived_at"`
}

// ArchiveKey is the object key of a case snapshot, partitioned by closing day.
func ArchiveKey(c *cases.Case) string {
	day := c.CreatedAt
	if c.ClosedAt != nil {
		day = *c.ClosedAt
	}
	return fmt.Sprintf("cases/%s/%s.json", day.UTC().Format("2006/01/02"), c.ID)
}

// Archive uploads the snapshot of a closed case. Re-running it overwrites the
// same object.
func (s *Service) Archive(ctx context.Context, caseID string) error {
	zapLog := logger.FromContext(ctx).With(zap.String("case_id", caseID))

	if !s.storage.Enabled() {
		zapLog.Debug("[Archive] storage disabled, skipping")
		return nil
	}

	detail, err := s.cases.Get(ctx, caseID, "")
	if err != nil {
		return err
	}
	if detail.Case.Status != cases.StatusClosed {
		return ErrNotArchivable
	}

	rewards, err := s.rewards.ForCase(ctx, caseID)
	if err != nil {
		return err
	}

	top := make([]*cases.Argument, 0, 3)
	for _, a := range detail.Arguments {
		if a.IsTop3 {
			top = append(top, a)
		}
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].TopRank < top[j].TopRank })

	snapshot := CaseSnapshot{
		Case:         detail.Case,
		TopArguments: top,
		Rewards:      rewards,
		ArchivedAt:   s.now().UTC(),
	}

	key := ArchiveKey(detail.Case)
	if err := s.storage.PutJSON(ctx, key, snapshot); err != nil {
		zapLog.Error("[Archive] failed to upload snapshot", zap.String("key", key), zap.Error(err))
		return err
	}

	zapLog.Info("[Archive] case archived", zap.String("key", key), zap.Int("rewards", len(rewards)))
	return nil
}
