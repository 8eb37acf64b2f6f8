package cases

import (
	"context"

	"moralduel-controlplane/pkg/chain"
	"moralduel-controlplane/pkg/db/option"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/pkg/security"

	"go.uber.org/zap"
)

const verifyBatch = 50

// VerifyCommitments checks active cases whose verdict hash was committed to
// the external ledger and stamps the ones the ledger has confirmed.
func (s *Service) VerifyCommitments(ctx context.Context) (int, error) {
	zapLog := logger.FromContext(ctx)

	pending, err := s.cases.Find(ctx, &Case{Status: StatusActive},
		option.WithWhere("ledger_ref <> ''"),
		option.WithWhere("commitment_verified_at IS NULL"),
		option.WithLimit(verifyBatch),
	)
	if err != nil {
		zapLog.Error("[Commitment] failed to query cases", zap.Error(err))
		return 0, err
	}

	verified := 0
	for _, c := range pending {
		if !security.VerifyCommitment(c.VerdictHash, string(c.Verdict), c.VerdictReasoning) {
			zapLog.Error("[Commitment] stored verdict does not match its hash", zap.String("case_id", c.ID))
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, ledgerTimeout(s.cfg()))
		receipt, err := s.ledger.GetStatus(callCtx, c.LedgerRef)
		cancel()
		if err != nil {
			zapLog.Warn("[Commitment] ledger lookup failed", zap.String("case_id", c.ID), zap.Error(err))
			continue
		}
		if receipt.Status != chain.StatusConfirmed || receipt.Confirmations < 1 {
			continue
		}

		updates := map[string]any{"commitment_verified_at": s.clock()}
		if err := s.cases.Update(ctx, c.ID, &updates); err != nil {
			zapLog.Warn("[Commitment] failed to stamp case", zap.String("case_id", c.ID), zap.Error(err))
			continue
		}
		verified++
	}

	return verified, nil
}
