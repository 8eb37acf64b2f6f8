package cases

import (
	"context"
	"fmt"

	"moralduel-controlplane/pkg/authz"
	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/pkg/security"

	"go.uber.org/zap"
)

func (s *Service) findCase(ctx context.Context, caseID string) (*Case, error) {
	if caseID == "" {
		return nil, ErrCaseNotFound
	}
	c, err := s.cases.FindOne(ctx, &Case{ID: caseID})
	if err != nil {
		return nil, errutil.Internal("failed to load case", err)
	}
	if c == nil {
		return nil, ErrCaseNotFound
	}
	return c, nil
}

// Activate moves a pending case to active and starts its voting window. It
// seals a verdict first when the case has none. Activating an active case is
// a no-op.
func (s *Service) Activate(ctx context.Context, caseID, role string) (*Case, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("case_id", caseID))

	if !s.authz.Allowed(role, authz.ObjectCase, authz.ActionActivate) {
		return nil, ErrNotAllowed
	}

	c, err := s.findCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	switch c.Status {
	case StatusActive:
		return c.Revealed(), nil
	case StatusClosed:
		return nil, ErrCaseClosed
	}

	now := s.clock()
	closesAt := now.Add(s.cfg().Case.Duration)
	updates := map[string]any{
		"status":    StatusActive,
		"closes_at": closesAt,
	}

	if c.VerdictHash == "" {
		verdict, err := s.verdict.GenerateVerdict(ctx, c.Title, c.Context)
		if err != nil {
			zapLog.Error("failed to seal verdict on activation", zap.Error(err))
			return nil, ErrVerdictFailed.Wrap(err)
		}
		updates["verdict"] = verdict.Verdict
		updates["verdict_reasoning"] = verdict.Reasoning
		updates["verdict_confidence"] = verdict.Confidence
		updates["verdict_hash"] = security.Commitment(string(verdict.Verdict), verdict.Reasoning)
	}

	n, err := s.cases.UpdateWhere(ctx, c.ID, &Case{Status: StatusPendingModeration}, &updates)
	if err != nil {
		zapLog.Error("failed to activate case", zap.Error(err))
		return nil, errutil.Internal("failed to activate case", err)
	}

	c, err = s.findCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if n == 0 && c.Status != StatusActive {
		return nil, ErrCaseNotPending
	}

	if n > 0 {
		zapLog.Info("case activated", zap.Timep("closes_at", c.ClosesAt))
	}
	return c.Revealed(), nil
}

// Moderate asks the moderator about a pending case and activates it when
// approved. Moderator failures leave the case pending.
func (s *Service) Moderate(ctx context.Context, caseID, role string) (*Case, ModerationResult, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("case_id", caseID))

	if !s.authz.Allowed(role, authz.ObjectCase, authz.ActionModerate) {
		return nil, ModerationResult{}, ErrNotAllowed
	}

	c, err := s.findCase(ctx, caseID)
	if err != nil {
		return nil, ModerationResult{}, err
	}

	switch c.Status {
	case StatusActive:
		return c.Revealed(), ModerationResult{Approved: true}, nil
	case StatusClosed:
		return nil, ModerationResult{}, ErrCaseClosed
	}

	result, err := s.moderator.ModerateCase(ctx, c.Title, c.Context)
	if err != nil {
		zapLog.Warn("moderation failed, keeping case pending", zap.Error(err))
		result = ModerationResult{
			Approved: false,
			Reason:   fmt.Sprintf("moderation unavailable: %v", err),
		}
	}

	if !result.Approved {
		updates := map[string]any{"moderation_reason": result.Reason}
		if err := s.cases.Update(ctx, c.ID, &updates); err != nil {
			return nil, result, errutil.Internal("failed to record moderation result", err)
		}
		c.ModerationReason = result.Reason
		zapLog.Info("case rejected by moderation", zap.String("reason", result.Reason))
		return c.Revealed(), result, nil
	}

	activated, err := s.Activate(ctx, caseID, authz.RoleSystem)
	if err != nil {
		return nil, result, err
	}
	return activated, result, nil
}
