package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"moralduel-controlplane/pkg/authz"
	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// RegisterHandlers binds the queue tasks to the worker mux.
func RegisterHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.JobRun, s.HandleJobRun)
	mux.HandleFunc(taskname.CaseArchive, s.HandleArchive)
	mux.HandleFunc(taskname.CaseModerate, s.HandleModerate)
	mux.HandleFunc(taskname.CaseReconcile, s.HandleReconcile)
}

// permanent stops asynq from retrying errors a retry cannot fix.
func permanent(err error) error {
	var base errutil.BaseError
	if !errors.As(err, &base) {
		return err
	}
	switch base.Code {
	case errutil.StatusNotFound, errutil.StatusConflict, errutil.StatusValidationFailed, errutil.StatusForbidden:
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

func decodeCase(t *asynq.Task) (CasePayload, error) {
	var payload CasePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.CaseID == "" {
		zap.L().Error("invalid case task payload", zap.String("task_type", t.Type()), zap.Error(err))
		return payload, permanent(ErrInvalidPayload)
	}
	return payload, nil
}

func (s *Service) HandleJobRun(ctx context.Context, t *asynq.Task) error {
	var payload JobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid job payload", zap.Error(err))
		return permanent(ErrInvalidPayload)
	}

	_, err := s.RunJob(ctx, payload.Name, TriggerManual)
	if errors.Is(err, ErrJobRunning) {
		return nil
	}
	return permanent(err)
}

func (s *Service) HandleArchive(ctx context.Context, t *asynq.Task) error {
	payload, err := decodeCase(t)
	if err != nil {
		return err
	}
	return permanent(s.Archive(ctx, payload.CaseID))
}

func (s *Service) HandleModerate(ctx context.Context, t *asynq.Task) error {
	payload, err := decodeCase(t)
	if err != nil {
		return err
	}

	c, result, err := s.cases.Moderate(ctx, payload.CaseID, authz.RoleSystem)
	if err != nil {
		return permanent(err)
	}

	zap.L().Info("case moderated",
		zap.String("case_id", payload.CaseID),
		zap.String("status", string(c.Status)),
		zap.Bool("approved", result.Approved),
	)
	return nil
}

func (s *Service) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	payload, err := decodeCase(t)
	if err != nil {
		return err
	}

	res, err := s.reconciler.Reconcile(ctx, payload.CaseID)
	if err != nil {
		return permanent(err)
	}

	zap.L().Info("case counters reconciled",
		zap.String("case_id", res.CaseID),
		zap.Bool("case_repaired", res.CaseRepaired),
		zap.Int("votes_repaired", res.VotesRepaired),
		zap.Int("arguments_repaired", res.ArgsRepaired),
	)
	return nil
}
