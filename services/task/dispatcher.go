package task

import (
	"context"
	"encoding/json"
	"errors"

	"moralduel-controlplane/pkg/authz"
	"moralduel-controlplane/pkg/db/option"
	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/pkg/minio"
	"moralduel-controlplane/pkg/repository"
	pkgtask "moralduel-controlplane/pkg/task"
	"moralduel-controlplane/pkg/taskname"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dispatcher enqueues work for the worker process. It carries no domain
// services so the API process and the cases service can depend on it.
type Dispatcher struct {
	enqueuer pkgtask.Enqueuer
	authz    authz.Authorizer
	storage  minio.Storage

	jobs repository.Repository[Job]
}

type DispatcherParams struct {
	fx.In
	DB       *gorm.DB
	Enqueuer pkgtask.Enqueuer
	Authz    authz.Authorizer
	Storage  minio.Storage
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		enqueuer: p.Enqueuer,
		authz:    p.Authz,
		storage:  p.Storage,

		jobs: repository.ProvideStore[Job](p.DB),
	}
}

// caseTaskID keeps one queued task per case and task type.
func caseTaskID(typename, caseID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(typename+":"+caseID)).String()
}

func (d *Dispatcher) enqueueCase(ctx context.Context, typename, caseID string, opts ...asynq.Option) error {
	payload, err := json.Marshal(CasePayload{CaseID: caseID})
	if err != nil {
		return err
	}

	opts = append(opts, asynq.TaskID(caseTaskID(typename, caseID)))
	info, err := d.enqueuer.Enqueue(ctx, asynq.NewTask(typename, payload), opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		logger.FromContext(ctx).Error("failed to enqueue case task",
			zap.String("task_type", typename),
			zap.String("case_id", caseID),
			zap.Error(err),
		)
		return ErrEnqueueFailed.Wrap(err)
	}

	logger.FromContext(ctx).Info("case task enqueued",
		zap.String("task_type", typename),
		zap.String("case_id", caseID),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return nil
}

// ArchiveLater queues the snapshot upload of a closed case.
func (d *Dispatcher) ArchiveLater(ctx context.Context, caseID string) error {
	if !d.storage.Enabled() {
		return nil
	}
	return d.enqueueCase(ctx, taskname.CaseArchive, caseID,
		asynq.Queue(pkgtask.QueueLow),
		asynq.MaxRetry(5),
	)
}

// ModerateLater queues automatic moderation of a pending case.
func (d *Dispatcher) ModerateLater(ctx context.Context, caseID string) error {
	return d.enqueueCase(ctx, taskname.CaseModerate, caseID,
		asynq.Queue(pkgtask.QueueDefault),
		asynq.MaxRetry(3),
	)
}

// ReconcileLater queues a counter reconciliation of a case.
func (d *Dispatcher) ReconcileLater(ctx context.Context, caseID string) error {
	return d.enqueueCase(ctx, taskname.CaseReconcile, caseID,
		asynq.Queue(pkgtask.QueueLow),
		asynq.MaxRetry(1),
	)
}

// Trigger queues a manual run of a scheduled job for role.
func (d *Dispatcher) Trigger(ctx context.Context, name, role string) (string, error) {
	if !taskname.IsScheduled(name) {
		return "", ErrUnknownJob
	}
	if !d.authz.Allowed(role, authz.ObjectJob, authz.ActionTrigger) {
		return "", ErrTriggerDenied
	}

	payload, err := json.Marshal(JobPayload{Name: name})
	if err != nil {
		return "", errutil.Internal("failed to encode job payload", err)
	}

	info, err := d.enqueuer.Enqueue(ctx, asynq.NewTask(taskname.JobRun, payload),
		asynq.Queue(pkgtask.QueueCritical),
		asynq.MaxRetry(0),
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to enqueue job trigger", zap.String("job", name), zap.Error(err))
		return "", ErrEnqueueFailed.Wrap(err)
	}

	logger.FromContext(ctx).Info("job triggered",
		zap.String("job", name),
		zap.String("role", role),
		zap.String("task_id", info.ID),
	)
	return info.ID, nil
}

// History returns the latest runs of a job, newest first.
func (d *Dispatcher) History(ctx context.Context, name string, limit int) ([]*Job, error) {
	if name != "" && !taskname.IsScheduled(name) {
		return nil, ErrUnknownJob
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	out, err := d.jobs.Find(ctx, &Job{Name: name},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "started_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"started_at": true},
		}),
		option.WithLimit(limit),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list job runs", err)
	}
	return out, nil
}
