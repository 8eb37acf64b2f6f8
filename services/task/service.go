package task

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"moralduel-controlplane/pkg/errutil"
	"moralduel-controlplane/pkg/featureflags"
	"moralduel-controlplane/pkg/lock"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/pkg/minio"
	"moralduel-controlplane/pkg/repository"
	"moralduel-controlplane/pkg/taskname"
	"moralduel-controlplane/services/badge"
	"moralduel-controlplane/services/cases"
	"moralduel-controlplane/services/leaderboard"
	"moralduel-controlplane/services/participation"
	"moralduel-controlplane/services/reward"
	"moralduel-controlplane/services/settlement"

	"github.com/bwmarrin/snowflake"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CaseRunner interface {
	CreateSystemCase(ctx context.Context) (*cases.Case, error)
	SweepExpired(ctx context.Context) (cases.SweepResult, error)
	VerifyCommitments(ctx context.Context) (int, error)
	Moderate(ctx context.Context, caseID, role string) (*cases.Case, cases.ModerationResult, error)
	Get(ctx context.Context, caseID, viewerID string) (*cases.CaseDetail, error)
}

type SettlementRunner interface {
	Monitor(ctx context.Context) (settlement.MonitorResult, error)
}

type LeaderboardRunner interface {
	Refresh(ctx context.Context) (leaderboard.RefreshResult, error)
}

type BadgeRunner interface {
	Check(ctx context.Context) (badge.CheckResult, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, caseID string) (participation.ReconcileResult, error)
}

type RewardSource interface {
	ForCase(ctx context.Context, caseID string) ([]*reward.Reward, error)
}

// Service executes the periodic jobs and the per-case queue tasks.
type Service struct {
	node    *snowflake.Node
	flags   featureflags.FeatureFlag
	locker  gocron.Locker
	storage minio.Storage
	now     func() time.Time

	cases       CaseRunner
	settlement  SettlementRunner
	leaderboard LeaderboardRunner
	badges      BadgeRunner
	reconciler  Reconciler
	rewards     RewardSource

	jobs repository.Repository[Job]
}

type ServiceParams struct {
	fx.In
	DB            *gorm.DB
	Node          *snowflake.Node
	Flags         featureflags.FeatureFlag
	Locker        gocron.Locker
	Storage       minio.Storage
	Cases         *cases.Service
	Settlement    *settlement.Service
	Leaderboard   *leaderboard.Service
	Badges        *badge.Service
	Participation *participation.Service
	Rewards       *reward.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:    p.Node,
		flags:   p.Flags,
		locker:  p.Locker,
		storage: p.Storage,
		now:     time.Now,

		cases:       p.Cases,
		settlement:  p.Settlement,
		leaderboard: p.Leaderboard,
		badges:      p.Badges,
		reconciler:  p.Participation,
		rewards:     p.Rewards,

		jobs: repository.ProvideStore[Job](p.DB),
	}
}

type runFunc func(ctx context.Context, trigger Trigger) (map[string]any, error)

// skipped marks a run that decided not to do any work.
type skipped struct {
	reason string
}

func (e skipped) Error() string { return e.reason }

func (s *Service) runner(name string) (runFunc, bool) {
	switch name {
	case taskname.CaseGenerate:
		return s.generateCase, true
	case taskname.CaseSweep:
		return s.sweepCases, true
	case taskname.SettlementMonitor:
		return s.monitorSettlements, true
	case taskname.LeaderboardRefresh:
		return s.refreshLeaderboard, true
	case taskname.BadgeCheck:
		return s.checkBadges, true
	}
	return nil, false
}

// RunJob executes a named job under its lock and records the run. A job
// already held by another worker returns ErrJobRunning without a record.
func (s *Service) RunJob(ctx context.Context, name string, trigger Trigger) (*Job, error) {
	run, ok := s.runner(name)
	if !ok {
		return nil, ErrUnknownJob
	}

	zapLog := logger.FromContext(ctx).With(zap.String("job", name), zap.String("trigger", string(trigger)))

	held, err := s.locker.Lock(ctx, name)
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			zapLog.Info("[Scheduler] job is running elsewhere, skipping")
			jobRuns.WithLabelValues(name, string(JobSkipped)).Inc()
			return nil, ErrJobRunning
		}
		zapLog.Error("[Scheduler] failed to acquire job lock", zap.Error(err))
		return nil, errutil.Internal("failed to acquire job lock", err)
	}
	defer func() {
		if err := held.Unlock(context.WithoutCancel(ctx)); err != nil {
			zapLog.Warn("[Scheduler] failed to release job lock", zap.Error(err))
		}
	}()

	started := s.now().UTC()
	job := &Job{
		ID:        s.node.Generate().String(),
		Name:      name,
		Trigger:   trigger,
		Status:    JobRunning,
		StartedAt: started,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		zapLog.Error("[Scheduler] failed to record job", zap.Error(err))
		return nil, errutil.Internal("failed to record job", err)
	}

	meta, runErr := run(ctx, trigger)

	finished := s.now().UTC()
	job.CompletedAt = &finished
	job.DurationMs = finished.Sub(started).Milliseconds()
	job.Status = JobSuccess

	var skip skipped
	switch {
	case errors.As(runErr, &skip):
		job.Status = JobSkipped
		meta = map[string]any{"reason": skip.reason}
		runErr = nil
	case runErr != nil:
		job.Status = JobFailed
		job.ErrorMsg = runErr.Error()
	}
	if meta != nil {
		if raw, err := json.Marshal(meta); err == nil {
			job.Metadata = raw
		}
	}

	updates := map[string]any{
		"status":       job.Status,
		"error_msg":    job.ErrorMsg,
		"completed_at": finished,
		"duration_ms":  job.DurationMs,
		"metadata":     job.Metadata,
	}
	if err := s.jobs.Update(context.WithoutCancel(ctx), job.ID, &updates); err != nil {
		zapLog.Error("[Scheduler] failed to finish job record", zap.String("job_id", job.ID), zap.Error(err))
	}

	jobRuns.WithLabelValues(name, string(job.Status)).Inc()
	jobDuration.WithLabelValues(name).Observe(finished.Sub(started).Seconds())

	if runErr != nil {
		zapLog.Error("[Scheduler] job failed", zap.String("job_id", job.ID), zap.Error(runErr))
		return job, runErr
	}

	zapLog.Info("[Scheduler] job finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(job.Status)),
		zap.Int64("duration_ms", job.DurationMs),
	)
	return job, nil
}

// Scheduled generation honours the feature flag; manual runs always generate.
func (s *Service) generateCase(ctx context.Context, trigger Trigger) (map[string]any, error) {
	if trigger == TriggerScheduled && !s.flags.IsEnabled(ctx, featureflags.ScheduledCaseGeneration, true) {
		return nil, skipped{reason: "scheduled case generation disabled"}
	}

	c, err := s.cases.CreateSystemCase(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"case_id": c.ID, "code": c.Code}, nil
}

func (s *Service) sweepCases(ctx context.Context, _ Trigger) (map[string]any, error) {
	res, err := s.cases.SweepExpired(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"scanned": res.Scanned,
		"closed":  res.Closed,
		"failed":  res.Failed,
		"rewards": res.Rewards,
	}, nil
}

func (s *Service) monitorSettlements(ctx context.Context, _ Trigger) (map[string]any, error) {
	res, err := s.settlement.Monitor(ctx)
	if err != nil {
		return nil, err
	}

	meta := map[string]any{
		"scanned":   res.Scanned,
		"completed": res.Completed,
		"failed":    res.Failed,
		"waiting":   res.Waiting,
		"errors":    res.Errors,
	}

	if !s.flags.IsEnabled(ctx, featureflags.CommitmentVerification, true) {
		return meta, nil
	}

	verified, err := s.cases.VerifyCommitments(ctx)
	if err != nil {
		return meta, err
	}
	meta["commitments_verified"] = verified
	return meta, nil
}

func (s *Service) refreshLeaderboard(ctx context.Context, _ Trigger) (map[string]any, error) {
	res, err := s.leaderboard.Refresh(ctx)
	if err != nil {
		return nil, err
	}

	meta := make(map[string]any, len(res.Periods))
	for period, n := range res.Periods {
		meta[string(period)] = n
	}
	return meta, nil
}

func (s *Service) checkBadges(ctx context.Context, _ Trigger) (map[string]any, error) {
	res, err := s.badges.Check(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"users":   res.Users,
		"awarded": res.Awarded,
		"failed":  res.Failed,
	}, nil
}
