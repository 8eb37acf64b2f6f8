package task

import (
	"context"
	"errors"
	"time"

	"moralduel-controlplane/pkg/config"
	"moralduel-controlplane/pkg/taskname"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Definition is one periodic job of the worker.
type Definition struct {
	Name      string
	Every     time.Duration
	Immediate bool
}

// Definitions lists the periodic jobs with their intervals.
func Definitions(cfg config.SchedulerConfig) []Definition {
	return []Definition{
		{Name: taskname.CaseGenerate, Every: cfg.GenerationInterval},
		{Name: taskname.CaseSweep, Every: cfg.SweepInterval, Immediate: true},
		{Name: taskname.SettlementMonitor, Every: cfg.SettlementInterval, Immediate: true},
		{Name: taskname.LeaderboardRefresh, Every: cfg.LeaderboardInterval, Immediate: true},
		{Name: taskname.BadgeCheck, Every: cfg.BadgeInterval},
	}
}

type Scheduler struct {
	cron    gocron.Scheduler
	service *Service
}

// cronLogger routes gocron's key/value logs to zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l cronLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }
func (l cronLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l cronLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }

func NewScheduler(cfg *config.Config, svc *Service) (*Scheduler, error) {
	cron, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithStopTimeout(30*time.Second),
		gocron.WithLogger(cronLogger{s: zap.S().Named("gocron")}),
	)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{cron: cron, service: svc}
	for _, def := range Definitions(cfg.Scheduler) {
		if def.Every <= 0 {
			zap.L().Warn("[Scheduler] job disabled, no interval", zap.String("job", def.Name))
			continue
		}

		opts := []gocron.JobOption{
			gocron.WithName(def.Name),
			gocron.WithTags(def.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		}
		if def.Immediate {
			opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
		}

		if _, err := cron.NewJob(gocron.DurationJob(def.Every), gocron.NewTask(s.run, def.Name), opts...); err != nil {
			return nil, err
		}
		zap.L().Info("[Scheduler] job registered", zap.String("job", def.Name), zap.Duration("every", def.Every))
	}

	return s, nil
}

func (s *Scheduler) run(ctx context.Context, name string) {
	_, err := s.service.RunJob(ctx, name, TriggerScheduled)
	if err != nil && !errors.Is(err, ErrJobRunning) {
		zap.L().Warn("[Scheduler] run ended with error", zap.String("job", name), zap.Error(err))
	}
}

// StartScheduler is invoked by fx when the worker starts.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.cron.Start()
			zap.L().Info("[Scheduler] started", zap.Int("jobs", len(s.cron.Jobs())))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Warn("[Scheduler] stopping")
			return s.cron.Shutdown()
		},
	})
}
