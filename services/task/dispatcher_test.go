package task

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"moralduel-controlplane/pkg/authz"
	"moralduel-controlplane/pkg/repository"
	pkgtask "moralduel-controlplane/pkg/task"
	"moralduel-controlplane/pkg/taskname"
	"moralduel-controlplane/services/testutil"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type enqueued struct {
	task *asynq.Task
	opts []asynq.Option
}

type enqueuerStub struct {
	tasks []enqueued
	seen  map[string]bool
	err   error
}

func (e *enqueuerStub) Enqueue(ctx context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}

	info := &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(e.tasks)+1), Queue: pkgtask.QueueDefault}
	for _, o := range opts {
		switch o.Type() {
		case asynq.TaskIDOpt:
			id := o.Value().(string)
			if e.seen[id] {
				return nil, fmt.Errorf("failed to enqueue task %s: %w", t.Type(), asynq.ErrTaskIDConflict)
			}
			if e.seen == nil {
				e.seen = map[string]bool{}
			}
			e.seen[id] = true
			info.ID = id
		case asynq.QueueOpt:
			info.Queue = o.Value().(string)
		}
	}

	e.tasks = append(e.tasks, enqueued{task: t, opts: opts})
	return info, nil
}

func newDispatcher(t *testing.T, storage *storageStub) (*Dispatcher, *enqueuerStub) {
	t.Helper()

	az, err := authz.NewDefault()
	require.NoError(t, err)

	db := testutil.NewTestDB(t, Models()...)
	enq := &enqueuerStub{}
	return &Dispatcher{
		enqueuer: enq,
		authz:    az,
		storage:  storage,
		jobs:     repository.ProvideStore[Job](db),
	}, enq
}

func queueOf(e enqueued) string {
	for _, o := range e.opts {
		if o.Type() == asynq.QueueOpt {
			return o.Value().(string)
		}
	}
	return ""
}

func TestArchiveLater(t *testing.T) {
	t.Run("storage disabled", func(t *testing.T) {
		d, enq := newDispatcher(t, &storageStub{})
		require.NoError(t, d.ArchiveLater(context.Background(), "case-1"))
		require.Empty(t, enq.tasks)
	})

	t.Run("enqueues once per case", func(t *testing.T) {
		d, enq := newDispatcher(t, &storageStub{enabled: true})
		require.NoError(t, d.ArchiveLater(context.Background(), "case-1"))
		require.NoError(t, d.ArchiveLater(context.Background(), "case-1"))
		require.NoError(t, d.ArchiveLater(context.Background(), "case-2"))

		require.Len(t, enq.tasks, 2)
		require.Equal(t, taskname.CaseArchive, enq.tasks[0].task.Type())
		require.Equal(t, pkgtask.QueueLow, queueOf(enq.tasks[0]))

		var payload CasePayload
		require.NoError(t, json.Unmarshal(enq.tasks[1].task.Payload(), &payload))
		require.Equal(t, "case-2", payload.CaseID)
	})

	t.Run("queue failure", func(t *testing.T) {
		d, enq := newDispatcher(t, &storageStub{enabled: true})
		enq.err = fmt.Errorf("dial tcp: connection refused")
		require.ErrorIs(t, d.ArchiveLater(context.Background(), "case-1"), ErrEnqueueFailed)
	})
}

func TestCaseTaskIDsDifferByType(t *testing.T) {
	require.Equal(t, caseTaskID(taskname.CaseArchive, "c1"), caseTaskID(taskname.CaseArchive, "c1"))
	require.NotEqual(t, caseTaskID(taskname.CaseArchive, "c1"), caseTaskID(taskname.CaseModerate, "c1"))
}

func TestModerateAndReconcileLater(t *testing.T) {
	d, enq := newDispatcher(t, &storageStub{})

	require.NoError(t, d.ModerateLater(context.Background(), "case-1"))
	require.NoError(t, d.ReconcileLater(context.Background(), "case-1"))

	require.Len(t, enq.tasks, 2)
	require.Equal(t, taskname.CaseModerate, enq.tasks[0].task.Type())
	require.Equal(t, pkgtask.QueueDefault, queueOf(enq.tasks[0]))
	require.Equal(t, taskname.CaseReconcile, enq.tasks[1].task.Type())
}

func TestTrigger(t *testing.T) {
	d, enq := newDispatcher(t, &storageStub{})

	_, err := d.Trigger(context.Background(), "case:delete", authz.RoleAdmin)
	require.ErrorIs(t, err, ErrUnknownJob)

	_, err = d.Trigger(context.Background(), taskname.CaseSweep, authz.RoleUser)
	require.ErrorIs(t, err, ErrTriggerDenied)

	_, err = d.Trigger(context.Background(), taskname.CaseSweep, authz.RoleModerator)
	require.ErrorIs(t, err, ErrTriggerDenied)

	id, err := d.Trigger(context.Background(), taskname.CaseSweep, authz.RoleAdmin)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Len(t, enq.tasks, 1)
	require.Equal(t, taskname.JobRun, enq.tasks[0].task.Type())
	require.Equal(t, pkgtask.QueueCritical, queueOf(enq.tasks[0]))

	var payload JobPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].task.Payload(), &payload))
	require.Equal(t, taskname.CaseSweep, payload.Name)
}

func TestHistory(t *testing.T) {
	d, _ := newDispatcher(t, &storageStub{})

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, d.jobs.Create(context.Background(), &Job{
			ID:        fmt.Sprintf("job-%d", i),
			Name:      taskname.CaseSweep,
			Status:    JobSuccess,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, d.jobs.Create(context.Background(), &Job{
		ID: "other", Name: taskname.LeaderboardRefresh, Status: JobSuccess, StartedAt: base,
	}))

	out, err := d.History(context.Background(), taskname.CaseSweep, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "job-2", out[0].ID)
	require.Equal(t, "job-1", out[1].ID)

	all, err := d.History(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)

	_, err = d.History(context.Background(), "bogus", 10)
	require.ErrorIs(t, err, ErrUnknownJob)
}
