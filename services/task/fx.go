package task

import (
	"moralduel-controlplane/services/cases"

	"go.uber.org/fx"
)

// Module provides the enqueue side used by the API and by case closure.
var Module = fx.Module("task.dispatcher",
	fx.Provide(
		NewDispatcher,
		func(d *Dispatcher) cases.Archiver { return d },
	),
)

// Worker runs the periodic jobs and the queue handlers.
var Worker = fx.Module("task.worker",
	fx.Provide(
		NewService,
		NewScheduler,
	),
	fx.Invoke(
		RegisterHandlers,
		StartScheduler,
	),
)
