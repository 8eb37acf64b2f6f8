package participation

import "go.uber.org/fx"

var Module = fx.Module("participation.service",
	fx.Provide(NewService),
)
