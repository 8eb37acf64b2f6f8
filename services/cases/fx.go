package cases

import "go.uber.org/fx"

var Module = fx.Module("cases.service",
	fx.Provide(NewService),
)
