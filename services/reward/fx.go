package reward

import (
	"moralduel-controlplane/services/cases"

	"go.uber.org/fx"
)

var Module = fx.Module("reward.service",
	fx.Provide(
		NewService,
		func(s *Service) cases.Distributor { return s },
	),
)
