package generator

import (
	"moralduel-controlplane/services/cases"

	"go.uber.org/fx"
)

var Module = fx.Module("generator.service",
	fx.Provide(
		NewService,
		func(s *Service) cases.ContentGenerator { return s },
		func(s *Service) cases.VerdictGenerator { return s },
		func(s *Service) cases.Moderator { return s },
	),
)
