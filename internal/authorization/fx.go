package authorization

import (
	assignmentdomain "github.com/smallbiznis/virtuepath/internal/assignment/domain"
	sponsordomain "github.com/smallbiznis/virtuepath/internal/sponsor/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(func(s assignmentdomain.Service) SupervisionChecker { return s }),
	fx.Provide(func(s sponsordomain.Service) SponsorshipChecker { return s }),
	fx.Provide(NewService),
	fx.Provide(func(s *ServiceImpl) Service { return s }),
)
