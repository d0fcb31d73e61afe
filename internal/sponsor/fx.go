package sponsor

import (
	"github.com/smallbiznis/virtuepath/internal/sponsor/repository"
	"github.com/smallbiznis/virtuepath/internal/sponsor/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sponsor.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
