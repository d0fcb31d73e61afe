package virtue

import (
	"github.com/smallbiznis/virtuepath/internal/virtue/repository"
	"github.com/smallbiznis/virtuepath/internal/virtue/service"
	"go.uber.org/fx"
)

var Module = fx.Module("virtue.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
