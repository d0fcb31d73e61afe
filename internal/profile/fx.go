package profile

import (
	"github.com/smallbiznis/virtuepath/internal/profile/repository"
	"github.com/smallbiznis/virtuepath/internal/profile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("profile.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
