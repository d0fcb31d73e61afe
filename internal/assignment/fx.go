package assignment

import (
	"github.com/smallbiznis/virtuepath/internal/assignment/repository"
	"github.com/smallbiznis/virtuepath/internal/assignment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("assignment.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
