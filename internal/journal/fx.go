package journal

import (
	"github.com/smallbiznis/virtuepath/internal/journal/repository"
	"github.com/smallbiznis/virtuepath/internal/journal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("journal.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
