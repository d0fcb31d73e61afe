package main

import (
	"github.com/smallbiznis/virtuepath/internal/clock"
	"github.com/smallbiznis/virtuepath/internal/config"
	"github.com/smallbiznis/virtuepath/internal/idgen"
	"github.com/smallbiznis/virtuepath/internal/observability"
	"github.com/smallbiznis/virtuepath/internal/outbox"
	"github.com/smallbiznis/virtuepath/internal/server"
	"github.com/smallbiznis/virtuepath/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		idgen.Module,
		db.Module,
		clock.Module,
		server.Module,

		// publishes committed outbox events to the broker
		outbox.RelayModule,
	)
	app.Run()
}
