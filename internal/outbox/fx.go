package outbox

import (
	"context"

	"github.com/smallbiznis/virtuepath/internal/clock"
	"github.com/smallbiznis/virtuepath/internal/config"
	"github.com/smallbiznis/virtuepath/internal/observability/metrics"
	"github.com/smallbiznis/virtuepath/internal/outbox/domain"
	"github.com/smallbiznis/virtuepath/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module provides the Writer used by services.
var Module = fx.Module("outbox",
	fx.Provide(NewWriter),
)

// RelayProviders builds the Relay without starting its loop.
var RelayProviders = fx.Options(
	fx.Provide(NewSink),
	fx.Provide(provideRelay),
)

// RelayModule runs the relay loop for the lifetime of the app.
var RelayModule = fx.Module("outbox.relay",
	RelayProviders,
	fx.Invoke(runRelay),
)

func NewSink(cfg config.Config, log *zap.Logger) domain.Sink {
	if cfg.Outbox.Enabled() {
		return NewAMQPSink(cfg.Outbox.AMQPURL, cfg.Outbox.Exchange, log)
	}
	return NewLogSink(log)
}

type relayParams struct {
	fx.In

	DB      *gorm.DB
	Sink    domain.Sink
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
	Config  config.Config
	Locker  *ratelimit.Locker `optional:"true"`
}

func provideRelay(p relayParams) *Relay {
	relay := NewRelay(p.DB, p.Sink, p.Log, p.Clock, p.Metrics, p.Config.Outbox.BatchSize).
		WithMaxAttempts(p.Config.Outbox.MaxAttempts)
	if p.Locker != nil {
		relay.WithLock(p.Locker)
	}
	return relay
}

func runRelay(lc fx.Lifecycle, relay *Relay, sink domain.Sink, cfg config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				relay.Run(ctx, cfg.Outbox.PollInterval)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return sink.Close()
		},
	})
}
