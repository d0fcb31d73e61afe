package outbox

import (
	"context"
	"time"

	"github.com/smallbiznis/virtuepath/internal/clock"
	"github.com/smallbiznis/virtuepath/internal/observability/metrics"
	"github.com/smallbiznis/virtuepath/internal/outbox/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultBatchSize   = 50
	defaultMaxAttempts = 10
	relayLockKey       = "virtuepath:outbox:relay"
)

// Lock serializes relay ticks across instances.
type Lock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// Relay moves unpublished events to the sink. Delivery is at least once: an
// event is marked published only after the sink accepted it. An event the sink
// keeps rejecting is parked after maxAttempts so later events can flow; parked
// events stay in the table until RequeueParked.
type Relay struct {
	db          *gorm.DB
	sink        domain.Sink
	log         *zap.Logger
	clock       clock.Clock
	metrics     *metrics.Metrics
	batchSize   int
	maxAttempts int
	lock        Lock
}

func NewRelay(db *gorm.DB, sink domain.Sink, log *zap.Logger, clk clock.Clock, m *metrics.Metrics, batchSize int) *Relay {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Relay{
		db:          db,
		sink:        sink,
		log:         log.Named("outbox.relay"),
		clock:       clk,
		metrics:     m,
		batchSize:   batchSize,
		maxAttempts: defaultMaxAttempts,
	}
}

// WithMaxAttempts sets how many failed deliveries park an event. Values below
// one keep the default.
func (r *Relay) WithMaxAttempts(n int) *Relay {
	if n > 0 {
		r.maxAttempts = n
	}
	return r
}

// WithLock makes Run skip ticks while another instance holds the relay lock.
func (r *Relay) WithLock(lock Lock) *Relay {
	r.lock = lock
	return r
}

// ProcessPending relays one batch and returns how many events were published.
func (r *Relay) ProcessPending(ctx context.Context) (int, error) {
	var events []domain.Event
	err := r.db.WithContext(ctx).
		Where("published = ? AND parked_at IS NULL", false).
		Order("id ASC").
		Limit(r.batchSize).
		Find(&events).Error
	if err != nil {
		return 0, err
	}

	published := 0
	for _, event := range events {
		if err := r.sink.Publish(ctx, event); err != nil {
			r.log.Warn("outbox publish failed",
				zap.String("event_id", event.ID.String()),
				zap.String("event_type", event.EventType),
				zap.Int("attempts", event.Attempts+1),
				zap.Error(err),
			)
			parked, markErr := r.markFailed(ctx, event, err)
			if markErr != nil {
				return published, markErr
			}
			if !parked {
				// later events wait for the next tick so order is kept
				break
			}
			r.log.Error("outbox event parked",
				zap.String("event_id", event.ID.String()),
				zap.String("event_type", event.EventType),
				zap.Int("attempts", event.Attempts+1),
			)
			r.metrics.RecordOutboxParked(ctx, event.EventType)
			continue
		}
		if err := r.markPublished(ctx, event); err != nil {
			return published, err
		}
		r.metrics.RecordOutboxPublished(ctx, event.EventType)
		published++
	}
	return published, nil
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := r.tick(ctx, interval); err != nil && ctx.Err() == nil {
			r.log.Error("outbox poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Relay) tick(ctx context.Context, interval time.Duration) error {
	if r.lock == nil {
		_, err := r.ProcessPending(ctx)
		return err
	}
	token, ok, err := r.lock.TryLock(ctx, relayLockKey, 2*interval)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	defer func() {
		if err := r.lock.Release(context.WithoutCancel(ctx), relayLockKey, token); err != nil {
			r.log.Warn("outbox relay lock release failed", zap.Error(err))
		}
	}()
	_, err = r.ProcessPending(ctx)
	return err
}

func (r *Relay) markPublished(ctx context.Context, event domain.Event) error {
	now := r.clock.Now()
	return r.db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET published = true, published_at = ?, attempts = attempts + 1, last_error = NULL WHERE id = ?`,
		now,
		event.ID,
	).Error
}

// markFailed records the attempt and reports whether the event is now parked.
func (r *Relay) markFailed(ctx context.Context, event domain.Event, cause error) (bool, error) {
	var parkedAt *time.Time
	if event.Attempts+1 >= r.maxAttempts {
		now := r.clock.Now()
		parkedAt = &now
	}
	err := r.db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = ?, parked_at = ? WHERE id = ?`,
		cause.Error(),
		parkedAt,
		event.ID,
	).Error
	return parkedAt != nil, err
}

// RequeueParked returns every parked event to the pending queue with a fresh
// attempt budget.
func (r *Relay) RequeueParked(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET parked_at = NULL, attempts = 0 WHERE parked_at IS NOT NULL AND published = ?`,
		false,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Info("parked outbox events requeued", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
