package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/virtuepath/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) InsertPayment(ctx context.Context, payment *domain.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

// UpsertPayment keeps the row keyed by provider_payment_id in step with the
// provider. Amount and currency are only filled on first insert.
func (r *repository) UpsertPayment(ctx context.Context, payment *domain.Payment) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_payment_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(payment).Error
}

func (r *repository) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "price_id", "current_period_end", "cancel_at_period_end", "updated_at",
		}),
	}).Create(sub).Error
}

func (r *repository) ListPayments(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	var rows []domain.Payment
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error) {
	var rows []domain.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&rows).Error
	return rows, err
}

func (r *repository) UserByPaymentID(ctx context.Context, providerPaymentID string) (*uuid.UUID, error) {
	var row domain.Payment
	err := r.db.WithContext(ctx).Select("user_id").
		Where("provider_payment_id = ?", providerPaymentID).
		First(&row).Error
	return userOrNil(row.UserID, err)
}

func (r *repository) UserBySubscriptionID(ctx context.Context, providerSubscriptionID string) (*uuid.UUID, error) {
	var row domain.Subscription
	err := r.db.WithContext(ctx).Select("user_id").
		Where("provider_subscription_id = ?", providerSubscriptionID).
		First(&row).Error
	return userOrNil(row.UserID, err)
}

func userOrNil(id uuid.UUID, err error) (*uuid.UUID, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &id, nil
}

func (r *repository) FindEvent(ctx context.Context, provider string, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, payload, received_at, processed_at
		 FROM payment_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repository) InsertEvent(ctx context.Context, event *domain.EventRecord) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, provider, provider_event_id, event_type, payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) MarkProcessed(ctx context.Context, id snowflake.ID, processedAt time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET processed_at = ?
		 WHERE id = ?`,
		processedAt,
		id,
	).Error
}
