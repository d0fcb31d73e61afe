package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Gateway is the outbound half of a payment provider.
type Gateway interface {
	Provider() string
	CreateCustomer(ctx context.Context, req CustomerParams) (string, error)
	CreatePaymentIntent(ctx context.Context, req PaymentIntentParams) (*PaymentIntent, error)
}

// WebhookParser is the inbound half of a payment provider.
type WebhookParser interface {
	Verify(payload []byte, headers http.Header) error
	Parse(payload []byte) (*WebhookEvent, error)
}

type CustomerParams struct {
	Email  string
	Name   string
	UserID uuid.UUID
}

type PaymentIntentParams struct {
	CustomerID  string
	Amount      int64
	Currency    string
	Description string
	Metadata    map[string]string
	// IdempotencyKey is forwarded so retried requests do not double charge.
	IdempotencyKey string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertPayment(ctx context.Context, payment *Payment) error
	UpsertPayment(ctx context.Context, payment *Payment) error
	UpsertSubscription(ctx context.Context, sub *Subscription) error
	ListPayments(ctx context.Context, userID uuid.UUID) ([]Payment, error)
	ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]Subscription, error)
	UserByPaymentID(ctx context.Context, providerPaymentID string) (*uuid.UUID, error)
	UserBySubscriptionID(ctx context.Context, providerSubscriptionID string) (*uuid.UUID, error)

	InsertEvent(ctx context.Context, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, provider, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, id snowflake.ID, processedAt time.Time) error
}

type Service interface {
	CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (*IntentResult, error)
	// HandleWebhook verifies, records and applies a provider webhook. Redelivered
	// events that were already applied are acknowledged without side effects.
	HandleWebhook(ctx context.Context, payload []byte, headers http.Header) error
	ListPayments(ctx context.Context, userID uuid.UUID) ([]Payment, error)
	ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]Subscription, error)
}

type CreateIntentRequest struct {
	UserID         uuid.UUID
	Amount         int64
	Currency       string
	Description    string
	IdempotencyKey string
}

type IntentResult struct {
	PaymentID    uuid.UUID `json:"payment_id"`
	ClientSecret string    `json:"client_secret"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"`
}

const (
	EventPaymentSucceeded    = "payment.succeeded"
	EventPaymentFailed       = "payment.failed"
	EventSubscriptionChanged = "subscription.changed"
)

var (
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidCurrency       = errors.New("invalid_currency")
	ErrInvalidUser           = errors.New("invalid_user")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrProviderNotConfigured = errors.New("payment_provider_not_configured")
	ErrProviderUnavailable   = errors.New("payment_provider_unavailable")
)
