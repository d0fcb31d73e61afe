package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
	PaymentStatusCanceled  = "canceled"
)

// Payment mirrors a provider payment intent for local reporting. The provider
// remains the source of truth.
type Payment struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID             uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Provider           string    `gorm:"type:text;not null" json:"provider"`
	ProviderCustomerID string    `gorm:"type:text;not null" json:"provider_customer_id"`
	ProviderPaymentID  string    `gorm:"type:text;not null;uniqueIndex" json:"provider_payment_id"`
	Amount             int64     `gorm:"not null" json:"amount"`
	Currency           string    `gorm:"type:text;not null" json:"currency"`
	Status             string    `gorm:"type:text;not null" json:"status"`
	Description        string    `gorm:"type:text;not null;default:''" json:"description"`
	CreatedAt          time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time `gorm:"not null" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// Subscription mirrors a provider subscription.
type Subscription struct {
	ID                     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID                 uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Provider               string     `gorm:"type:text;not null" json:"provider"`
	ProviderCustomerID     string     `gorm:"type:text;not null" json:"provider_customer_id"`
	ProviderSubscriptionID string     `gorm:"type:text;not null;uniqueIndex" json:"provider_subscription_id"`
	PriceID                string     `gorm:"type:text;not null;default:''" json:"price_id"`
	Status                 string     `gorm:"type:text;not null" json:"status"`
	CurrentPeriodEnd       *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool       `gorm:"not null" json:"cancel_at_period_end"`
	CreatedAt              time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"not null" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// EventRecord is a received webhook, kept for idempotent processing.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:1"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:2"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

// PaymentUpdate is a payment state change parsed from a webhook.
type PaymentUpdate struct {
	ProviderPaymentID  string
	ProviderCustomerID string
	UserID             *uuid.UUID
	Amount             int64
	Currency           string
	Status             string
	Description        string
}

// SubscriptionUpdate is a subscription state change parsed from a webhook.
type SubscriptionUpdate struct {
	ProviderSubscriptionID string
	ProviderCustomerID     string
	UserID                 *uuid.UUID
	PriceID                string
	Status                 string
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
}

// WebhookEvent is the canonical event parsed by a provider adapter. Exactly
// one of Payment or Subscription is set.
type WebhookEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	OccurredAt      time.Time
	Payment         *PaymentUpdate
	Subscription    *SubscriptionUpdate
}
