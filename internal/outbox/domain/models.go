// Package domain holds the transactional outbox model.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event is written in the same transaction as the change it describes and
// relayed to the broker afterwards. ID doubles as the broker message id so
// consumers can drop redeliveries.
type Event struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id"`
	AggregateType string         `gorm:"type:text;not null" json:"aggregate_type"`
	AggregateID   string         `gorm:"type:text;not null;index" json:"aggregate_id"`
	EventType     string         `gorm:"type:text;not null;index" json:"event_type"`
	Payload       datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`
	CorrelationID string         `gorm:"type:text" json:"correlation_id"`
	Published     bool           `gorm:"not null;default:false;index" json:"published"`
	PublishedAt   *time.Time     `json:"published_at,omitempty"`
	Attempts      int            `gorm:"not null;default:0" json:"attempts"`
	LastError     *string        `gorm:"type:text" json:"last_error,omitempty"`
	ParkedAt      *time.Time     `json:"parked_at,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
}

func (Event) TableName() string { return "outbox_events" }

// Message is what a service hands to the Writer.
type Message struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       any
}

// Writer stores messages inside the caller's transaction.
type Writer interface {
	Write(ctx context.Context, tx *gorm.DB, msg Message) error
}

// Sink delivers a relayed event to the outside world.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

var ErrInvalidMessage = errors.New("invalid_outbox_message")
