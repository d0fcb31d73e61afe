package outbox

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/virtuepath/internal/clock"
	"github.com/smallbiznis/virtuepath/internal/outbox/domain"
	"github.com/smallbiznis/virtuepath/pkg/telemetry/correlation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type writer struct {
	genID *snowflake.Node
	clock clock.Clock
}

func NewWriter(genID *snowflake.Node, clk clock.Clock) domain.Writer {
	return &writer{genID: genID, clock: clk}
}

func (w *writer) Write(ctx context.Context, tx *gorm.DB, msg domain.Message) error {
	if strings.TrimSpace(msg.EventType) == "" || strings.TrimSpace(msg.AggregateID) == "" {
		return domain.ErrInvalidMessage
	}

	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return err
	}

	_, correlationID := correlation.Ensure(ctx)
	event := domain.Event{
		ID:            w.genID.Generate(),
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       datatypes.JSON(payload),
		CorrelationID: correlationID,
		CreatedAt:     w.clock.Now(),
	}
	return tx.WithContext(ctx).Create(&event).Error
}
