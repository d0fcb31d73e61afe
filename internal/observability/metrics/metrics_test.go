package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("resource", "practitioner_data"),
		attribute.String("user_id", "456"),
		attribute.String("outcome", "denied"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "user_id" {
			t.Fatalf("user_id must not be used as a metric label")
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordAccessDecision(context.Background(), "journal", "read", true)
	m.RecordMembershipEvent(context.Background(), "join")
}

func TestNewRegistersInstruments(t *testing.T) {
	m, err := New(Config{ServiceName: "virtuepath"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.RecordAccessDecision(context.Background(), "journal", "read", false)
	m.RecordRateLimitDenied(context.Background(), "sponsor_invite", "limit_exceeded")
}
