package metrics

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the domain counters. A nil *Metrics records nothing.
type Metrics struct {
	accessDecisions  metric.Int64Counter
	membershipEvents metric.Int64Counter
	paymentEvents    metric.Int64Counter
	outboxPublished  metric.Int64Counter
	outboxParked     metric.Int64Counter
	rateLimitAllowed metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
}

type counterSpec struct {
	name        string
	description string
	target      *metric.Int64Counter
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	scope := strings.TrimSpace(cfg.ServiceName)
	if scope == "" {
		scope = "virtuepath"
	}
	meter := provider.Meter(scope)

	m := &Metrics{}
	specs := []counterSpec{
		{"virtuepath_access_decisions_total", "Permission checks by resource, action and outcome.", &m.accessDecisions},
		{"virtuepath_membership_events_total", "Organization membership changes.", &m.membershipEvents},
		{"virtuepath_payment_events_total", "Applied payment webhook events.", &m.paymentEvents},
		{"virtuepath_outbox_published_total", "Outbox events handed to the broker.", &m.outboxPublished},
		{"virtuepath_outbox_parked_total", "Outbox events parked after repeated delivery failures.", &m.outboxParked},
		{"virtuepath_rate_limit_allowed_total", "Requests admitted by the rate limiter.", &m.rateLimitAllowed},
		{"virtuepath_rate_limit_denied_total", "Requests rejected by the rate limiter.", &m.rateLimitDenied},
	}
	for _, spec := range specs {
		counter, err := meter.Int64Counter(spec.name, metric.WithDescription(spec.description))
		if err != nil {
			return nil, err
		}
		*spec.target = counter
	}
	return m, nil
}

func (m *Metrics) RecordAccessDecision(ctx context.Context, resource, action string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.add(ctx, func(m *Metrics) metric.Int64Counter { return m.accessDecisions },
		attribute.String("resource", strings.TrimSpace(resource)),
		attribute.String("action", strings.TrimSpace(action)),
		attribute.String("outcome", outcome),
	)
}

// RecordMembershipEvent counts joins, leaves, archives and capacity rejections.
func (m *Metrics) RecordMembershipEvent(ctx context.Context, event string) {
	m.add(ctx, func(m *Metrics) metric.Int64Counter { return m.membershipEvents },
		attribute.String("event_type", event),
	)
}

func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	m.add(ctx, func(m *Metrics) metric.Int64Counter { return m.paymentEvents },
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
}

func (m *Metrics) RecordOutboxPublished(ctx context.Context, eventType string) {
	m.add(ctx, func(m *Metrics) metric.Int64Counter { return m.outboxPublished },
		attribute.String("event_type", eventType),
	)
}

func (m *Metrics) RecordOutboxParked(ctx context.Context, eventType string) {
	m.add(ctx, func(m *Metrics) metric.Int64Counter { return m.outboxParked },
		attribute.String("event_type", eventType),
	)
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	m.add(ctx, func(m *Metrics) metric.Int64Counter { return m.rateLimitAllowed },
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
	)
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	m.add(ctx, func(m *Metrics) metric.Int64Counter { return m.rateLimitDenied },
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
}

func (m *Metrics) add(ctx context.Context, pick func(*Metrics) metric.Int64Counter, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	counter := pick(m)
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

// Labels outside this set would carry user or record ids.
var allowedLabelKeys = map[attribute.Key]bool{
	"org_id":      true,
	"endpoint":    true,
	"status_code": true,
	"resource":    true,
	"action":      true,
	"outcome":     true,
	"provider":    true,
	"event_type":  true,
	"reason":      true,
}

func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	kept := attrs[:0:0]
	for _, attr := range attrs {
		if allowedLabelKeys[attr.Key] {
			kept = append(kept, attr)
		}
	}
	return kept
}
