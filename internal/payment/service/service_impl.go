package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/virtuepath/internal/clock"
	"github.com/smallbiznis/virtuepath/internal/config"
	obsmetrics "github.com/smallbiznis/virtuepath/internal/observability/metrics"
	outboxdomain "github.com/smallbiznis/virtuepath/internal/outbox/domain"
	paymentdomain "github.com/smallbiznis/virtuepath/internal/payment/domain"
	profiledomain "github.com/smallbiznis/virtuepath/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	minAmount = 50
	maxAmount = 99999999
)

var currencyPattern = regexp.MustCompile(`^[a-z]{3}$`)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	GenID      *snowflake.Node
	Config     config.Config
	Repo       paymentdomain.Repository
	Profiles   profiledomain.Repository
	Outbox     outboxdomain.Writer
	Gateway    paymentdomain.Gateway       `optional:"true"`
	Parser     paymentdomain.WebhookParser `optional:"true"`
	ObsMetrics *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	clock           clock.Clock
	genID           *snowflake.Node
	defaultCurrency string
	repo            paymentdomain.Repository
	profiles        profiledomain.Repository
	outbox          outboxdomain.Writer
	gateway         paymentdomain.Gateway
	parser          paymentdomain.WebhookParser
	obsMetrics      *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	currency := strings.ToLower(strings.TrimSpace(p.Config.Payments.DefaultCurrency))
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("payment.service"),
		clock:           p.Clock,
		genID:           p.GenID,
		defaultCurrency: currency,
		repo:            p.Repo,
		profiles:        p.Profiles,
		outbox:          p.Outbox,
		gateway:         p.Gateway,
		parser:          p.Parser,
		obsMetrics:      p.ObsMetrics,
	}
}

func (s *Service) CreatePaymentIntent(ctx context.Context, req paymentdomain.CreateIntentRequest) (*paymentdomain.IntentResult, error) {
	if s.gateway == nil {
		return nil, paymentdomain.ErrProviderNotConfigured
	}
	if req.UserID == uuid.Nil {
		return nil, paymentdomain.ErrInvalidUser
	}
	if req.Amount < minAmount || req.Amount > maxAmount {
		return nil, paymentdomain.ErrInvalidAmount
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	if !currencyPattern.MatchString(currency) {
		return nil, paymentdomain.ErrInvalidCurrency
	}

	profile, err := s.profiles.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, profiledomain.ErrProfileNotFound) {
			return nil, paymentdomain.ErrInvalidUser
		}
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, profile)
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = uuid.NewString()
	}
	intent, err := s.gateway.CreatePaymentIntent(ctx, paymentdomain.PaymentIntentParams{
		CustomerID:     customerID,
		Amount:         req.Amount,
		Currency:       currency,
		Description:    strings.TrimSpace(req.Description),
		Metadata:       map[string]string{"user_id": req.UserID.String()},
		IdempotencyKey: key,
	})
	if err != nil {
		s.log.Error("failed to create payment intent", zap.String("user_id", req.UserID.String()), zap.Error(err))
		return nil, err
	}

	now := s.clock.Now()
	payment := &paymentdomain.Payment{
		ID:                 uuid.New(),
		UserID:             req.UserID,
		Provider:           s.gateway.Provider(),
		ProviderCustomerID: customerID,
		ProviderPaymentID:  intent.ID,
		Amount:             intent.Amount,
		Currency:           intent.Currency,
		Status:             intent.Status,
		Description:        strings.TrimSpace(req.Description),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	// A retried request with the same idempotency key returns the same intent.
	if err := s.repo.UpsertPayment(ctx, payment); err != nil {
		return nil, err
	}

	return &paymentdomain.IntentResult{
		PaymentID:    payment.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
		Status:       intent.Status,
	}, nil
}

func (s *Service) ensureCustomer(ctx context.Context, profile *profiledomain.Profile) (string, error) {
	if profile.StripeCustomerID != nil && strings.TrimSpace(*profile.StripeCustomerID) != "" {
		return *profile.StripeCustomerID, nil
	}
	customerID, err := s.gateway.CreateCustomer(ctx, paymentdomain.CustomerParams{
		Email:  profile.Email,
		Name:   profile.DisplayName,
		UserID: profile.ID,
	})
	if err != nil {
		return "", err
	}
	if err := s.profiles.SetStripeCustomerID(ctx, profile.ID, customerID); err != nil {
		return "", err
	}
	return customerID, nil
}

func (s *Service) HandleWebhook(ctx context.Context, payload []byte, headers http.Header) error {
	if s.parser == nil {
		return paymentdomain.ErrProviderNotConfigured
	}
	if err := s.parser.Verify(payload, headers); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	event, err := s.parser.Parse(payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("ignoring payment webhook")
			return nil
		}
		return err
	}

	duplicate := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record := paymentdomain.EventRecord{
			ID:              s.genID.Generate(),
			Provider:        event.Provider,
			ProviderEventID: event.ProviderEventID,
			EventType:       event.Type,
			Payload:         datatypes.JSON(payload),
			ReceivedAt:      s.clock.Now(),
		}
		inserted, err := repo.InsertEvent(ctx, &record)
		if err != nil {
			return err
		}
		if !inserted {
			stored, err := repo.FindEvent(ctx, event.Provider, event.ProviderEventID)
			if err != nil {
				return err
			}
			if stored == nil {
				return paymentdomain.ErrInvalidEvent
			}
			if stored.ProcessedAt != nil {
				duplicate = true
				return nil
			}
			record = *stored
		}

		if err := s.apply(ctx, tx, event); err != nil {
			return err
		}
		return repo.MarkProcessed(ctx, record.ID, s.clock.Now())
	})
	if err != nil {
		return err
	}
	if duplicate {
		s.log.Info("payment webhook already processed", zap.String("provider_event_id", event.ProviderEventID))
		return nil
	}

	s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	return nil
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, event *paymentdomain.WebhookEvent) error {
	switch {
	case event.Payment != nil:
		return s.applyPayment(ctx, tx, event)
	case event.Subscription != nil:
		return s.applySubscription(ctx, tx, event)
	default:
		return paymentdomain.ErrInvalidEvent
	}
}

func (s *Service) applyPayment(ctx context.Context, tx *gorm.DB, event *paymentdomain.WebhookEvent) error {
	repo := s.repo.WithTx(tx)
	update := event.Payment

	userID := update.UserID
	if userID == nil {
		found, err := repo.UserByPaymentID(ctx, update.ProviderPaymentID)
		if err != nil {
			return err
		}
		userID = found
	}
	if userID == nil {
		s.log.Warn("payment webhook without a known user",
			zap.String("provider_payment_id", update.ProviderPaymentID))
		return nil
	}

	now := s.clock.Now()
	if err := repo.UpsertPayment(ctx, &paymentdomain.Payment{
		ID:                 uuid.New(),
		UserID:             *userID,
		Provider:           event.Provider,
		ProviderCustomerID: update.ProviderCustomerID,
		ProviderPaymentID:  update.ProviderPaymentID,
		Amount:             update.Amount,
		Currency:           update.Currency,
		Status:             update.Status,
		Description:        update.Description,
		CreatedAt:          now,
		UpdatedAt:          now,
	}); err != nil {
		return err
	}

	var eventType string
	switch update.Status {
	case paymentdomain.PaymentStatusSucceeded:
		eventType = paymentdomain.EventPaymentSucceeded
	case paymentdomain.PaymentStatusFailed:
		eventType = paymentdomain.EventPaymentFailed
	default:
		return nil
	}
	return s.outbox.Write(ctx, tx, outboxdomain.Message{
		AggregateType: "payment",
		AggregateID:   update.ProviderPaymentID,
		EventType:     eventType,
		Payload: map[string]any{
			"user_id":  userID,
			"amount":   update.Amount,
			"currency": update.Currency,
		},
	})
}

func (s *Service) applySubscription(ctx context.Context, tx *gorm.DB, event *paymentdomain.WebhookEvent) error {
	repo := s.repo.WithTx(tx)
	update := event.Subscription

	userID := update.UserID
	if userID == nil {
		found, err := repo.UserBySubscriptionID(ctx, update.ProviderSubscriptionID)
		if err != nil {
			return err
		}
		userID = found
	}
	if userID == nil {
		s.log.Warn("subscription webhook without a known user",
			zap.String("provider_subscription_id", update.ProviderSubscriptionID))
		return nil
	}

	now := s.clock.Now()
	if err := repo.UpsertSubscription(ctx, &paymentdomain.Subscription{
		ID:                     uuid.New(),
		UserID:                 *userID,
		Provider:               event.Provider,
		ProviderCustomerID:     update.ProviderCustomerID,
		ProviderSubscriptionID: update.ProviderSubscriptionID,
		PriceID:                update.PriceID,
		Status:                 update.Status,
		CurrentPeriodEnd:       update.CurrentPeriodEnd,
		CancelAtPeriodEnd:      update.CancelAtPeriodEnd,
		CreatedAt:              now,
		UpdatedAt:              now,
	}); err != nil {
		return err
	}
	return s.outbox.Write(ctx, tx, outboxdomain.Message{
		AggregateType: "subscription",
		AggregateID:   update.ProviderSubscriptionID,
		EventType:     paymentdomain.EventSubscriptionChanged,
		Payload: map[string]any{
			"user_id": userID,
			"status":  update.Status,
		},
	})
}

func (s *Service) ListPayments(ctx context.Context, userID uuid.UUID) ([]paymentdomain.Payment, error) {
	rows, err := s.repo.ListPayments(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []paymentdomain.Payment{}
	}
	return rows, nil
}

func (s *Service) ListSubscriptions(ctx context.Context, userID uuid.UUID) ([]paymentdomain.Subscription, error) {
	rows, err := s.repo.ListSubscriptions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []paymentdomain.Subscription{}
	}
	return rows, nil
}
