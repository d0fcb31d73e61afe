package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	paymentdomain "github.com/smallbiznis/virtuepath/internal/payment/domain"
)

const (
	ProviderName       = "stripe"
	defaultBaseURL     = "https://api.stripe.com"
	defaultTolerance   = 5 * time.Minute
	defaultHTTPTimeout = 15 * time.Second
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	AccountID     string
	BaseURL       string
	// Tolerance bounds the age of a webhook signature timestamp.
	Tolerance  time.Duration
	HTTPClient *http.Client
	Now        func() time.Time
}

// Client talks to the Stripe REST API and verifies its webhooks.
type Client struct {
	secretKey     string
	webhookSecret string
	accountID     string
	baseURL       string
	tolerance     time.Duration
	httpClient    *http.Client
	now           func() time.Time
}

func New(cfg Config) *Client {
	c := &Client{
		secretKey:     strings.TrimSpace(cfg.SecretKey),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		accountID:     strings.TrimSpace(cfg.AccountID),
		baseURL:       strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		tolerance:     cfg.Tolerance,
		httpClient:    cfg.HTTPClient,
		now:           cfg.Now,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.tolerance <= 0 {
		c.tolerance = defaultTolerance
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func (c *Client) Provider() string {
	return ProviderName
}

func (c *Client) CreateCustomer(ctx context.Context, req paymentdomain.CustomerParams) (string, error) {
	form := url.Values{}
	form.Set("email", req.Email)
	if name := strings.TrimSpace(req.Name); name != "" {
		form.Set("name", name)
	}
	form.Set("metadata[user_id]", req.UserID.String())

	var customer struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/v1/customers", form, "customer-"+req.UserID.String(), &customer); err != nil {
		return "", err
	}
	if customer.ID == "" {
		return "", paymentdomain.ErrProviderUnavailable
	}
	return customer.ID, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, req paymentdomain.PaymentIntentParams) (*paymentdomain.PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("customer", req.CustomerID)
	form.Set("automatic_payment_methods[enabled]", "true")
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	for key, value := range req.Metadata {
		form.Set("metadata["+key+"]", value)
	}

	var intent stripePaymentIntent
	if err := c.post(ctx, "/v1/payment_intents", form, req.IdempotencyKey, &intent); err != nil {
		return nil, err
	}
	if intent.ID == "" || intent.ClientSecret == "" {
		return nil, paymentdomain.ErrProviderUnavailable
	}
	return &paymentdomain.PaymentIntent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       paymentStatus(intent.Status),
		Amount:       intent.Amount,
		Currency:     strings.ToLower(intent.Currency),
	}, nil
}

// APIError is a non-2xx answer from the Stripe API.
type APIError struct {
	StatusCode int
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stripe: %d %s: %s", e.StatusCode, e.Type, e.Message)
}

func (c *Client) post(ctx context.Context, path string, form url.Values, idempotencyKey string, out any) error {
	if c.secretKey == "" {
		return paymentdomain.ErrProviderNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.accountID != "" {
		req.Header.Set("Stripe-Account", c.accountID)
	}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode >= 300 {
		var envelope struct {
			Error APIError `json:"error"`
		}
		_ = json.Unmarshal(body, &envelope)
		envelope.Error.StatusCode = resp.StatusCode
		return &envelope.Error
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrProviderUnavailable, err)
	}
	return nil
}

func (c *Client) Verify(payload []byte, headers http.Header) error {
	if c.webhookSecret == "" {
		return paymentdomain.ErrProviderNotConfigured
	}
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	ts, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	age := c.now().Sub(time.Unix(unix, 0))
	if age > c.tolerance || age < -c.tolerance {
		return paymentdomain.ErrInvalidSignature
	}

	expected := Sign(c.webhookSecret, ts, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

// Sign computes the v1 signature for payload at timestamp ts.
func Sign(secret, ts string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(ts))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) Parse(payload []byte) (*paymentdomain.WebhookEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	out := &paymentdomain.WebhookEvent{
		Provider:        ProviderName,
		ProviderEventID: event.ID,
		Type:            strings.TrimSpace(event.Type),
		OccurredAt:      timestamp(event.Created, 0),
	}

	switch out.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled", "payment_intent.processing":
		var intent stripePaymentIntent
		if err := json.Unmarshal(event.Data.Object, &intent); err != nil || intent.ID == "" {
			return nil, paymentdomain.ErrInvalidPayload
		}
		amount := intent.AmountReceived
		if amount <= 0 {
			amount = intent.Amount
		}
		out.Payment = &paymentdomain.PaymentUpdate{
			ProviderPaymentID:  intent.ID,
			ProviderCustomerID: intent.Customer,
			UserID:             metadataUser(intent.Metadata),
			Amount:             amount,
			Currency:           strings.ToLower(intent.Currency),
			Status:             paymentStatus(intent.Status),
			Description:        intent.Description,
		}
		// A failed attempt puts the intent back into requires_payment_method.
		if out.Type == "payment_intent.payment_failed" {
			out.Payment.Status = paymentdomain.PaymentStatusFailed
		}
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripeSubscription
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil || sub.ID == "" {
			return nil, paymentdomain.ErrInvalidPayload
		}
		update := &paymentdomain.SubscriptionUpdate{
			ProviderSubscriptionID: sub.ID,
			ProviderCustomerID:     sub.Customer,
			UserID:                 metadataUser(sub.Metadata),
			Status:                 strings.TrimSpace(sub.Status),
			CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		}
		if len(sub.Items.Data) > 0 {
			update.PriceID = sub.Items.Data[0].Price.ID
		}
		if sub.CurrentPeriodEnd > 0 {
			end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			update.CurrentPeriodEnd = &end
		}
		if out.Type == "customer.subscription.deleted" {
			update.Status = "canceled"
		}
		out.Subscription = update
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
	return out, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripePaymentIntent struct {
	ID             string            `json:"id"`
	ClientSecret   string            `json:"client_secret"`
	Customer       string            `json:"customer"`
	Amount         int64             `json:"amount"`
	AmountReceived int64             `json:"amount_received"`
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	Description    string            `json:"description"`
	Metadata       map[string]string `json:"metadata"`
}

type stripeSubscription struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func paymentStatus(raw string) string {
	switch strings.TrimSpace(raw) {
	case "succeeded":
		return paymentdomain.PaymentStatusSucceeded
	case "canceled":
		return paymentdomain.PaymentStatusCanceled
	default:
		return paymentdomain.PaymentStatusPending
	}
}

func metadataUser(metadata map[string]string) *uuid.UUID {
	raw := strings.TrimSpace(metadata["user_id"])
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}

func parseStripeSignature(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var ts string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			ts = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if ts == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return ts, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
