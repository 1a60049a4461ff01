package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

const paddleSignatureHeader = "Paddle-Signature"

// PaddleProvider implements Provider for Paddle.
// Trials are configured on Paddle prices, so CheckoutRequest.TrialDays is not sent.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

// NewPaddleProvider creates a new Paddle billing provider.
func NewPaddleProvider(config PaddleConfig) (*PaddleProvider, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderEnv, config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
	}, nil
}

func (p *PaddleProvider) SignatureHeader() string {
	return paddleSignatureHeader
}

func (p *PaddleProvider) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	if req.Email == "" {
		return "", errors.New("paddle requires a customer email")
	}

	customerReq := &paddle.CreateCustomerRequest{
		Email:      req.Email,
		CustomData: paddle.CustomData{"user_id": req.UserID},
	}
	if req.Name != "" {
		customerReq.Name = paddle.PtrTo(req.Name)
	}

	customer, err := p.client.CustomersClient.CreateCustomer(ctx, customerReq)
	if err != nil {
		return "", fmt.Errorf("failed to create paddle customer: %w", err)
	}
	return customer.ID, nil
}

// CreateCheckoutSession creates a Paddle transaction; its checkout URL is the hosted checkout.
func (p *PaddleProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}
	if req.CustomerID == "" {
		return nil, ErrMissingCustomerID
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	transactionReq := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomerID: paddle.PtrTo(req.CustomerID),
		CustomData: paddle.CustomData{"user_id": req.UserID},
	}
	if req.SuccessURL != "" {
		transactionReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	transaction, err := p.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}
	if transaction.Checkout == nil || transaction.Checkout.URL == nil || *transaction.Checkout.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutSession{ID: transaction.ID, URL: *transaction.Checkout.URL}, nil
}

// GetCheckoutSubscription is not supported: Paddle creates the subscription
// asynchronously and subscription.created is authoritative.
func (p *PaddleProvider) GetCheckoutSubscription(context.Context, string) (*SubscriptionPayload, error) {
	return nil, ErrNotSupported
}

// PortalConfiguration returns an empty ID: Paddle has a single hosted portal.
func (p *PaddleProvider) PortalConfiguration(context.Context) (string, error) {
	return "", nil
}

func (p *PaddleProvider) CreatePortalSession(ctx context.Context, req PortalRequest) (*PortalSession, error) {
	if req.CustomerID == "" {
		return nil, ErrMissingCustomerID
	}

	sessionReq := &paddle.CreateCustomerPortalSessionRequest{
		CustomerID: req.CustomerID,
	}
	if req.SubscriptionID != "" {
		sessionReq.SubscriptionIDs = []string{req.SubscriptionID}
	}

	session, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, sessionReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle customer portal session: %w", err)
	}
	if session.URLs.General.Overview == "" {
		return nil, ErrNoPortalURL
	}

	return &PortalSession{
		URL:       session.URLs.General.Overview,
		ExpiresAt: time.Now().Add(24 * time.Hour), // Portal links typically expire in 24 hours
	}, nil
}

// ParseWebhook validates the Paddle-Signature header and decodes the event.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error) {
	if signature == "" {
		return nil, ErrInvalidSignature
	}

	// The SDK verifier works on requests.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set(paddleSignatureHeader, signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	if !valid {
		return nil, ErrInvalidSignature
	}

	return decodePaddleEvent(payload)
}

type paddleEnvelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type paddlePeriod struct {
	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`
}

type paddleSubscription struct {
	ID                   string        `json:"id"`
	Status               string        `json:"status"`
	CustomerID           string        `json:"customer_id"`
	CanceledAt           *time.Time    `json:"canceled_at"`
	CurrentBillingPeriod *paddlePeriod `json:"current_billing_period"`
	ScheduledChange      *struct {
		Action string `json:"action"`
	} `json:"scheduled_change"`
	Items []struct {
		Price struct {
			ID string `json:"id"`
		} `json:"price"`
		TrialDates *paddlePeriod `json:"trial_dates"`
	} `json:"items"`
}

type paddleTransaction struct {
	ID             string `json:"id"`
	CustomerID     string `json:"customer_id"`
	SubscriptionID string `json:"subscription_id"`
	Payments       []struct {
		Status string `json:"status"`
	} `json:"payments"`
}

func decodePaddleEvent(payload []byte) (*Event, error) {
	var env paddleEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}

	ev := &Event{
		ID:           env.EventID,
		ProviderType: env.EventType,
		OccurredAt:   env.OccurredAt.UTC(),
	}

	switch env.EventType {
	case "subscription.created", "subscription.updated", "subscription.canceled":
		var sub paddleSubscription
		if err := json.Unmarshal(env.Data, &sub); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
		ev.Type = map[string]EventType{
			"subscription.created":  EventSubscriptionCreated,
			"subscription.updated":  EventSubscriptionUpdated,
			"subscription.canceled": EventSubscriptionDeleted,
		}[env.EventType]
		ev.Subscription = sub.payload()
		ev.CustomerID = sub.CustomerID

	case "transaction.payment_failed":
		var txn paddleTransaction
		if err := json.Unmarshal(env.Data, &txn); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
		ev.Type = EventPaymentFailed
		ev.Invoice = &InvoicePayload{
			ID:             txn.ID,
			CustomerID:     txn.CustomerID,
			SubscriptionID: txn.SubscriptionID,
			AttemptCount:   int64(len(txn.Payments)),
		}
		ev.CustomerID = txn.CustomerID

	case "transaction.completed":
		var txn paddleTransaction
		if err := json.Unmarshal(env.Data, &txn); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
		ev.Type = EventCheckoutCompleted
		ev.Checkout = &CheckoutPayload{
			ID:             txn.ID,
			CustomerID:     txn.CustomerID,
			SubscriptionID: txn.SubscriptionID,
		}
		ev.CustomerID = txn.CustomerID

	default:
		ev.Type = EventUnknown
	}

	return ev, nil
}

func (s paddleSubscription) payload() *SubscriptionPayload {
	out := &SubscriptionPayload{
		ID:                s.ID,
		CustomerID:        s.CustomerID,
		Status:            mapPaddleStatus(s.Status),
		CanceledAt:        utcTime(s.CanceledAt),
		CancelAtPeriodEnd: s.ScheduledChange != nil && s.ScheduledChange.Action == "cancel",
	}
	if s.CurrentBillingPeriod != nil {
		out.CurrentPeriodStart = utcTime(s.CurrentBillingPeriod.StartsAt)
		out.CurrentPeriodEnd = utcTime(s.CurrentBillingPeriod.EndsAt)
	}
	if len(s.Items) > 0 {
		out.PriceID = s.Items[0].Price.ID
		if td := s.Items[0].TrialDates; td != nil {
			out.TrialStart = utcTime(td.StartsAt)
			out.TrialEnd = utcTime(td.EndsAt)
		}
	}
	return out
}

// mapPaddleStatus maps Paddle subscription statuses to Status.
// Unknown statuses are kept as-is.
func mapPaddleStatus(status string) Status {
	switch strings.ToLower(status) {
	case "cancelled":
		return StatusCanceled
	default:
		return Status(strings.ToLower(status))
	}
}

func utcTime(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}
