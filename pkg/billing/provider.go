package billing

import (
	"context"
	"time"
)

// Provider defines the payment processor operations the billing core relies on.
// Implementations use the official provider SDKs and translate provider payloads
// into the normalized Event so the reducer never sees provider-specific shapes.
type Provider interface {
	// CreateCustomer registers a billing customer and returns its ID.
	// The user ID is attached as correlation metadata.
	CreateCustomer(ctx context.Context, req CustomerRequest) (string, error)

	// CreateCheckoutSession creates a hosted checkout for a single subscription item.
	// A trial is attached only when req.TrialDays is positive.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// GetCheckoutSubscription fetches the subscription created by a completed checkout session.
	// Returns ErrNoCheckoutSubscription if the session has none yet.
	GetCheckoutSubscription(ctx context.Context, sessionID string) (*SubscriptionPayload, error)

	// PortalConfiguration returns the ID of the customer portal configuration,
	// creating the default one when none exists. An empty ID means the provider
	// has no configuration concept.
	PortalConfiguration(ctx context.Context) (string, error)

	// CreatePortalSession returns a short-lived link to the hosted customer portal.
	CreatePortalSession(ctx context.Context, req PortalRequest) (*PortalSession, error)

	// ParseWebhook verifies the signature and decodes the payload.
	// Verification failures wrap ErrInvalidSignature.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error)

	// SignatureHeader is the HTTP header carrying the webhook signature.
	SignatureHeader() string
}

// CustomerRequest contains data needed to register a billing customer.
type CustomerRequest struct {
	UserID string
	Email  string
	Name   string
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	CustomerID string // Provider's customer identifier
	UserID     string // Internal user ID, sent as client reference
	PriceID    string // Provider's price identifier
	TrialDays  int
	SuccessURL string // Redirect after successful payment
	CancelURL  string // Redirect if customer cancels
}

// CheckoutSession represents a hosted checkout session.
type CheckoutSession struct {
	ID  string
	URL string
}

// PortalRequest contains data needed to open a customer portal session.
type PortalRequest struct {
	CustomerID      string
	SubscriptionID  string
	ReturnURL       string
	ConfigurationID string
}

// PortalSession represents a customer portal session.
type PortalSession struct {
	URL       string
	ExpiresAt time.Time
}
