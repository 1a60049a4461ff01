package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds configuration for the Stripe billing provider.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	// APIBase overrides the Stripe API endpoint, e.g. for stripe-mock.
	APIBase string `env:"STRIPE_API_BASE"`
	// PortalHeadline is shown at the top of the customer portal.
	PortalHeadline string `env:"STRIPE_PORTAL_HEADLINE" envDefault:"Manage your subscription"`
}

// ConfigCache stores small provider lookups between requests.
type ConfigCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

const (
	stripeSignatureHeader  = "Stripe-Signature"
	portalConfigCacheKey   = "billing:stripe:portal_configuration"
	portalConfigCacheTTL   = 24 * time.Hour
	stripeCancellationMode = "at_period_end"
	stripeProrationMode    = "create_prorations"
)

var stripeCancellationReasons = []string{
	"too_expensive",
	"missing_features",
	"switched_service",
	"unused",
	"other",
}

// StripeProvider implements Provider for Stripe.
type StripeProvider struct {
	api    *client.API
	config StripeConfig
	cache  ConfigCache
	// portalPrices are the prices a subscriber may switch between in the portal.
	portalPrices []string
}

// StripeOption configures a StripeProvider.
type StripeOption func(*StripeProvider)

// WithPortalConfigCache caches the portal configuration ID.
func WithPortalConfigCache(cache ConfigCache) StripeOption {
	return func(p *StripeProvider) {
		p.cache = cache
	}
}

// WithPortalPrices lets subscribers switch between these prices in the
// customer portal. Without it the portal only allows promotion code updates.
func WithPortalPrices(priceIDs ...string) StripeOption {
	return func(p *StripeProvider) {
		p.portalPrices = priceIDs
	}
}

// NewStripeProvider creates a new Stripe billing provider.
func NewStripeProvider(config StripeConfig, opts ...StripeOption) (*StripeProvider, error) {
	if config.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	var backends *stripe.Backends
	if config.APIBase != "" {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(config.APIBase),
			MaxNetworkRetries: stripe.Int64(0),
		})
		backends = &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	}

	p := &StripeProvider{
		api:    client.New(config.SecretKey, backends),
		config: config,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *StripeProvider) SignatureHeader() string {
	return stripeSignatureHeader
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	if req.Name != "" {
		params.Name = stripe.String(req.Name)
	}
	params.AddMetadata("userId", req.UserID)

	customer, err := p.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe customer: %w", err)
	}
	return customer.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PriceID == "" {
		return nil, ErrMissingPriceID
	}
	if req.CustomerID == "" {
		return nil, ErrMissingCustomerID
	}

	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(req.CustomerID),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:               stripe.String(req.SuccessURL),
		CancelURL:                stripe.String(req.CancelURL),
		ClientReferenceID:        stripe.String(req.UserID),
		AllowPromotionCodes:      stripe.Bool(true),
		BillingAddressCollection: stripe.String("auto"),
	}
	params.Context = ctx
	params.AddMetadata("userId", req.UserID)

	if req.TrialDays > 0 {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(int64(req.TrialDays)),
		}
	}

	session, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe checkout session: %w", err)
	}
	if session.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (p *StripeProvider) GetCheckoutSubscription(ctx context.Context, sessionID string) (*SubscriptionPayload, error) {
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}

	sessionParams := &stripe.CheckoutSessionParams{}
	sessionParams.Context = ctx
	session, err := p.api.CheckoutSessions.Get(sessionID, sessionParams)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve stripe checkout session: %w", err)
	}
	if session.Subscription == nil || session.Subscription.ID == "" {
		return nil, ErrNoCheckoutSubscription
	}

	subParams := &stripe.SubscriptionParams{}
	subParams.Context = ctx
	sub, err := p.api.Subscriptions.Get(session.Subscription.ID, subParams)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve stripe subscription: %w", err)
	}
	if sub.LastResponse == nil || len(sub.LastResponse.RawJSON) == 0 {
		return nil, ErrInvalidPayload
	}

	var raw stripeSubscription
	if err := json.Unmarshal(sub.LastResponse.RawJSON, &raw); err != nil {
		return nil, errors.Join(ErrInvalidPayload, err)
	}
	payload := raw.payload()
	if payload.CustomerID == "" && session.Customer != nil {
		payload.CustomerID = session.Customer.ID
	}
	return payload, nil
}

// PortalConfiguration reuses the first active portal configuration
// and creates the default one only when none exists.
func (p *StripeProvider) PortalConfiguration(ctx context.Context) (string, error) {
	if p.cache != nil {
		if id, err := p.cache.Get(ctx, portalConfigCacheKey); err == nil && id != "" {
			return id, nil
		}
	}

	listParams := &stripe.BillingPortalConfigurationListParams{
		Active: stripe.Bool(true),
	}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)

	var id string
	iter := p.api.BillingPortalConfigurations.List(listParams)
	if iter.Next() {
		id = iter.BillingPortalConfiguration().ID
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("failed to list stripe portal configurations: %w", err)
	}

	if id == "" {
		params, err := p.defaultPortalConfiguration(ctx)
		if err != nil {
			return "", err
		}
		cfg, err := p.api.BillingPortalConfigurations.New(params)
		if err != nil {
			return "", fmt.Errorf("failed to create stripe portal configuration: %w", err)
		}
		id = cfg.ID
	}

	if p.cache != nil {
		// Cache errors only cost an extra list call next time.
		_ = p.cache.Set(ctx, portalConfigCacheKey, id, portalConfigCacheTTL)
	}
	return id, nil
}

func (p *StripeProvider) forgetPortalConfiguration(ctx context.Context) {
	if p.cache != nil {
		_ = p.cache.Delete(ctx, portalConfigCacheKey)
	}
}

func (p *StripeProvider) defaultPortalConfiguration(ctx context.Context) (*stripe.BillingPortalConfigurationParams, error) {
	update, err := p.portalSubscriptionUpdate(ctx)
	if err != nil {
		return nil, err
	}

	params := &stripe.BillingPortalConfigurationParams{
		BusinessProfile: &stripe.BillingPortalConfigurationBusinessProfileParams{
			Headline: stripe.String(p.config.PortalHeadline),
		},
		Features: &stripe.BillingPortalConfigurationFeaturesParams{
			SubscriptionUpdate: update,
			SubscriptionCancel: &stripe.BillingPortalConfigurationFeaturesSubscriptionCancelParams{
				Enabled: stripe.Bool(true),
				Mode:    stripe.String(stripeCancellationMode),
				CancellationReason: &stripe.BillingPortalConfigurationFeaturesSubscriptionCancelCancellationReasonParams{
					Enabled: stripe.Bool(true),
					Options: stripe.StringSlice(stripeCancellationReasons),
				},
			},
			PaymentMethodUpdate: &stripe.BillingPortalConfigurationFeaturesPaymentMethodUpdateParams{
				Enabled: stripe.Bool(true),
			},
			InvoiceHistory: &stripe.BillingPortalConfigurationFeaturesInvoiceHistoryParams{
				Enabled: stripe.Bool(true),
			},
		},
	}
	params.Context = ctx
	return params, nil
}

// portalSubscriptionUpdate groups the portal prices by product,
// since Stripe lists upgrade targets per product.
func (p *StripeProvider) portalSubscriptionUpdate(ctx context.Context) (*stripe.BillingPortalConfigurationFeaturesSubscriptionUpdateParams, error) {
	update := &stripe.BillingPortalConfigurationFeaturesSubscriptionUpdateParams{
		Enabled:               stripe.Bool(true),
		DefaultAllowedUpdates: stripe.StringSlice([]string{"promotion_code"}),
		ProrationBehavior:     stripe.String(stripeProrationMode),
	}
	if len(p.portalPrices) == 0 {
		return update, nil
	}

	var products []*stripe.BillingPortalConfigurationFeaturesSubscriptionUpdateProductParams
	byProduct := map[string]*stripe.BillingPortalConfigurationFeaturesSubscriptionUpdateProductParams{}
	for _, priceID := range p.portalPrices {
		params := &stripe.PriceParams{}
		params.Context = ctx
		price, err := p.api.Prices.Get(priceID, params)
		if err != nil {
			return nil, fmt.Errorf("failed to retrieve stripe price %s: %w", priceID, err)
		}
		if price.Product == nil || price.Product.ID == "" {
			return nil, fmt.Errorf("stripe price %s has no product", priceID)
		}
		product, ok := byProduct[price.Product.ID]
		if !ok {
			product = &stripe.BillingPortalConfigurationFeaturesSubscriptionUpdateProductParams{
				Product: stripe.String(price.Product.ID),
			}
			byProduct[price.Product.ID] = product
			products = append(products, product)
		}
		product.Prices = append(product.Prices, stripe.String(priceID))
	}

	update.DefaultAllowedUpdates = stripe.StringSlice([]string{"price", "promotion_code"})
	update.Products = products
	return update, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, req PortalRequest) (*PortalSession, error) {
	if req.CustomerID == "" {
		return nil, ErrMissingCustomerID
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(req.CustomerID),
		ReturnURL: stripe.String(req.ReturnURL),
	}
	if req.ConfigurationID != "" {
		params.Configuration = stripe.String(req.ConfigurationID)
	}
	params.Context = ctx

	session, err := p.api.BillingPortalSessions.New(params)
	if err != nil && req.ConfigurationID != "" && rejectsConfiguration(err) {
		// The cached configuration was deactivated or deleted in the dashboard.
		p.forgetPortalConfiguration(ctx)
		var id string
		if id, err = p.PortalConfiguration(ctx); err == nil {
			params.Configuration = stripe.String(id)
			session, err = p.api.BillingPortalSessions.New(params)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe portal session: %w", err)
	}
	if session.URL == "" {
		return nil, ErrNoPortalURL
	}

	return &PortalSession{
		URL:       session.URL,
		ExpiresAt: time.Now().Add(5 * time.Minute), // Stripe portal links are single use and short lived
	}, nil
}

func rejectsConfiguration(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Param == "configuration"
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
// API version mismatches are tolerated because payloads are decoded
// through the schemas below rather than the SDK models.
func (p *StripeProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (*Event, error) {
	if signature == "" {
		return nil, ErrInvalidSignature
	}

	raw, err := webhook.ConstructEventWithOptions(payload, signature, p.config.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}

	return decodeStripeEvent(raw)
}

func decodeStripeEvent(raw stripe.Event) (*Event, error) {
	ev := &Event{
		ID:           raw.ID,
		ProviderType: string(raw.Type),
		OccurredAt:   time.Unix(raw.Created, 0).UTC(),
	}
	if raw.Data == nil {
		return nil, ErrInvalidPayload
	}
	data := raw.Data.Raw

	switch raw.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripeSubscription
		if err := json.Unmarshal(data, &sub); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
		ev.Type = map[stripe.EventType]EventType{
			"customer.subscription.created": EventSubscriptionCreated,
			"customer.subscription.updated": EventSubscriptionUpdated,
			"customer.subscription.deleted": EventSubscriptionDeleted,
		}[raw.Type]
		ev.Subscription = sub.payload()
		ev.CustomerID = ev.Subscription.CustomerID

	case "invoice.payment_failed":
		var inv stripeInvoice
		if err := json.Unmarshal(data, &inv); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
		ev.Type = EventPaymentFailed
		ev.Invoice = inv.payload()
		ev.CustomerID = ev.Invoice.CustomerID

	case "checkout.session.completed":
		var cs stripeCheckoutSession
		if err := json.Unmarshal(data, &cs); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
		ev.Type = EventCheckoutCompleted
		ev.Checkout = &CheckoutPayload{
			ID:                cs.ID,
			CustomerID:        cs.Customer.ID,
			SubscriptionID:    cs.Subscription.ID,
			ClientReferenceID: cs.ClientReferenceID,
		}
		ev.CustomerID = cs.Customer.ID

	default:
		ev.Type = EventUnknown
	}

	return ev, nil
}

// stripeRef is an expandable Stripe reference: either an ID string or an object with an id.
type stripeRef struct {
	ID string
}

func (r *stripeRef) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		r.ID = ""
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.ID = obj.ID
	return nil
}

// stripeSubscription accepts both the legacy top-level billing period
// and the item-level period used by newer API versions.
type stripeSubscription struct {
	ID                 string    `json:"id"`
	Customer           stripeRef `json:"customer"`
	Status             string    `json:"status"`
	TrialStart         int64     `json:"trial_start"`
	TrialEnd           int64     `json:"trial_end"`
	CurrentPeriodStart int64     `json:"current_period_start"`
	CurrentPeriodEnd   int64     `json:"current_period_end"`
	CanceledAt         int64     `json:"canceled_at"`
	CancelAtPeriodEnd  bool      `json:"cancel_at_period_end"`
	Items              struct {
		Data []struct {
			Price              stripeRef `json:"price"`
			CurrentPeriodStart int64     `json:"current_period_start"`
			CurrentPeriodEnd   int64     `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func (s stripeSubscription) payload() *SubscriptionPayload {
	out := &SubscriptionPayload{
		ID:                s.ID,
		CustomerID:        s.Customer.ID,
		Status:            Status(s.Status),
		TrialStart:        epochTime(s.TrialStart),
		TrialEnd:          epochTime(s.TrialEnd),
		CanceledAt:        epochTime(s.CanceledAt),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
	}

	periodStart, periodEnd := s.CurrentPeriodStart, s.CurrentPeriodEnd
	if len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.PriceID = item.Price.ID
		if periodStart == 0 {
			periodStart = item.CurrentPeriodStart
		}
		if periodEnd == 0 {
			periodEnd = item.CurrentPeriodEnd
		}
	}
	out.CurrentPeriodStart = epochTime(periodStart)
	out.CurrentPeriodEnd = epochTime(periodEnd)
	return out
}

// stripeInvoice accepts the legacy top-level subscription reference
// and the parent.subscription_details form.
type stripeInvoice struct {
	ID            string    `json:"id"`
	Customer      stripeRef `json:"customer"`
	CustomerEmail string    `json:"customer_email"`
	Subscription  stripeRef `json:"subscription"`
	AttemptCount  int64     `json:"attempt_count"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription stripeRef `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (i stripeInvoice) payload() *InvoicePayload {
	subID := i.Subscription.ID
	if subID == "" && i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		subID = i.Parent.SubscriptionDetails.Subscription.ID
	}
	return &InvoicePayload{
		ID:             i.ID,
		CustomerID:     i.Customer.ID,
		CustomerEmail:  i.CustomerEmail,
		SubscriptionID: subID,
		AttemptCount:   i.AttemptCount,
	}
}

type stripeCheckoutSession struct {
	ID                string    `json:"id"`
	Customer          stripeRef `json:"customer"`
	Subscription      stripeRef `json:"subscription"`
	ClientReferenceID string    `json:"client_reference_id"`
}
