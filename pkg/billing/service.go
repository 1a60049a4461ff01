package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/saasdash/pkg/logger"
)

// Service defines the public interface for subscription billing.
type Service interface {
	// Checkout starts a hosted checkout for priceID on behalf of user.
	Checkout(ctx context.Context, user User, params CheckoutParams) (*CheckoutSession, error)

	// CompleteCheckout syncs the subscription created by a finished checkout session
	// without waiting for the webhook.
	CompleteCheckout(ctx context.Context, sessionID string) (*Record, error)

	// Portal opens a customer portal session for the user.
	// Returns ErrNoBillingCustomer if the user never went through checkout.
	Portal(ctx context.Context, userID, returnURL string) (*PortalSession, error)

	// HandleWebhook verifies and applies a provider notification.
	// A nil error means the delivery can be acknowledged.
	HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error)

	// Read model
	GetSubscription(ctx context.Context, userID string) (*Record, error)
	HasActiveSubscription(ctx context.Context, userID string) (bool, error)
	IsInTrial(ctx context.Context, userID string) (bool, error)
	CurrentPlan(ctx context.Context, userID string) (Plan, error)
	CanAccess(ctx context.Context, userID string, required PlanID) (bool, error)

	Plans() *Registry
	SignatureHeader() string
}

// WebhookResult describes a verified webhook delivery.
type WebhookResult struct {
	EventID   string
	EventType string // provider event type, e.g. customer.subscription.updated
	Outcome   Outcome
}

// CheckoutParams are the caller-supplied checkout inputs.
type CheckoutParams struct {
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// ServiceOption configures a Service instance.
type ServiceOption func(*service)

// WithLogger sets the logger used for billing events.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithNotifier registers a notifier for stored billing events.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *service) {
		if n != nil {
			s.notifier = n
		}
	}
}

type service struct {
	plans    *Registry
	store    Store
	provider Provider
	resolver *CustomerResolver
	notifier Notifier
	log      *slog.Logger
}

// NewService creates a new Service with the given dependencies.
// Panics if a required dependency is nil to fail fast during initialization.
func NewService(plans *Registry, store Store, provider Provider, opts ...ServiceOption) Service {
	if plans == nil {
		panic("billing: plan Registry is required")
	}
	if store == nil {
		panic("billing: Store is required")
	}
	if provider == nil {
		panic("billing: Provider is required")
	}

	s := &service{
		plans:    plans,
		store:    store,
		provider: provider,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("billing"))
	s.resolver = NewCustomerResolver(store, provider, s.log)

	return s
}

func (s *service) Plans() *Registry {
	return s.plans
}

func (s *service) SignatureHeader() string {
	return s.provider.SignatureHeader()
}

func (s *service) Checkout(ctx context.Context, user User, params CheckoutParams) (*CheckoutSession, error) {
	if user.ID == "" {
		return nil, ErrMissingUserID
	}
	if params.PriceID == "" {
		return nil, ErrMissingPriceID
	}
	plan, ok := s.plans.ByExternalPriceID(params.PriceID)
	if !ok || !plan.Purchasable() {
		return nil, ErrPriceNotPurchasable
	}

	customerID, err := s.resolver.Resolve(ctx, user)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to resolve billing customer",
			logger.UserID(user.ID),
			logger.Error(err),
		)
		return nil, err
	}

	session, err := s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		CustomerID: customerID,
		UserID:     user.ID,
		PriceID:    params.PriceID,
		TrialDays:  plan.TrialDays,
		SuccessURL: params.SuccessURL,
		CancelURL:  params.CancelURL,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to create checkout session",
			logger.UserID(user.ID),
			logger.CustomerID(customerID),
			logger.PlanID(plan.ID),
			logger.Error(err),
		)
		return nil, errors.Join(ErrProviderRequestFailed, err)
	}
	if session.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	s.log.InfoContext(ctx, "checkout session created",
		logger.UserID(user.ID),
		logger.CustomerID(customerID),
		logger.PlanID(plan.ID),
		slog.Int("trial_days", plan.TrialDays),
	)
	return session, nil
}

func (s *service) CompleteCheckout(ctx context.Context, sessionID string) (*Record, error) {
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}

	sub, err := s.provider.GetCheckoutSubscription(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sub.ID == "" || sub.CustomerID == "" {
		return nil, ErrNoCheckoutSubscription
	}

	current, err := s.store.GetByCustomerID(ctx, sub.CustomerID)
	if err != nil {
		return nil, err
	}

	// No occurrence time: the write carries the stored ordering guard, so only
	// a webhook stored in the meantime wins over this snapshot.
	next, outcome := Reduce(*current, Event{
		ID:           sessionID,
		Type:         EventSubscriptionCreated,
		ProviderType: string(EventCheckoutCompleted),
		CustomerID:   sub.CustomerID,
		Subscription: sub,
	}, s.plans)
	if outcome != OutcomeApplied {
		return current, nil
	}

	if err := s.store.Update(ctx, &next); err != nil {
		if errors.Is(err, ErrStaleEvent) {
			return s.store.GetByCustomerID(ctx, sub.CustomerID)
		}
		return nil, err
	}

	s.log.InfoContext(ctx, "checkout completed",
		logger.UserID(next.UserID),
		logger.CustomerID(next.ProviderCustomerID),
		logger.SubscriptionID(next.ProviderSubID),
		logger.PlanID(next.PlanID),
		slog.String("status", string(next.Status)),
	)
	return &next, nil
}

func (s *service) Portal(ctx context.Context, userID, returnURL string) (*PortalSession, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	rec, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrNoBillingCustomer
		}
		return nil, err
	}
	if rec.ProviderCustomerID == "" {
		return nil, ErrNoBillingCustomer
	}

	configID, err := s.provider.PortalConfiguration(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "failed to load portal configuration", logger.Error(err))
		return nil, errors.Join(ErrProviderRequestFailed, err)
	}

	session, err := s.provider.CreatePortalSession(ctx, PortalRequest{
		CustomerID:      rec.ProviderCustomerID,
		SubscriptionID:  rec.ProviderSubID,
		ReturnURL:       returnURL,
		ConfigurationID: configID,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "failed to create portal session",
			logger.UserID(userID),
			logger.CustomerID(rec.ProviderCustomerID),
			logger.Error(err),
		)
		return nil, errors.Join(ErrProviderRequestFailed, err)
	}
	if session.URL == "" {
		return nil, ErrNoPortalURL
	}
	return session, nil
}

func (s *service) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	ev, err := s.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return WebhookResult{}, err
	}

	res := WebhookResult{EventID: ev.ID, EventType: ev.ProviderType}
	res.Outcome, err = s.applyEvent(ctx, ev)
	return res, err
}

func (s *service) applyEvent(ctx context.Context, ev *Event) (Outcome, error) {
	log := s.log.With(
		logger.EventID(ev.ID),
		logger.EventType(ev.ProviderType),
		logger.CustomerID(ev.CustomerID),
	)

	switch ev.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted, EventPaymentFailed:
	default:
		log.DebugContext(ctx, "billing event ignored")
		return OutcomeIgnored, nil
	}

	if ev.CustomerID == "" {
		log.WarnContext(ctx, "billing event without customer ignored")
		return OutcomeIgnored, nil
	}

	current, err := s.store.GetByCustomerID(ctx, ev.CustomerID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			log.InfoContext(ctx, "billing event for unknown customer ignored")
			return OutcomeUnknownCustomer, nil
		}
		log.ErrorContext(ctx, "failed to load subscription record", logger.Error(err))
		return "", fmt.Errorf("load subscription record: %w", err)
	}

	next, outcome := Reduce(*current, *ev, s.plans)
	if outcome != OutcomeApplied {
		log.InfoContext(ctx, "billing event not applied", logger.Outcome(outcome))
		return outcome, nil
	}

	if err := s.store.Update(ctx, &next); err != nil {
		if errors.Is(err, ErrStaleEvent) {
			log.InfoContext(ctx, "billing event superseded by a newer one", logger.Outcome(OutcomeStale))
			return OutcomeStale, nil
		}
		log.ErrorContext(ctx, "failed to store subscription record", logger.Error(err))
		return "", err
	}

	log.InfoContext(ctx, "billing event applied",
		logger.UserID(next.UserID),
		logger.SubscriptionID(next.ProviderSubID),
		logger.PlanID(next.PlanID),
		slog.String("status", string(next.Status)),
	)

	if ev.Type == EventPaymentFailed && s.notifier != nil && ev.Invoice != nil {
		if err := s.notifier.PaymentFailed(ctx, next, *ev.Invoice); err != nil {
			log.ErrorContext(ctx, "failed to notify about failed payment", logger.Error(err))
		}
	}

	return OutcomeApplied, nil
}

func (s *service) GetSubscription(ctx context.Context, userID string) (*Record, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	return s.store.GetByUserID(ctx, userID)
}

// lookup returns the user's record, or nil when the user has none.
func (s *service) lookup(ctx context.Context, userID string) (*Record, error) {
	rec, err := s.GetSubscription(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	return rec, err
}

func (s *service) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	rec, err := s.lookup(ctx, userID)
	if err != nil || rec == nil {
		return false, err
	}
	return rec.HasAccess(), nil
}

func (s *service) IsInTrial(ctx context.Context, userID string) (bool, error) {
	rec, err := s.lookup(ctx, userID)
	if err != nil || rec == nil {
		return false, err
	}
	return rec.IsTrialing(), nil
}

func (s *service) CurrentPlan(ctx context.Context, userID string) (Plan, error) {
	rec, err := s.lookup(ctx, userID)
	if err != nil {
		return Plan{}, err
	}
	if rec == nil {
		return s.plans.ByID(PlanFree), nil
	}
	return s.plans.ByID(rec.PlanID), nil
}

// CanAccess reports whether the user's plan is at least required.
// Users without a subscription only reach free features.
func (s *service) CanAccess(ctx context.Context, userID string, required PlanID) (bool, error) {
	rec, err := s.lookup(ctx, userID)
	if err != nil {
		return false, err
	}
	if rec == nil || rec.Status == StatusInactive {
		return required == PlanFree, nil
	}
	return Rank(rec.PlanID) >= Rank(required), nil
}
