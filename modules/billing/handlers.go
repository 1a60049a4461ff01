package billing

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrymomot/saasdash/handler"
	core "github.com/dmitrymomot/saasdash/pkg/billing"
	"github.com/dmitrymomot/saasdash/pkg/identity"
	"github.com/dmitrymomot/saasdash/pkg/logger"
)

var (
	errSignInRequired = handler.ErrUnauthorized.WithMessage("Sign in required")
	errPriceRequired  = handler.ErrBadRequest.WithMessage("Price ID is required")
	errUnknownPrice   = handler.ErrBadRequest.WithMessage("Unknown price")
	errCheckoutFailed = handler.ErrInternalServerError.WithMessage("Failed to create checkout session")
	errPortalFailed   = handler.ErrInternalServerError.WithMessage("Failed to open billing portal")
	errMissingSig     = handler.ErrBadRequest.WithMessage("Missing webhook signature")
	errBadSignature   = handler.ErrBadRequest.WithMessage("Invalid webhook signature or payload")
	errWebhookFailed  = handler.ErrInternalServerError.WithMessage("Webhook processing failed")
	errSubscription   = handler.ErrInternalServerError.WithMessage("Failed to load subscription")
)

type urlResponse struct {
	URL string `json:"url"`
}

type checkoutRequest struct {
	PriceID string `json:"priceId" validate:"required,max=255"`
}

func (m *module) checkout(ctx handler.Context, req checkoutRequest) handler.Response {
	u, ok := identity.FromContext(ctx)
	if !ok || u.Email == "" {
		m.metrics.checkout("unauthorized")
		return handler.Error(errSignInRequired)
	}
	if err := handler.Validate(m.validate, req); err != nil {
		m.metrics.checkout("invalid")
		return handler.Error(errPriceRequired)
	}

	session, err := m.svc.Checkout(ctx, core.User{ID: u.ID, Email: u.Email, Name: u.Name}, core.CheckoutParams{
		PriceID:    req.PriceID,
		SuccessURL: m.url(m.opts.CheckoutReturnPath) + "?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  m.url(m.redirectTarget(m.opts.PricingPath, "canceled")),
	})
	switch {
	case errors.Is(err, core.ErrMissingPriceID):
		m.metrics.checkout("invalid")
		return handler.Error(errPriceRequired)
	case errors.Is(err, core.ErrPriceNotPurchasable):
		m.metrics.checkout("invalid")
		return handler.Error(errUnknownPrice)
	case err != nil:
		m.metrics.checkout("error")
		m.log.ErrorContext(ctx, "checkout failed",
			logger.UserID(u.ID),
			logger.Error(err),
			logger.Handler("billing.checkout"),
		)
		return handler.Error(errCheckoutFailed)
	}

	m.metrics.checkout("created")
	return handler.JSON(http.StatusOK, urlResponse{URL: session.URL})
}

type checkoutReturnRequest struct {
	SessionID string `query:"session_id"`
}

// checkoutReturn syncs the subscription when the processor sends the user back,
// so the dashboard is current even before the webhook arrives.
func (m *module) checkoutReturn(ctx handler.Context, req checkoutReturnRequest) handler.Response {
	if req.SessionID == "" {
		return handler.Redirect(m.opts.PricingPath)
	}

	rec, err := m.svc.CompleteCheckout(ctx, req.SessionID)
	switch {
	case errors.Is(err, core.ErrNotSupported):
		// Provider syncs through webhooks only.
	case err != nil:
		m.log.ErrorContext(ctx, "checkout return failed",
			logger.Error(err),
			logger.Handler("billing.checkout_return"),
		)
		return handler.Redirect(m.redirectTarget(m.opts.PricingPath, "error"))
	default:
		m.log.InfoContext(ctx, "checkout return synced",
			logger.UserID(rec.UserID),
			logger.PlanID(rec.PlanID),
		)
	}

	return handler.Redirect(m.redirectTarget(m.opts.DashboardPath, "success"))
}

func (m *module) portal(ctx handler.Context, _ struct{}) handler.Response {
	u, ok := identity.FromContext(ctx)
	if !ok {
		m.metrics.portal("unauthorized")
		return handler.Error(errSignInRequired)
	}

	session, err := m.svc.Portal(ctx, u.ID, m.url(m.opts.SettingsPath))
	switch {
	case errors.Is(err, core.ErrNoBillingCustomer):
		m.metrics.portal("no_customer")
		return handler.Error(handler.ErrBadRequest.
			WithMessage("No active subscription").
			WithRedirect(m.opts.PricingPath))
	case err != nil:
		m.metrics.portal("error")
		m.log.ErrorContext(ctx, "portal session failed",
			logger.UserID(u.ID),
			logger.Error(err),
			logger.Handler("billing.portal"),
		)
		return handler.Error(errPortalFailed)
	}

	m.metrics.portal("created")
	return handler.JSON(http.StatusOK, urlResponse{URL: session.URL})
}

// webhook reads the raw body because signature verification needs the exact bytes.
func (m *module) webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	render := func(resp handler.Response) {
		if err := resp.Render(w, r); err != nil {
			m.log.ErrorContext(ctx, "failed to write webhook response", logger.Error(err))
		}
	}

	signature := r.Header.Get(m.svc.SignatureHeader())
	if signature == "" {
		m.metrics.webhook("", "missing_signature")
		render(handler.Error(errMissingSig))
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWebhookBodySize))
	if err != nil {
		m.metrics.webhook("", "invalid_payload")
		render(handler.Error(handler.ErrBadRequest.WithMessage("Unreadable webhook body")))
		return
	}

	res, err := m.svc.HandleWebhook(ctx, payload, signature)
	switch {
	case errors.Is(err, core.ErrInvalidSignature), errors.Is(err, core.ErrInvalidPayload):
		m.metrics.webhook("", "rejected")
		m.log.WarnContext(ctx, "webhook rejected", logger.Error(err), logger.Handler("billing.webhook"))
		render(handler.Error(errBadSignature))
		return
	case err != nil:
		m.metrics.webhook(res.EventType, "error")
		m.log.ErrorContext(ctx, "webhook processing failed",
			logger.EventID(res.EventID),
			logger.EventType(res.EventType),
			logger.Error(err),
			logger.Handler("billing.webhook"),
		)
		render(handler.Error(errWebhookFailed))
		return
	}

	m.metrics.webhook(res.EventType, string(res.Outcome))
	render(handler.JSON(http.StatusOK, map[string]bool{"received": true}))
}

type moneyView struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type planView struct {
	ID              core.PlanID `json:"id"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	MonthlyPrice    moneyView   `json:"monthlyPrice"`
	YearlyPrice     moneyView   `json:"yearlyPrice"`
	MonthlyPriceID  string      `json:"monthlyPriceId,omitempty"`
	YearlyPriceID   string      `json:"yearlyPriceId,omitempty"`
	TrialDays       int         `json:"trialDays"`
	GenerationLimit int64       `json:"generationLimit"`
	Features        []string    `json:"features"`
	Popular         bool        `json:"popular"`
}

func newPlanView(p core.Plan) planView {
	features := p.Features
	if features == nil {
		features = []string{}
	}
	return planView{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		MonthlyPrice:    moneyView(p.MonthlyPrice),
		YearlyPrice:     moneyView(p.YearlyPrice),
		MonthlyPriceID:  p.PriceIDs.Monthly,
		YearlyPriceID:   p.PriceIDs.Yearly,
		TrialDays:       p.TrialDays,
		GenerationLimit: p.GenerationLimit,
		Features:        features,
		Popular:         p.Popular,
	}
}

func (m *module) plans(_ handler.Context, _ struct{}) handler.Response {
	all := m.svc.Plans().All()
	views := make([]planView, 0, len(all))
	for _, p := range all {
		views = append(views, newPlanView(p))
	}
	return handler.JSON(http.StatusOK, map[string]any{"plans": views})
}

type subscriptionView struct {
	Plan               planView    `json:"plan"`
	Status             core.Status `json:"status"`
	HasAccess          bool        `json:"hasAccess"`
	IsTrialing         bool        `json:"isTrialing"`
	TrialDaysRemaining int         `json:"trialDaysRemaining"`
	TrialEndsAt        *time.Time  `json:"trialEndsAt,omitempty"`
	CurrentPeriodEnd   *time.Time  `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd  bool        `json:"cancelAtPeriodEnd"`
	CanManageBilling   bool        `json:"canManageBilling"`
}

func (m *module) subscription(ctx handler.Context, _ struct{}) handler.Response {
	u, ok := identity.FromContext(ctx)
	if !ok {
		return handler.Error(errSignInRequired)
	}

	rec, err := m.svc.GetSubscription(ctx, u.ID)
	if errors.Is(err, core.ErrRecordNotFound) {
		return handler.JSON(http.StatusOK, subscriptionView{
			Plan:   newPlanView(m.svc.Plans().ByID(core.PlanFree)),
			Status: core.StatusInactive,
		})
	}
	if err != nil {
		m.log.ErrorContext(ctx, "failed to load subscription",
			logger.UserID(u.ID),
			logger.Error(err),
			logger.Handler("billing.subscription"),
		)
		return handler.Error(errSubscription)
	}

	return handler.JSON(http.StatusOK, subscriptionView{
		Plan:               newPlanView(m.svc.Plans().ByID(rec.PlanID)),
		Status:             rec.Status,
		HasAccess:          rec.HasAccess(),
		IsTrialing:         rec.IsTrialing(),
		TrialDaysRemaining: rec.TrialDaysRemainingAt(time.Now()),
		TrialEndsAt:        rec.TrialEndsAt,
		CurrentPeriodEnd:   rec.CurrentPeriodEnd,
		CancelAtPeriodEnd:  rec.CancelAtPeriodEnd,
		CanManageBilling:   rec.ProviderCustomerID != "",
	})
}
