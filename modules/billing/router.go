package billing

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dmitrymomot/saasdash/handler"
	core "github.com/dmitrymomot/saasdash/pkg/billing"
	"github.com/dmitrymomot/saasdash/pkg/binder"
	"github.com/dmitrymomot/saasdash/pkg/clientip"
	"github.com/dmitrymomot/saasdash/pkg/identity"
	"github.com/dmitrymomot/saasdash/pkg/logger"
	"github.com/dmitrymomot/saasdash/pkg/ratelimiter"
)

// MaxWebhookBodySize caps webhook payloads read into memory.
const MaxWebhookBodySize = 1 << 20

// Options configures the billing HTTP module.
type Options struct {
	Service core.Service
	// AppURL is the public base URL used for checkout and portal return links.
	AppURL  string
	Logger  *slog.Logger
	Metrics *Metrics
	// Limiter, when set, throttles checkout and portal session creation.
	Limiter *ratelimiter.Bucket

	// Redirect targets. Zero values fall back to the dashboard defaults.
	PricingPath   string
	DashboardPath string
	SettingsPath  string
	// CheckoutReturnPath is where the processor sends the user after payment.
	// It must route back to GET /checkout of this module.
	CheckoutReturnPath string
}

func (o *Options) setDefaults() {
	o.AppURL = strings.TrimRight(o.AppURL, "/")
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.PricingPath == "" {
		o.PricingPath = "/pricing"
	}
	if o.DashboardPath == "" {
		o.DashboardPath = "/dashboard"
	}
	if o.SettingsPath == "" {
		o.SettingsPath = "/dashboard/settings"
	}
	if o.CheckoutReturnPath == "" {
		o.CheckoutReturnPath = "/api/billing/checkout"
	}
}

type module struct {
	opts     Options
	svc      core.Service
	log      *slog.Logger
	metrics  *Metrics
	validate *validator.Validate
	onError  handler.ErrorHandler[handler.Context]
}

// Router returns the billing routes, meant to be mounted at /api/billing.
// Authenticated routes read the user placed in the context by identity.Middleware.
//
//	r.Mount("/api/billing", billing.Router(billing.Options{
//		Service: svc,
//		AppURL:  cfg.AppURL,
//	}))
func Router(opts Options) chi.Router {
	if opts.Service == nil {
		panic("billing: service is required")
	}
	opts.setDefaults()

	m := &module{
		opts:     opts,
		svc:      opts.Service,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		validate: handler.NewValidator(),
		onError:  handler.NewErrorHandler(opts.Logger),
	}

	r := chi.NewRouter()

	// Session creation calls the processor API, so it is throttled per user.
	var sessions chi.Router = r
	if opts.Limiter != nil {
		sessions = r.With(ratelimiter.Middleware(opts.Limiter, sessionLimitKey, opts.Logger))
	}

	sessions.With(m.requireUser(m.metrics.checkout)).Post("/checkout", handler.Wrap(m.checkout,
		handler.WithBinders[handler.Context, checkoutRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, checkoutRequest](m.onError),
	))
	r.Get("/checkout", handler.Wrap(m.checkoutReturn,
		handler.WithBinders[handler.Context, checkoutReturnRequest](binder.Query()),
		handler.WithErrorHandler[handler.Context, checkoutReturnRequest](m.onError),
	))
	sessions.With(m.requireUser(m.metrics.portal)).Post("/portal", handler.Wrap(m.portal,
		handler.WithErrorHandler[handler.Context, struct{}](m.onError),
	))
	r.Post("/webhook", m.webhook)
	r.With(m.requireUser(nil)).Get("/subscription", handler.Wrap(m.subscription,
		handler.WithErrorHandler[handler.Context, struct{}](m.onError),
	))
	r.Get("/plans", handler.Wrap(m.plans,
		handler.WithErrorHandler[handler.Context, struct{}](m.onError),
	))

	return r
}

// requireUser answers 401 before the request body is read when no user is
// in the context. count, when set, records the rejection.
func (m *module) requireUser(count func(result string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := identity.FromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			if count != nil {
				count("unauthorized")
			}
			if err := handler.Error(errSignInRequired).Render(w, r); err != nil {
				m.log.ErrorContext(r.Context(), "failed to write response", logger.Error(err))
			}
		})
	}
}

// sessionLimitKey keys limits by user, or by client address for anonymous calls.
func sessionLimitKey(r *http.Request) string {
	if u, ok := identity.FromContext(r.Context()); ok {
		return "billing:user:" + u.ID
	}
	ip := clientip.FromContext(r.Context())
	if ip == "" {
		ip = clientip.FromRequest(r)
	}
	if ip == "" {
		return ""
	}
	return "billing:ip:" + ip
}

func (m *module) url(path string) string {
	return m.opts.AppURL + path
}

// redirectTarget is relative to the app so it works behind any host.
func (m *module) redirectTarget(path, checkoutState string) string {
	if checkoutState == "" {
		return path
	}
	return path + "?checkout=" + checkoutState
}
