package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/saasdash/db"
	billingmod "github.com/dmitrymomot/saasdash/modules/billing"
	"github.com/dmitrymomot/saasdash/pkg/billing"
	"github.com/dmitrymomot/saasdash/pkg/clientip"
	"github.com/dmitrymomot/saasdash/pkg/config"
	"github.com/dmitrymomot/saasdash/pkg/email"
	"github.com/dmitrymomot/saasdash/pkg/httpserver"
	"github.com/dmitrymomot/saasdash/pkg/identity"
	"github.com/dmitrymomot/saasdash/pkg/logger"
	"github.com/dmitrymomot/saasdash/pkg/pg"
	"github.com/dmitrymomot/saasdash/pkg/ratelimiter"
	"github.com/dmitrymomot/saasdash/pkg/redis"
	"github.com/dmitrymomot/saasdash/pkg/requestid"
)

type appConfig struct {
	Name            string        `env:"APP_NAME" envDefault:"SaaS Dash"`
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"saasdash"`
	Env             string        `env:"APP_ENV" envDefault:"development"`
	URL             string        `env:"APP_URL" envDefault:"http://localhost:8080"`
	BillingProvider string        `env:"BILLING_PROVIDER" envDefault:"stripe"`
	ReadyTimeout    time.Duration `env:"READY_CHECK_TIMEOUT" envDefault:"3s"`
	// LogLevel overrides the environment default, e.g. "debug" or "warn".
	LogLevel string `env:"LOG_LEVEL"`
}

func main() {
	// .env is optional outside development.
	_ = config.LoadEnv()

	var app appConfig
	config.MustLoad(&app)

	logOpts := []logger.Option{
		logger.WithEnvironment(app.Env, app.ServiceName),
		logger.WithContextExtractors(requestid.LoggerExtractor(), identity.LoggerExtractor()),
	}
	if app.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(app.LogLevel)); err != nil {
			fmt.Fprintf(os.Stderr, "invalid LOG_LEVEL %q: %v\n", app.LogLevel, err)
			os.Exit(1)
		}
		logOpts = append(logOpts, logger.WithLevel(level))
	}
	log := logger.New(logOpts...)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, app, log); err != nil {
		log.Error("server stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, app appConfig, log *slog.Logger) error {
	checks := map[string]httpserver.Check{}

	store, closeStore, err := openStore(ctx, log, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	var cache billing.ConfigCache
	var limitStore ratelimiter.Store = ratelimiter.NewMemoryStore()
	var redisCfg redis.Config
	config.MustLoad(&redisCfg)
	if redisCfg.ConnectionURL != "" {
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		cache = redis.NewCache(client, redisCfg.KeyPrefix)
		limitStore = ratelimiter.NewRedisStore(client, redisCfg.KeyPrefix)
		checks["redis"] = redis.Healthcheck(client)
	}

	var limitCfg ratelimiter.Config
	config.MustLoad(&limitCfg)
	limiter, err := ratelimiter.NewBucket(limitStore, limitCfg)
	if err != nil {
		return err
	}

	var prices billing.PriceConfig
	config.MustLoad(&prices)
	plans, err := billing.NewRegistry(billing.DefaultPlans(prices)...)
	if err != nil {
		return err
	}

	provider, err := newProvider(app.BillingProvider, cache, plans)
	if err != nil {
		return err
	}

	var emailCfg email.Config
	if err := config.Load(&emailCfg); err != nil {
		return err
	}
	sender, err := email.NewSender(emailCfg)
	if err != nil {
		return err
	}

	svc := billing.NewService(plans, store, provider,
		billing.WithLogger(log),
		billing.WithNotifier(billing.NewEmailNotifier(sender, app.Name,
			strings.TrimRight(app.URL, "/")+"/dashboard/settings", emailCfg.SupportEmail)),
	)

	var authCfg identity.Config
	config.MustLoad(&authCfg)
	verifier, err := identity.NewVerifier(authCfg)
	if err != nil {
		return err
	}

	var serverCfg httpserver.Config
	config.MustLoad(&serverCfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware)
	r.Get("/live", httpserver.LivenessHandler())
	r.Get("/ready", httpserver.ReadinessHandler(log, app.ReadyTimeout, checks))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(verifier, log,
			identity.BearerTokenExtractor,
			identity.CookieTokenExtractor(authCfg.CookieName),
		))
		r.Mount("/api/billing", billingmod.Router(billingmod.Options{
			Service: svc,
			AppURL:  app.URL,
			Logger:  log,
			Metrics: billingmod.NewMetrics(reg),
			Limiter: limiter,
		}))
	})

	srv := httpserver.NewFromConfig(serverCfg,
		httpserver.WithLogger(log),
		httpserver.WithStartHook(func(addr string) {
			log.Info("http server started", slog.String("addr", addr), slog.String("billing_provider", app.BillingProvider))
		}),
	)
	return srv.Run(ctx, r)
}

// openStore uses Postgres when PG_CONN_URL is set and an in-memory store otherwise.
func openStore(ctx context.Context, log *slog.Logger, checks map[string]httpserver.Check) (billing.Store, func(), error) {
	var cfg pg.Config
	config.MustLoad(&cfg)
	if cfg.ConnectionString == "" {
		log.Warn("PG_CONN_URL is empty, subscription records are kept in memory")
		return billing.NewMemoryStore(), func() {}, nil
	}

	pool, err := pg.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	cfg.MigrationsPath = db.MigrationsDir
	if err := pg.Migrate(ctx, pool, cfg, db.Migrations, log); err != nil {
		pool.Close()
		return nil, nil, err
	}
	checks["postgres"] = pg.Healthcheck(pool)

	return billing.NewPostgresStore(pool), pool.Close, nil
}

func newProvider(name string, cache billing.ConfigCache, plans *billing.Registry) (billing.Provider, error) {
	switch name {
	case "stripe":
		var cfg billing.StripeConfig
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		opts := []billing.StripeOption{billing.WithPortalPrices(plans.PriceIDs()...)}
		if cache != nil {
			opts = append(opts, billing.WithPortalConfigCache(cache))
		}
		return billing.NewStripeProvider(cfg, opts...)
	case "paddle":
		var cfg billing.PaddleConfig
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		return billing.NewPaddleProvider(cfg)
	default:
		return nil, errors.New("unknown BILLING_PROVIDER " + name)
	}
}
