// Package httpserver runs the HTTP server with graceful shutdown and exposes
// liveness and readiness handlers.
//
// Run blocks until the context passed to it is canceled, then drains
// in-flight requests within the configured shutdown timeout:
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server failed", logger.Error(err))
//	}
//
// ReadinessHandler reports per-dependency status as JSON and answers 503 when
// any named check fails. Configuration is read from HTTP_* environment
// variables.
package httpserver
