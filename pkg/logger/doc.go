// Package logger builds the service *slog.Logger and holds the attribute
// helpers used across the billing code.
//
// New picks text at debug level for development and JSON at info level for
// staging and production. Every record carries the service and env names.
// ContextExtractors copy request-scoped values, such as the request ID or
// the signed-in user, onto each record logged with that context:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "saasdash"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	slog.SetDefault(log)
//
// Attribute helpers keep key names stable so billing logs can be queried by
// user_id, customer_id, subscription_id and event_type.
package logger
