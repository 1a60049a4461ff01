// Package requestid attaches a correlation ID to every HTTP request.
//
// Middleware reuses a valid client supplied X-Request-ID header or generates
// a UUID, stores it in the request context and echoes it in the response.
// LoggerExtractor adds the ID to every log record written with the request
// context:
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
//	r.Use(requestid.Middleware)
package requestid
