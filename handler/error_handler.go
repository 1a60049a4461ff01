package handler

import (
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/saasdash/pkg/logger"
)

// NewErrorHandler logs the failure and writes a JSON error body.
// Client errors log at warn level, server errors at error level.
func NewErrorHandler(log *slog.Logger) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx Context, err error) {
		status, _ := classify(err)
		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}

		r := ctx.Request()
		log.LogAttrs(r.Context(), level, "request failed",
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("http"),
		)

		writeError(ctx.ResponseWriter(), err)
	}
}
