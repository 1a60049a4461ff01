package identity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/saasdash/pkg/logger"
)

// TokenExtractorFunc pulls a raw token out of a request.
type TokenExtractorFunc func(r *http.Request) (string, error)

// Middleware attaches the authenticated user to the request context.
// Requests without a valid token pass through anonymously; handlers decide
// whether authentication is required. Extractors are tried in order.
func Middleware(v *Verifier, log *slog.Logger, extractors ...TokenExtractorFunc) func(http.Handler) http.Handler {
	if v == nil {
		panic("identity: verifier is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if len(extractors) == 0 {
		extractors = []TokenExtractorFunc{BearerTokenExtractor}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, extract := range extractors {
				token, err := extract(r)
				if err != nil {
					continue
				}
				u, err := v.Parse(token)
				if err != nil {
					log.DebugContext(r.Context(), "session token rejected",
						logger.Error(err),
						logger.Component("identity"),
					)
					break
				}
				r = r.WithContext(WithUser(r.Context(), u))
				break
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerTokenExtractor reads "Authorization: Bearer <token>".
func BearerTokenExtractor(r *http.Request) (string, error) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// CookieTokenExtractor reads the token from the named cookie.
func CookieTokenExtractor(name string) TokenExtractorFunc {
	return func(r *http.Request) (string, error) {
		c, err := r.Cookie(name)
		if err != nil || c.Value == "" {
			return "", ErrMissingToken
		}
		return c.Value, nil
	}
}
