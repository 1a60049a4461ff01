package identity

import "time"

type Config struct {
	Secret     string        `env:"AUTH_JWT_SECRET"`                       // Secret is the HMAC key shared with the identity provider layer.
	Issuer     string        `env:"AUTH_JWT_ISSUER" envDefault:"saasdash"` // Issuer is the expected "iss" claim.
	CookieName string        `env:"AUTH_COOKIE_NAME" envDefault:"session"` // CookieName is the session cookie carrying the token.
	TTL        time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"720h"`      // TTL is the lifetime of tokens minted by Issue.
}
