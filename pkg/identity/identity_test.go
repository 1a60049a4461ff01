package identity_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saasdash/pkg/identity"
)

func newVerifier(t *testing.T) *identity.Verifier {
	t.Helper()
	v, err := identity.NewVerifier(identity.Config{Secret: "test-secret", Issuer: "saasdash", TTL: time.Hour})
	require.NoError(t, err)
	return v
}

func TestVerifier(t *testing.T) {
	t.Parallel()

	t.Run("issue and parse", func(t *testing.T) {
		t.Parallel()
		v := newVerifier(t)
		token, err := v.Issue(identity.User{ID: "user_1", Email: "a@example.com", Name: "Ann"})
		require.NoError(t, err)

		u, err := v.Parse(token)
		require.NoError(t, err)
		assert.Equal(t, identity.User{ID: "user_1", Email: "a@example.com", Name: "Ann"}, u)
	})

	t.Run("missing secret", func(t *testing.T) {
		t.Parallel()
		_, err := identity.NewVerifier(identity.Config{})
		assert.ErrorIs(t, err, identity.ErrMissingSecret)
	})

	t.Run("missing user id", func(t *testing.T) {
		t.Parallel()
		_, err := newVerifier(t).Issue(identity.User{})
		assert.ErrorIs(t, err, identity.ErrMissingUserID)
	})

	t.Run("wrong key", func(t *testing.T) {
		t.Parallel()
		other, err := identity.NewVerifier(identity.Config{Secret: "other", Issuer: "saasdash"})
		require.NoError(t, err)
		token, err := other.Issue(identity.User{ID: "user_1"})
		require.NoError(t, err)

		_, err = newVerifier(t).Parse(token)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		t.Parallel()
		other, err := identity.NewVerifier(identity.Config{Secret: "test-secret", Issuer: "elsewhere"})
		require.NoError(t, err)
		token, err := other.Issue(identity.User{ID: "user_1"})
		require.NoError(t, err)

		_, err = newVerifier(t).Parse(token)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		claims := identity.Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user_1",
			Issuer:    "saasdash",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = newVerifier(t).Parse(token)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("empty token", func(t *testing.T) {
		t.Parallel()
		_, err := newVerifier(t).Parse("")
		assert.ErrorIs(t, err, identity.ErrMissingToken)
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()
	v := newVerifier(t)
	token, err := v.Issue(identity.User{ID: "user_1", Email: "a@example.com"})
	require.NoError(t, err)

	var (
		gotUser identity.User
		gotOK   bool
	)
	h := identity.Middleware(v, nil,
		identity.BearerTokenExtractor,
		identity.CookieTokenExtractor("session"),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotOK = identity.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name    string
		prepare func(r *http.Request)
		wantOK  bool
	}{
		{name: "bearer", prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, wantOK: true},
		{name: "cookie", prepare: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "session", Value: token}) }, wantOK: true},
		{name: "anonymous", prepare: func(r *http.Request) {}, wantOK: false},
		{name: "invalid token passes through", prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, wantOK: false},
		{name: "wrong scheme", prepare: func(r *http.Request) { r.Header.Set("Authorization", "Basic "+token) }, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantOK, gotOK)
			if tt.wantOK {
				assert.Equal(t, "user_1", gotUser.ID)
				assert.Equal(t, "a@example.com", gotUser.Email)
			}
		})
	}
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()
	extract := identity.LoggerExtractor()

	attr, ok := extract(identity.WithUser(context.Background(), identity.User{ID: "user_1"}))
	require.True(t, ok)
	assert.Equal(t, "user_id", attr.Key)
	assert.Equal(t, "user_1", attr.Value.String())

	_, ok = extract(context.Background())
	assert.False(t, ok)
}
