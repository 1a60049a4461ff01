package email_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saasdash/pkg/email"
)

var paymentFailed = email.Message{
	To:       "jane@example.com",
	Subject:  "Action required: payment for SaaS Dash failed",
	HTML:     "<p>Your latest payment did not go through.</p>",
	Tag:      "billing-payment-failed",
	Metadata: map[string]string{"customer_id": "cus_1", "invoice_id": "in_1"},
}

func TestMessage_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*email.Message)
	}{
		{"missing recipient", func(m *email.Message) { m.To = "" }},
		{"malformed recipient", func(m *email.Message) { m.To = "jane" }},
		{"blank subject", func(m *email.Message) { m.Subject = "  " }},
		{"empty body", func(m *email.Message) { m.HTML = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg := paymentFailed
			tt.modify(&msg)
			assert.ErrorIs(t, msg.Validate(), email.ErrInvalidMessage)
		})
	}

	assert.NoError(t, paymentFailed.Validate())
}

func TestNewSender(t *testing.T) {
	t.Parallel()

	t.Run("file sender without token", func(t *testing.T) {
		t.Parallel()
		s, err := email.NewSender(email.Config{DevOutputDir: t.TempDir()})
		require.NoError(t, err)
		assert.IsType(t, &email.FileSender{}, s)
	})

	t.Run("postmark sender with token", func(t *testing.T) {
		t.Parallel()
		s, err := email.NewSender(email.Config{
			PostmarkServerToken: "server-token",
			SenderEmail:         "billing@example.com",
			SupportEmail:        "support@example.com",
		})
		require.NoError(t, err)
		assert.IsType(t, &email.PostmarkSender{}, s)
	})

	t.Run("invalid addresses", func(t *testing.T) {
		t.Parallel()
		_, err := email.NewSender(email.Config{
			PostmarkServerToken: "server-token",
			SenderEmail:         "billing",
			SupportEmail:        "support@example.com",
		})
		assert.ErrorIs(t, err, email.ErrInvalidConfig)

		_, err = email.NewPostmarkSender(email.Config{
			SenderEmail:  "billing@example.com",
			SupportEmail: "support@example.com",
		})
		assert.ErrorIs(t, err, email.ErrInvalidConfig)
	})
}

// fakePostmark records the last email request and answers with status.
type fakePostmark struct {
	mu     sync.Mutex
	token  string
	body   map[string]any
	status int
}

func (f *fakePostmark) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/email", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		f.mu.Lock()
		f.token = r.Header.Get("X-Postmark-Server-Token")
		f.body = body
		status := f.status
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status >= http.StatusBadRequest {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"ErrorCode":300,"Message":"Invalid 'To' address"}`))
			return
		}
		_, _ = w.Write([]byte(`{"To":"jane@example.com","MessageID":"m_1","ErrorCode":0,"Message":"OK"}`))
	})
}

func newPostmarkSender(t *testing.T, apiURL string) *email.PostmarkSender {
	t.Helper()
	s, err := email.NewPostmarkSender(email.Config{
		PostmarkServerToken: "server-token",
		PostmarkAPIURL:      apiURL + "/",
		MessageStream:       "outbound",
		SenderEmail:         "billing@example.com",
		SupportEmail:        "support@example.com",
	})
	require.NoError(t, err)
	return s
}

func TestPostmarkSender_Send(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("delivers billing notice", func(t *testing.T) {
		t.Parallel()
		api := &fakePostmark{}
		srv := httptest.NewServer(api.handler(t))
		t.Cleanup(srv.Close)

		require.NoError(t, newPostmarkSender(t, srv.URL).Send(ctx, paymentFailed))

		api.mu.Lock()
		defer api.mu.Unlock()
		assert.Equal(t, "server-token", api.token)
		assert.Equal(t, "billing@example.com", api.body["From"])
		assert.Equal(t, "support@example.com", api.body["ReplyTo"])
		assert.Equal(t, "jane@example.com", api.body["To"])
		assert.Equal(t, "billing-payment-failed", api.body["Tag"])
		assert.Equal(t, "outbound", api.body["MessageStream"])
		assert.Equal(t, paymentFailed.HTML, api.body["HtmlBody"])
		assert.Equal(t, map[string]any{"customer_id": "cus_1", "invoice_id": "in_1"}, api.body["Metadata"])
	})

	t.Run("api rejection", func(t *testing.T) {
		t.Parallel()
		api := &fakePostmark{status: http.StatusUnprocessableEntity}
		srv := httptest.NewServer(api.handler(t))
		t.Cleanup(srv.Close)

		err := newPostmarkSender(t, srv.URL).Send(ctx, paymentFailed)
		assert.ErrorIs(t, err, email.ErrSendFailed)
	})

	t.Run("invalid message is not sent", func(t *testing.T) {
		t.Parallel()
		api := &fakePostmark{}
		srv := httptest.NewServer(api.handler(t))
		t.Cleanup(srv.Close)

		msg := paymentFailed
		msg.To = ""
		err := newPostmarkSender(t, srv.URL).Send(ctx, msg)
		assert.ErrorIs(t, err, email.ErrInvalidMessage)

		api.mu.Lock()
		defer api.mu.Unlock()
		assert.Nil(t, api.body)
	})
}

func TestFileSender_Send(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("writes body and envelope named by tag", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "emails")

		require.NoError(t, email.NewFileSender(dir).Send(ctx, paymentFailed))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 2)

		var htmlPath, jsonPath string
		for _, e := range entries {
			assert.Contains(t, e.Name(), "_billing-payment-failed.")
			switch filepath.Ext(e.Name()) {
			case ".html":
				htmlPath = filepath.Join(dir, e.Name())
			case ".json":
				jsonPath = filepath.Join(dir, e.Name())
			}
		}
		require.NotEmpty(t, htmlPath)
		require.NotEmpty(t, jsonPath)

		html, err := os.ReadFile(htmlPath)
		require.NoError(t, err)
		assert.Equal(t, paymentFailed.HTML, string(html))

		raw, err := os.ReadFile(jsonPath)
		require.NoError(t, err)
		var env struct {
			To       string            `json:"to"`
			Subject  string            `json:"subject"`
			Tag      string            `json:"tag"`
			Metadata map[string]string `json:"metadata"`
		}
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.Equal(t, "jane@example.com", env.To)
		assert.Equal(t, paymentFailed.Subject, env.Subject)
		assert.Equal(t, "billing-payment-failed", env.Tag)
		assert.Equal(t, "in_1", env.Metadata["invoice_id"])
	})

	t.Run("untagged message is named by subject", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		msg := paymentFailed
		msg.Tag = ""
		msg.Subject = "Payment failed / retry?"

		require.NoError(t, email.NewFileSender(dir).Send(ctx, msg))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		assert.True(t, strings.HasSuffix(entries[0].Name(), "_payment_failed_retry.html") ||
			strings.HasSuffix(entries[0].Name(), "_payment_failed_retry.json"), entries[0].Name())
	})

	t.Run("invalid message writes nothing", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "emails")
		msg := paymentFailed
		msg.HTML = " "

		assert.ErrorIs(t, email.NewFileSender(dir).Send(ctx, msg), email.ErrInvalidMessage)
		_, err := os.Stat(dir)
		assert.True(t, os.IsNotExist(err))
	})
}
