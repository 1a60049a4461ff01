package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saasdash/pkg/billing"
	"github.com/dmitrymomot/saasdash/pkg/email"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg email.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func TestEmailNotifier_PaymentFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rec := billing.Record{UserID: "user_1", ProviderCustomerID: "cus_X", Status: billing.StatusPastDue}
	invoice := billing.InvoicePayload{ID: "in_1", CustomerID: "cus_X", CustomerEmail: "jane@example.com", AttemptCount: 3}

	t.Run("sends tagged notice", func(t *testing.T) {
		t.Parallel()
		sender := &mockSender{}
		var sent email.Message
		sender.On("Send", ctx, mock.Anything).Run(func(args mock.Arguments) {
			sent = args.Get(1).(email.Message)
		}).Return(nil).Once()

		n := billing.NewEmailNotifier(sender, "SaaS Dash", "https://app.example.com/dashboard/settings", "support@example.com")
		require.NoError(t, n.PaymentFailed(ctx, rec, invoice))
		sender.AssertExpectations(t)

		assert.Equal(t, "jane@example.com", sent.To)
		assert.Equal(t, "Action required: payment for SaaS Dash failed", sent.Subject)
		assert.Equal(t, "billing-payment-failed", sent.Tag)
		assert.Equal(t, map[string]string{"user_id": "user_1", "customer_id": "cus_X", "invoice_id": "in_1"}, sent.Metadata)
		assert.Contains(t, sent.HTML, "after 3 attempts")
		assert.Contains(t, sent.HTML, `href="https://app.example.com/dashboard/settings"`)
		assert.Contains(t, sent.HTML, "support@example.com")
		assert.NoError(t, sent.Validate())
	})

	t.Run("skips invoices without an email", func(t *testing.T) {
		t.Parallel()
		sender := &mockSender{}
		n := billing.NewEmailNotifier(sender, "SaaS Dash", "", "")

		noEmail := invoice
		noEmail.CustomerEmail = ""
		require.NoError(t, n.PaymentFailed(ctx, rec, noEmail))
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("reports delivery failures", func(t *testing.T) {
		t.Parallel()
		sender := &mockSender{}
		sender.On("Send", ctx, mock.Anything).Return(errors.Join(email.ErrSendFailed, errors.New("postmark down"))).Once()

		n := billing.NewEmailNotifier(sender, "SaaS Dash", "", "")
		err := n.PaymentFailed(ctx, rec, invoice)
		assert.ErrorIs(t, err, email.ErrSendFailed)
	})

	t.Run("writes to the dev outbox", func(t *testing.T) {
		t.Parallel()
		n := billing.NewEmailNotifier(email.NewFileSender(t.TempDir()), "SaaS Dash", "", "")
		assert.NoError(t, n.PaymentFailed(ctx, rec, invoice))
	})

	assert.Panics(t, func() { billing.NewEmailNotifier(nil, "SaaS Dash", "", "") })
}
