package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/saasdash/pkg/email"
	"github.com/dmitrymomot/saasdash/pkg/email/templates"
)

// Notifier is told about billing events after they were stored.
// Errors are logged by the caller and never fail the webhook delivery.
type Notifier interface {
	PaymentFailed(ctx context.Context, rec Record, inv InvoicePayload) error
}

const paymentFailedTag = "billing-payment-failed"

// EmailNotifier emails the customer when a renewal payment fails.
type EmailNotifier struct {
	sender      email.Sender
	appName     string
	portalURL   string
	supportMail string
}

// NewEmailNotifier creates a Notifier backed by an email sender.
// portalURL is the in-app page where the user can open the billing portal.
func NewEmailNotifier(sender email.Sender, appName, portalURL, supportMail string) *EmailNotifier {
	if sender == nil {
		panic("billing: email sender is required")
	}
	return &EmailNotifier{
		sender:      sender,
		appName:     appName,
		portalURL:   portalURL,
		supportMail: supportMail,
	}
}

func (n *EmailNotifier) PaymentFailed(ctx context.Context, rec Record, inv InvoicePayload) error {
	if inv.CustomerEmail == "" {
		return nil
	}

	body, err := templates.Render(ctx, templates.PaymentFailed(templates.PaymentFailedData{
		AppName:     n.appName,
		PortalURL:   n.portalURL,
		Attempt:     inv.AttemptCount,
		SupportMail: n.supportMail,
	}))
	if err != nil {
		return fmt.Errorf("render payment failed email: %w", err)
	}

	if err := n.sender.Send(ctx, email.Message{
		To:      inv.CustomerEmail,
		Subject: fmt.Sprintf("Action required: payment for %s failed", n.appName),
		HTML:    body,
		Tag:     paymentFailedTag,
		Metadata: map[string]string{
			"user_id":     rec.UserID,
			"customer_id": inv.CustomerID,
			"invoice_id":  inv.ID,
		},
	}); err != nil {
		return errors.Join(errors.New("send payment failed email"), err)
	}
	return nil
}
