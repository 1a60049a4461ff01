package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is one transactional email.
type Message struct {
	To      string
	Subject string
	HTML    string
	// Tag groups messages in delivery statistics, e.g. "billing-payment-failed".
	Tag string
	// Metadata is attached to the delivery for lookups in the provider dashboard.
	Metadata map[string]string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func isEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}

// Validate reports the first missing or malformed field.
func (m Message) Validate() error {
	switch {
	case !isEmail(strings.TrimSpace(m.To)):
		return fmt.Errorf("%w: recipient %q is not an email address", ErrInvalidMessage, m.To)
	case strings.TrimSpace(m.Subject) == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	case strings.TrimSpace(m.HTML) == "":
		return fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}
	return nil
}
