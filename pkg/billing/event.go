package billing

import "time"

// EventType is the normalized kind of a billing event.
type EventType string

const (
	EventSubscriptionCreated EventType = "subscription.created"
	EventSubscriptionUpdated EventType = "subscription.updated"
	EventSubscriptionDeleted EventType = "subscription.deleted"
	EventPaymentFailed       EventType = "invoice.payment_failed"
	EventCheckoutCompleted   EventType = "checkout.session.completed"
	EventUnknown             EventType = "unknown"
)

// Event is a verified provider notification decoded into provider-neutral form.
// Exactly one of the payload fields is set for known event types.
type Event struct {
	ID           string
	Type         EventType
	ProviderType string // raw event type as sent by the provider
	CustomerID   string
	OccurredAt   time.Time

	Subscription *SubscriptionPayload
	Invoice      *InvoicePayload
	Checkout     *CheckoutPayload
}

// SubscriptionPayload carries the subscription state of a subscription event.
// Nil timestamps mean the provider did not send the field.
type SubscriptionPayload struct {
	ID                 string
	CustomerID         string
	Status             Status
	PriceID            string
	TrialStart         *time.Time
	TrialEnd           *time.Time
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CanceledAt         *time.Time
	CancelAtPeriodEnd  bool
}

// InvoicePayload carries the data of a failed payment.
type InvoicePayload struct {
	ID             string
	CustomerID     string
	CustomerEmail  string
	SubscriptionID string
	AttemptCount   int64
}

// CheckoutPayload carries the data of a completed checkout session.
type CheckoutPayload struct {
	ID                string
	CustomerID        string
	SubscriptionID    string
	ClientReferenceID string
}

// epochTime converts a unix timestamp to a nullable time.
// Zero means the field is absent.
func epochTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
