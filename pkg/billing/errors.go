package billing

import "errors"

var (
	ErrInvalidPlanConfiguration = errors.New("invalid billing plan configuration")
	ErrMissingPriceID           = errors.New("price ID is required")
	ErrPriceNotPurchasable      = errors.New("price is not purchasable")

	ErrRecordNotFound       = errors.New("subscription record not found")
	ErrStaleEvent           = errors.New("billing event is older than the stored state")
	ErrNoBillingCustomer    = errors.New("no billing customer for this user")
	ErrMissingUserID        = errors.New("user ID is required")
	ErrMissingCustomerID    = errors.New("billing customer ID is required")
	ErrMissingSessionID     = errors.New("checkout session ID is required")
	ErrCustomerConflict     = errors.New("billing customer is bound to another user")
	ErrSubscriptionConflict = errors.New("subscription is bound to another customer")

	// Provider-specific errors
	ErrMissingAPIKey          = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret   = errors.New("billing provider webhook secret is required")
	ErrInvalidProviderEnv     = errors.New("invalid billing provider environment")
	ErrUnknownProvider        = errors.New("unknown billing provider")
	ErrInvalidSignature       = errors.New("webhook signature verification failed")
	ErrInvalidPayload         = errors.New("invalid webhook payload")
	ErrNoCheckoutURL          = errors.New("no checkout URL returned from provider")
	ErrNoPortalURL            = errors.New("no portal URL returned from provider")
	ErrNoCheckoutSubscription = errors.New("checkout session has no subscription")
	ErrNotSupported           = errors.New("operation not supported by billing provider")
	ErrProviderRequestFailed  = errors.New("billing provider request failed")
	ErrFailedToPersistRecord  = errors.New("failed to persist subscription record")
)
