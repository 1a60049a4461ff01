package billing

import "context"

// Store defines the interface for subscription record persistence.
// Each user has at most one record, and a customer ID belongs to one user.
type Store interface {
	// GetByUserID retrieves the record of a user.
	// Returns ErrRecordNotFound if the user has no record.
	GetByUserID(ctx context.Context, userID string) (*Record, error)

	// GetByCustomerID retrieves the record bound to a billing customer.
	// Returns ErrRecordNotFound if no record references the customer.
	GetByCustomerID(ctx context.Context, customerID string) (*Record, error)

	// UpsertCustomer atomically binds customerID to the user's record,
	// creating an inactive free record when none exists.
	// A customer ID that is already stored is kept and the stored record is returned.
	UpsertCustomer(ctx context.Context, userID, customerID string) (*Record, error)

	// Update writes every mutable field of rec keyed by its customer ID.
	// Returns ErrStaleEvent if the stored record saw a newer event than rec.LastEventAt,
	// and ErrRecordNotFound if no record references the customer.
	Update(ctx context.Context, rec *Record) error
}

// isNewer reports whether stored is strictly later than incoming.
// A nil incoming time loses against any stored time.
func isNewer(stored, incoming *Record) bool {
	if stored.LastEventAt == nil {
		return false
	}
	if incoming.LastEventAt == nil {
		return true
	}
	return stored.LastEventAt.After(*incoming.LastEventAt)
}
