package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/saasdash/pkg/logger"
)

// User is the authenticated principal as seen by billing.
type User struct {
	ID    string
	Email string
	Name  string
}

// CustomerResolver maps a user to their billing customer,
// creating the customer on first use.
type CustomerResolver struct {
	store    Store
	provider Provider
	log      *slog.Logger
}

// NewCustomerResolver creates a CustomerResolver.
func NewCustomerResolver(store Store, provider Provider, log *slog.Logger) *CustomerResolver {
	if store == nil {
		panic("billing: Store is required")
	}
	if provider == nil {
		panic("billing: Provider is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &CustomerResolver{store: store, provider: provider, log: log}
}

// Resolve returns the billing customer ID of user.
// Repeated calls return the same ID and create the provider customer once.
// When two first-time calls race, both may create a provider customer,
// but the store keeps the first one bound and both callers get that ID.
func (r *CustomerResolver) Resolve(ctx context.Context, user User) (string, error) {
	if user.ID == "" {
		return "", ErrMissingUserID
	}

	rec, err := r.store.GetByUserID(ctx, user.ID)
	switch {
	case err == nil && rec.ProviderCustomerID != "":
		return rec.ProviderCustomerID, nil
	case err != nil && !errors.Is(err, ErrRecordNotFound):
		return "", fmt.Errorf("load subscription record: %w", err)
	}

	customerID, err := r.provider.CreateCustomer(ctx, CustomerRequest{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	})
	if err != nil {
		return "", errors.Join(ErrProviderRequestFailed, err)
	}
	if customerID == "" {
		return "", errors.Join(ErrProviderRequestFailed, ErrMissingCustomerID)
	}

	rec, err = r.store.UpsertCustomer(ctx, user.ID, customerID)
	if err != nil {
		return "", err
	}

	if rec.ProviderCustomerID != customerID {
		r.log.WarnContext(ctx, "billing customer created concurrently, keeping the stored one",
			logger.UserID(user.ID),
			logger.CustomerID(rec.ProviderCustomerID),
			slog.String("orphaned_customer_id", customerID),
		)
	} else {
		r.log.InfoContext(ctx, "billing customer created",
			logger.UserID(user.ID),
			logger.CustomerID(customerID),
		)
	}

	return rec.ProviderCustomerID, nil
}
