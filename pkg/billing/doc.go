// Package billing keeps a per-user subscription record in sync with a payment
// processor (Stripe or Paddle) through hosted checkout, a hosted customer portal
// and signed webhooks.
//
// The processor is the source of truth. The application never charges cards or
// changes plans itself; it starts hosted flows and mirrors whatever the processor
// reports back. The mirrored Record is what the rest of the application reads to
// decide which plan a user is on.
//
// # Architecture
//
//   - Registry: immutable set of plans (free, plus, pro) built once at startup
//   - Record: the mirrored subscription state of one user
//   - Store: persistence for records (MemoryStore, PostgresStore)
//   - Provider: processor adapter (StripeProvider, PaddleProvider)
//   - CustomerResolver: lazily creates the processor customer for a user
//   - Reduce: pure function applying a normalized Event to a Record
//   - Service: facade used by the HTTP layer
//
// Providers decode their webhook payloads into Event, so Reduce and the stores
// do not depend on any SDK model.
//
// # Webhook processing
//
// HandleWebhook verifies the signature, loads the record bound to the event's
// customer, reduces the event and writes the result back:
//
//	res, err := svc.HandleWebhook(ctx, body, r.Header.Get(svc.SignatureHeader()))
//	switch {
//	case errors.Is(err, billing.ErrInvalidSignature):
//		// 400, do not acknowledge
//	case err != nil:
//		// 500, the processor redelivers
//	default:
//		// 200, res.Outcome tells what happened
//	}
//
// Events for unknown customers are acknowledged without creating a record.
// Every write replaces fields absolutely, so redelivered events are harmless.
// Each record remembers the occurrence time of the last applied event and
// events older than that are discarded, both in Reduce and again atomically
// in Store.Update.
//
// # Quick Start
//
//	plans := billing.MustNewRegistry(billing.DefaultPlans(priceCfg)...)
//	provider, err := billing.NewStripeProvider(stripeCfg)
//	if err != nil {
//		return err
//	}
//	svc := billing.NewService(plans, billing.NewPostgresStore(pool), provider,
//		billing.WithLogger(log),
//	)
//
//	session, err := svc.Checkout(ctx, billing.User{ID: uid, Email: email}, billing.CheckoutParams{
//		PriceID:    priceID,
//		SuccessURL: appURL + "/api/billing/checkout?session_id={CHECKOUT_SESSION_ID}",
//		CancelURL:  appURL + "/pricing?checkout=canceled",
//	})
//
// # Error Handling
//
// Sentinel errors are declared in errors.go and checked with errors.Is.
// ErrNoBillingCustomer means the user must pick a plan before opening the portal.
// Provider failures are joined with ErrProviderRequestFailed.
package billing
