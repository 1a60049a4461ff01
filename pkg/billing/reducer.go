package billing

// Outcome describes what happened to a billing event.
type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeIgnored         Outcome = "ignored"
	OutcomeStale           Outcome = "stale"
	OutcomeUnknownCustomer Outcome = "unknown_customer"
)

// Reduce returns the record state after applying ev to current.
// It is a pure function: the caller persists the result when the outcome is OutcomeApplied.
// All writes are absolute field replacements, so applying an event twice
// yields the same record as applying it once.
func Reduce(current Record, ev Event, plans *Registry) (Record, Outcome) {
	if current.LastEventAt != nil && !ev.OccurredAt.IsZero() && ev.OccurredAt.Before(*current.LastEventAt) {
		return current, OutcomeStale
	}

	next := current.clone()
	var outcome Outcome

	switch ev.Type {
	case EventSubscriptionCreated:
		outcome = applySubscriptionCreated(&next, ev.Subscription, plans)
	case EventSubscriptionUpdated:
		outcome = applySubscriptionUpdated(&next, ev.Subscription, plans)
	case EventSubscriptionDeleted:
		outcome = applySubscriptionDeleted(&next, ev)
	case EventPaymentFailed:
		outcome = applyPaymentFailed(&next, ev.Invoice)
	default:
		// Checkout completion is followed by subscription.created, which is authoritative.
		return current, OutcomeIgnored
	}

	if outcome != OutcomeApplied {
		return current, outcome
	}

	if !ev.OccurredAt.IsZero() {
		t := ev.OccurredAt.UTC()
		next.LastEventAt = &t
	}
	return next, OutcomeApplied
}

// applySubscriptionState writes the fields shared by created and updated events.
func applySubscriptionState(rec *Record, sub *SubscriptionPayload, plans *Registry) {
	rec.ProviderSubID = sub.ID
	rec.ProviderPriceID = sub.PriceID
	rec.PlanID = plans.PlanForPrice(sub.PriceID)
	rec.Status = sub.Status
	rec.TrialStartedAt = cloneTime(sub.TrialStart)
	rec.TrialEndsAt = cloneTime(sub.TrialEnd)
	rec.CurrentPeriodStart = cloneTime(sub.CurrentPeriodStart)
	rec.CurrentPeriodEnd = cloneTime(sub.CurrentPeriodEnd)
	rec.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
}

func applySubscriptionCreated(rec *Record, sub *SubscriptionPayload, plans *Registry) Outcome {
	if sub == nil || sub.ID == "" {
		return OutcomeIgnored
	}
	applySubscriptionState(rec, sub, plans)
	if sub.CanceledAt != nil {
		rec.CanceledAt = cloneTime(sub.CanceledAt)
	}
	return OutcomeApplied
}

func applySubscriptionUpdated(rec *Record, sub *SubscriptionPayload, plans *Registry) Outcome {
	if sub == nil || sub.ID == "" {
		return OutcomeIgnored
	}
	applySubscriptionState(rec, sub, plans)

	// Scheduled cancellation keeps the subscription usable until the period ends.
	if sub.CancelAtPeriodEnd && sub.Status == StatusActive {
		rec.Status = StatusActive
	}
	rec.CanceledAt = cloneTime(sub.CanceledAt)
	return OutcomeApplied
}

// applySubscriptionDeleted resets the record to the free plan.
// This is the only transition that clears the subscription id.
// The event time is used for canceledAt so redelivery produces the same record.
func applySubscriptionDeleted(rec *Record, ev Event) Outcome {
	if sub := ev.Subscription; sub != nil && sub.ID != "" && rec.ProviderSubID != "" && sub.ID != rec.ProviderSubID {
		// A replaced subscription ended; the current one is unaffected.
		return OutcomeIgnored
	}

	rec.ProviderSubID = ""
	rec.ProviderPriceID = ""
	rec.PlanID = PlanFree
	rec.Status = StatusCanceled
	rec.TrialStartedAt = nil
	rec.TrialEndsAt = nil
	rec.CurrentPeriodStart = nil
	rec.CurrentPeriodEnd = nil
	rec.CancelAtPeriodEnd = false

	rec.CanceledAt = nil
	switch {
	case ev.Subscription != nil && ev.Subscription.CanceledAt != nil:
		rec.CanceledAt = cloneTime(ev.Subscription.CanceledAt)
	case !ev.OccurredAt.IsZero():
		t := ev.OccurredAt.UTC()
		rec.CanceledAt = &t
	}
	return OutcomeApplied
}

// applyPaymentFailed marks the subscription past due and touches nothing else.
// Records without a subscription have nothing to mark.
func applyPaymentFailed(rec *Record, inv *InvoicePayload) Outcome {
	if rec.ProviderSubID == "" {
		return OutcomeIgnored
	}
	if inv != nil && inv.SubscriptionID != "" && inv.SubscriptionID != rec.ProviderSubID {
		return OutcomeIgnored
	}
	rec.Status = StatusPastDue
	return OutcomeApplied
}
