package billing

import (
	"time"

	"github.com/google/uuid"
)

// Status mirrors the payment processor's subscription status.
// Values outside the known set are stored verbatim.
type Status string

const (
	StatusInactive Status = "inactive"
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusUnpaid   Status = "unpaid"
)

// Record is the per-user subscription state mirrored from the payment processor.
// Empty provider identifiers are stored as NULL.
type Record struct {
	ID                 uuid.UUID
	UserID             string
	ProviderCustomerID string
	ProviderSubID      string
	ProviderPriceID    string
	PlanID             PlanID
	Status             Status
	TrialStartedAt     *time.Time
	TrialEndsAt        *time.Time
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CanceledAt         *time.Time
	CancelAtPeriodEnd  bool

	// LastEventAt is the occurrence time of the last applied billing event.
	// Older events are discarded.
	LastEventAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// newRecord returns the initial state of a user without a subscription.
func newRecord(userID, customerID string, now time.Time) Record {
	return Record{
		ID:                 uuid.New(),
		UserID:             userID,
		ProviderCustomerID: customerID,
		PlanID:             PlanFree,
		Status:             StatusInactive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// IsActive returns true if the subscription is active (paid).
func (r *Record) IsActive() bool {
	return r.Status == StatusActive
}

// IsTrialing returns true if the subscription is in trial status.
func (r *Record) IsTrialing() bool {
	return r.Status == StatusTrialing
}

// HasAccess reports whether the user is entitled to the paid plan features.
func (r *Record) HasAccess() bool {
	return r.IsActive() || r.IsTrialing()
}

// EffectivePlan returns the plan the user is entitled to right now.
// Without access the user falls back to the free plan.
func (r *Record) EffectivePlan() PlanID {
	if !r.HasAccess() {
		return PlanFree
	}
	return r.PlanID
}

// TrialDaysRemainingAt returns the number of days remaining in the trial at a given time.
// Returns 0 if not in trial or trial has expired.
func (r *Record) TrialDaysRemainingAt(now time.Time) int {
	if !r.IsTrialing() || r.TrialEndsAt == nil {
		return 0
	}

	remaining := r.TrialEndsAt.Sub(now)
	if remaining <= 0 {
		return 0
	}

	// Partial days round to the nearest whole day.
	days := remaining.Hours() / 24
	return int(days + 0.5)
}

// cloneTime copies a nullable timestamp so records never share pointers.
func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (r Record) clone() Record {
	r.TrialStartedAt = cloneTime(r.TrialStartedAt)
	r.TrialEndsAt = cloneTime(r.TrialEndsAt)
	r.CurrentPeriodStart = cloneTime(r.CurrentPeriodStart)
	r.CurrentPeriodEnd = cloneTime(r.CurrentPeriodEnd)
	r.CanceledAt = cloneTime(r.CanceledAt)
	r.LastEventAt = cloneTime(r.LastEventAt)
	return r
}
