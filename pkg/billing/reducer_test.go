package billing_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saasdash/pkg/billing"
)

var (
	t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

func ptr(t time.Time) *time.Time { return &t }

func freshRecord() billing.Record {
	return billing.Record{
		ID:                 uuid.New(),
		UserID:             "user_1",
		ProviderCustomerID: "cus_X",
		PlanID:             billing.PlanFree,
		Status:             billing.StatusInactive,
		CreatedAt:          t0,
		UpdatedAt:          t0,
	}
}

func subscriptionEvent(typ billing.EventType, at time.Time, sub billing.SubscriptionPayload) billing.Event {
	sub.CustomerID = "cus_X"
	return billing.Event{
		ID:           "evt_" + string(typ),
		Type:         typ,
		CustomerID:   "cus_X",
		OccurredAt:   at,
		Subscription: &sub,
	}
}

func trialingPlus() billing.SubscriptionPayload {
	return billing.SubscriptionPayload{
		ID:                 "sub_1",
		Status:             billing.StatusTrialing,
		PriceID:            "price_plus_month",
		TrialStart:         ptr(t0),
		TrialEnd:           ptr(t0.AddDate(0, 0, 14)),
		CurrentPeriodStart: ptr(t0),
		CurrentPeriodEnd:   ptr(t0.AddDate(0, 0, 14)),
	}
}

func TestReduce_SubscriptionCreated(t *testing.T) {
	t.Parallel()
	plans := testRegistry(t)

	next, outcome := billing.Reduce(freshRecord(), subscriptionEvent(billing.EventSubscriptionCreated, t1, trialingPlus()), plans)
	require.Equal(t, billing.OutcomeApplied, outcome)

	assert.Equal(t, billing.PlanPlus, next.PlanID)
	assert.Equal(t, billing.StatusTrialing, next.Status)
	assert.Equal(t, "sub_1", next.ProviderSubID)
	assert.Equal(t, "price_plus_month", next.ProviderPriceID)
	require.NotNil(t, next.TrialEndsAt)
	assert.True(t, next.TrialEndsAt.Equal(t0.AddDate(0, 0, 14)))
	require.NotNil(t, next.LastEventAt)
	assert.True(t, next.LastEventAt.Equal(t1))
	assert.Equal(t, "cus_X", next.ProviderCustomerID)
}

func TestReduce_UnmappedPriceFallsBackToFree(t *testing.T) {
	t.Parallel()
	sub := trialingPlus()
	sub.PriceID = "price_legacy"
	sub.Status = billing.StatusActive

	next, outcome := billing.Reduce(freshRecord(), subscriptionEvent(billing.EventSubscriptionCreated, t1, sub), testRegistry(t))
	require.Equal(t, billing.OutcomeApplied, outcome)
	assert.Equal(t, billing.PlanFree, next.PlanID)
	assert.Equal(t, "price_legacy", next.ProviderPriceID)
}

func TestReduce_AbsentTimestampsStayNull(t *testing.T) {
	t.Parallel()
	sub := billing.SubscriptionPayload{ID: "sub_1", Status: billing.StatusActive, PriceID: "price_pro_month"}

	rec := freshRecord()
	rec.TrialEndsAt = ptr(t0)
	next, _ := billing.Reduce(rec, subscriptionEvent(billing.EventSubscriptionUpdated, t1, sub), testRegistry(t))

	assert.Nil(t, next.TrialStartedAt)
	assert.Nil(t, next.TrialEndsAt)
	assert.Nil(t, next.CurrentPeriodStart)
	assert.Nil(t, next.CurrentPeriodEnd)
	assert.Nil(t, next.CanceledAt)
}

func TestReduce_CreatedThenIdenticalUpdatedIsStable(t *testing.T) {
	t.Parallel()
	plans := testRegistry(t)

	created, _ := billing.Reduce(freshRecord(), subscriptionEvent(billing.EventSubscriptionCreated, t1, trialingPlus()), plans)
	updated, outcome := billing.Reduce(created, subscriptionEvent(billing.EventSubscriptionUpdated, t1, trialingPlus()), plans)
	require.Equal(t, billing.OutcomeApplied, outcome)

	assert.Equal(t, created.Status, updated.Status)
	assert.Equal(t, created.PlanID, updated.PlanID)
	assert.Equal(t, created.CurrentPeriodStart, updated.CurrentPeriodStart)
	assert.Equal(t, created.CurrentPeriodEnd, updated.CurrentPeriodEnd)
	assert.Equal(t, created.TrialEndsAt, updated.TrialEndsAt)
}

func TestReduce_ReplayIsIdempotent(t *testing.T) {
	t.Parallel()
	plans := testRegistry(t)

	events := []billing.Event{
		subscriptionEvent(billing.EventSubscriptionCreated, t1, trialingPlus()),
		subscriptionEvent(billing.EventSubscriptionDeleted, t2, billing.SubscriptionPayload{ID: "sub_1"}),
		{Type: billing.EventPaymentFailed, CustomerID: "cus_X", OccurredAt: t1, Invoice: &billing.InvoicePayload{SubscriptionID: "sub_1"}},
	}
	for _, ev := range events {
		t.Run(string(ev.Type), func(t *testing.T) {
			t.Parallel()
			rec := freshRecord()
			if ev.Type == billing.EventPaymentFailed {
				rec, _ = billing.Reduce(rec, subscriptionEvent(billing.EventSubscriptionCreated, t0, trialingPlus()), plans)
			}
			once, _ := billing.Reduce(rec, ev, plans)
			twice, _ := billing.Reduce(once, ev, plans)
			assert.Equal(t, once, twice)
		})
	}
}

func TestReduce_CancelAtPeriodEndKeepsActive(t *testing.T) {
	t.Parallel()
	plans := testRegistry(t)

	active := billing.SubscriptionPayload{
		ID:                 "sub_1",
		Status:             billing.StatusActive,
		PriceID:            "price_pro_month",
		CurrentPeriodStart: ptr(t0),
		CurrentPeriodEnd:   ptr(t0.AddDate(0, 1, 0)),
		CancelAtPeriodEnd:  true,
		CanceledAt:         ptr(t1),
	}
	rec, _ := billing.Reduce(freshRecord(), subscriptionEvent(billing.EventSubscriptionCreated, t0, active), plans)
	rec, outcome := billing.Reduce(rec, subscriptionEvent(billing.EventSubscriptionUpdated, t1, active), plans)
	require.Equal(t, billing.OutcomeApplied, outcome)

	assert.Equal(t, billing.StatusActive, rec.Status)
	assert.True(t, rec.CancelAtPeriodEnd)
	assert.True(t, rec.HasAccess())
	require.NotNil(t, rec.CanceledAt)
	assert.True(t, rec.CanceledAt.Equal(t1))

	deleted, outcome := billing.Reduce(rec, subscriptionEvent(billing.EventSubscriptionDeleted, t2, billing.SubscriptionPayload{ID: "sub_1"}), plans)
	require.Equal(t, billing.OutcomeApplied, outcome)
	assert.Equal(t, billing.StatusCanceled, deleted.Status)
	assert.Equal(t, billing.PlanFree, deleted.PlanID)
	assert.Empty(t, deleted.ProviderSubID)
	assert.Empty(t, deleted.ProviderPriceID)
	assert.False(t, deleted.CancelAtPeriodEnd)
	assert.Nil(t, deleted.CurrentPeriodEnd)
	assert.Nil(t, deleted.TrialEndsAt)
	require.NotNil(t, deleted.CanceledAt)
	assert.True(t, deleted.CanceledAt.Equal(t2))
	assert.Equal(t, "cus_X", deleted.ProviderCustomerID)
}

func TestReduce_DeletedForReplacedSubscriptionIsIgnored(t *testing.T) {
	t.Parallel()
	plans := testRegistry(t)

	rec, _ := billing.Reduce(freshRecord(), subscriptionEvent(billing.EventSubscriptionCreated, t1, trialingPlus()), plans)
	next, outcome := billing.Reduce(rec, subscriptionEvent(billing.EventSubscriptionDeleted, t2, billing.SubscriptionPayload{ID: "sub_old"}), plans)
	assert.Equal(t, billing.OutcomeIgnored, outcome)
	assert.Equal(t, rec, next)
}

func TestReduce_CanceledCanBeReplacedByNewSubscription(t *testing.T) {
	t.Parallel()
	plans := testRegistry(t)

	rec, _ := billing.Reduce(freshRecord(), subscriptionEvent(billing.EventSubscriptionCreated, t0, trialingPlus()), plans)
	rec, _ = billing.Reduce(rec, subscriptionEvent(billing.EventSubscriptionDeleted, t1, billing.SubscriptionPayload{ID: "sub_1"}), plans)
	require.Equal(t, billing.StatusCanceled, rec.Status)

	sub := billing.SubscriptionPayload{ID: "sub_2", Status: billing.StatusActive, PriceID: "price_pro_year"}
	rec, outcome := billing.Reduce(rec, subscriptionEvent(billing.EventSubscriptionCreated, t2, sub), plans)
	require.Equal(t, billing.OutcomeApplied, outcome)
	assert.Equal(t, "sub_2", rec.ProviderSubID)
	assert.Equal(t, billing.PlanPro, rec.PlanID)
	assert.Equal(t, billing.StatusActive, rec.Status)
}

func TestReduce_PaymentFailed(t *testing.T) {
	t.Parallel()
	plans := testRegistry(t)

	t.Run("marks past due and nothing else", func(t *testing.T) {
		t.Parallel()
		rec, _ := billing.Reduce(freshRecord(), subscriptionEvent(billing.EventSubscriptionCreated, t0, trialingPlus()), plans)
		ev := billing.Event{Type: billing.EventPaymentFailed, CustomerID: "cus_X", OccurredAt: t1,
			Invoice: &billing.InvoicePayload{ID: "in_1", SubscriptionID: "sub_1"}}

		next, outcome := billing.Reduce(rec, ev, plans)
		require.Equal(t, billing.OutcomeApplied, outcome)
		assert.Equal(t, billing.StatusPastDue, next.Status)

		next.Status = rec.Status
		next.LastEventAt = rec.LastEventAt
		assert.Equal(t, rec, next)
	})

	t.Run("ignored without subscription", func(t *testing.T) {
		t.Parallel()
		rec := freshRecord()
		ev := billing.Event{Type: billing.EventPaymentFailed, CustomerID: "cus_X", OccurredAt: t1, Invoice: &billing.InvoicePayload{}}
		next, outcome := billing.Reduce(rec, ev, plans)
		assert.Equal(t, billing.OutcomeIgnored, outcome)
		assert.Equal(t, billing.StatusInactive, next.Status)
	})
}

func TestReduce_StaleEventsAreDiscarded(t *testing.T) {
	t.Parallel()
	plans := testRegistry(t)

	rec, _ := billing.Reduce(freshRecord(), subscriptionEvent(billing.EventSubscriptionCreated, t0, trialingPlus()), plans)
	deleted, _ := billing.Reduce(rec, subscriptionEvent(billing.EventSubscriptionDeleted, t2, billing.SubscriptionPayload{ID: "sub_1"}), plans)

	late := trialingPlus()
	late.Status = billing.StatusActive
	next, outcome := billing.Reduce(deleted, subscriptionEvent(billing.EventSubscriptionUpdated, t1, late), plans)
	assert.Equal(t, billing.OutcomeStale, outcome)
	assert.Equal(t, deleted, next)
}

func TestReduce_IgnoredEvents(t *testing.T) {
	t.Parallel()
	plans := testRegistry(t)
	rec := freshRecord()

	for _, ev := range []billing.Event{
		{Type: billing.EventCheckoutCompleted, OccurredAt: t1, Checkout: &billing.CheckoutPayload{ID: "cs_1"}},
		{Type: billing.EventUnknown, ProviderType: "customer.created", OccurredAt: t1},
		{Type: billing.EventSubscriptionCreated, OccurredAt: t1},
	} {
		next, outcome := billing.Reduce(rec, ev, plans)
		assert.Equal(t, billing.OutcomeIgnored, outcome, ev.Type)
		assert.Equal(t, rec, next)
	}
}

func TestRecord_TrialDaysRemainingAt(t *testing.T) {
	t.Parallel()
	rec := freshRecord()
	rec.Status = billing.StatusTrialing
	rec.TrialEndsAt = ptr(t0.AddDate(0, 0, 14))

	assert.Equal(t, 14, rec.TrialDaysRemainingAt(t0))
	assert.Equal(t, 0, rec.TrialDaysRemainingAt(t0.AddDate(0, 0, 15)))

	rec.Status = billing.StatusActive
	assert.Equal(t, 0, rec.TrialDaysRemainingAt(t0))
	assert.Equal(t, billing.PlanFree, rec.EffectivePlan())
}
