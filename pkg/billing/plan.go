package billing

import (
	"errors"
	"fmt"
	"slices"
)

// PlanID identifies a plan tier. The set of tiers is closed.
type PlanID string

const (
	PlanFree PlanID = "free"
	PlanPlus PlanID = "plus"
	PlanPro  PlanID = "pro"
)

// planOrder is the tier hierarchy, lowest first.
var planOrder = []PlanID{PlanFree, PlanPlus, PlanPro}

// Valid reports whether id is one of the known tiers.
func (id PlanID) Valid() bool {
	return slices.Contains(planOrder, id)
}

const (
	// Unlimited indicates no limit for a resource (-1 chosen for SQL compatibility)
	Unlimited int64 = -1
)

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.99 USD would be Amount: 1099, Currency: "USD".
type Money struct {
	Amount   int64  // Amount in smallest currency unit (cents for USD)
	Currency string // ISO 4217 currency code
}

// BillingInterval represents the billing frequency of a price.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

// PriceIDs holds the provider's price identifiers per billing interval.
// An empty value means the plan cannot be bought with that interval.
type PriceIDs struct {
	Monthly string
	Yearly  string
}

// Has reports whether priceID matches one of the plan's prices.
func (p PriceIDs) Has(priceID string) bool {
	return priceID != "" && (p.Monthly == priceID || p.Yearly == priceID)
}

// ForInterval returns the price ID for the given interval.
func (p PriceIDs) ForInterval(interval BillingInterval) string {
	switch interval {
	case IntervalMonthly:
		return p.Monthly
	case IntervalYearly:
		return p.Yearly
	default:
		return ""
	}
}

// Plan describes a subscription tier: pricing, trial length and usage limit.
type Plan struct {
	ID              PlanID
	Name            string
	Description     string
	MonthlyPrice    Money
	YearlyPrice     Money
	TrialDays       int // 0 means the plan has no trial
	PriceIDs        PriceIDs
	GenerationLimit int64 // -1 represents unlimited
	Features        []string
	Popular         bool
}

// Purchasable reports whether the plan can be bought through checkout.
func (p Plan) Purchasable() bool {
	return p.ID != PlanFree && (p.PriceIDs.Monthly != "" || p.PriceIDs.Yearly != "")
}

// HasTrial reports whether checkout for this plan starts with a trial.
func (p Plan) HasTrial() bool {
	return p.TrialDays > 0
}

// IsUnlimited reports whether the plan has no generation limit.
func (p Plan) IsUnlimited() bool {
	return p.GenerationLimit == Unlimited
}

// Registry is the immutable set of plans known to the application.
// It is built once at startup and passed to the components that need it.
type Registry struct {
	plans   map[PlanID]Plan
	byPrice map[string]PlanID
}

// NewRegistry validates plans and builds a registry.
// Exactly one free plan is required, and a price ID may belong to one plan only.
func NewRegistry(plans ...Plan) (*Registry, error) {
	r := &Registry{
		plans:   make(map[PlanID]Plan, len(plans)),
		byPrice: make(map[string]PlanID),
	}

	for _, plan := range plans {
		if !plan.ID.Valid() {
			return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("unknown plan id %q", plan.ID))
		}
		if _, exists := r.plans[plan.ID]; exists {
			return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("duplicate plan id %q", plan.ID))
		}
		if plan.TrialDays < 0 {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has negative trial days: %d", plan.ID, plan.TrialDays))
		}
		if plan.ID == PlanFree && (plan.PriceIDs.Monthly != "" || plan.PriceIDs.Yearly != "") {
			return nil, errors.Join(ErrInvalidPlanConfiguration, errors.New("free plan cannot have price IDs"))
		}

		for _, priceID := range []string{plan.PriceIDs.Monthly, plan.PriceIDs.Yearly} {
			if priceID == "" {
				continue
			}
			if owner, taken := r.byPrice[priceID]; taken && owner != plan.ID {
				return nil, errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("price %s is used by plans %s and %s", priceID, owner, plan.ID))
			}
			r.byPrice[priceID] = plan.ID
		}

		plan.Features = slices.Clone(plan.Features)
		r.plans[plan.ID] = plan
	}

	if _, ok := r.plans[PlanFree]; !ok {
		return nil, errors.Join(ErrInvalidPlanConfiguration, errors.New("free plan is required"))
	}

	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on invalid configuration.
func MustNewRegistry(plans ...Plan) *Registry {
	r, err := NewRegistry(plans...)
	if err != nil {
		panic(err)
	}
	return r
}

// ByID returns the plan with the given id.
// Unknown ids fall back to the free plan, so the lookup never fails.
func (r *Registry) ByID(id PlanID) Plan {
	if plan, ok := r.plans[id]; ok {
		return plan
	}
	return r.plans[PlanFree]
}

// ByExternalPriceID returns the plan that owns priceID.
func (r *Registry) ByExternalPriceID(priceID string) (Plan, bool) {
	id, ok := r.byPrice[priceID]
	if !ok {
		return Plan{}, false
	}
	return r.plans[id], true
}

// HasTrial reports whether the plan with the given id has a trial.
func (r *Registry) HasTrial(id PlanID) bool {
	return r.ByID(id).HasTrial()
}

// TrialDaysForPrice returns the trial length of the plan owning priceID,
// or 0 when the price is unknown or the plan has no trial.
func (r *Registry) TrialDaysForPrice(priceID string) int {
	plan, ok := r.ByExternalPriceID(priceID)
	if !ok {
		return 0
	}
	return plan.TrialDays
}

// PlanForPrice returns the plan id for priceID, defaulting to free.
func (r *Registry) PlanForPrice(priceID string) PlanID {
	if plan, ok := r.ByExternalPriceID(priceID); ok {
		return plan.ID
	}
	return PlanFree
}

// All returns every registered plan ordered from the lowest tier.
func (r *Registry) All() []Plan {
	out := make([]Plan, 0, len(r.plans))
	for _, id := range planOrder {
		if plan, ok := r.plans[id]; ok {
			out = append(out, plan)
		}
	}
	return out
}

// Paid returns plans that can be bought through checkout.
func (r *Registry) Paid() []Plan {
	out := make([]Plan, 0, len(r.plans))
	for _, plan := range r.All() {
		if plan.Purchasable() {
			out = append(out, plan)
		}
	}
	return out
}

// PriceIDs returns the configured price IDs of the paid plans,
// monthly before yearly, from the lowest tier.
func (r *Registry) PriceIDs() []string {
	var out []string
	for _, plan := range r.Paid() {
		for _, id := range []string{plan.PriceIDs.Monthly, plan.PriceIDs.Yearly} {
			if id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

// Rank returns the position of id in the tier hierarchy.
// Unknown ids rank as free.
func Rank(id PlanID) int {
	if i := slices.Index(planOrder, id); i >= 0 {
		return i
	}
	return 0
}

// PriceConfig holds provider price IDs for the paid tiers.
type PriceConfig struct {
	PlusMonthly string `env:"STRIPE_PLUS_MONTHLY_PRICE_ID"`
	PlusYearly  string `env:"STRIPE_PLUS_YEARLY_PRICE_ID"`
	ProMonthly  string `env:"STRIPE_PRO_MONTHLY_PRICE_ID"`
	ProYearly   string `env:"STRIPE_PRO_YEARLY_PRICE_ID"`
}

// DefaultPlans returns the standard free/plus/pro tiers wired to the given prices.
func DefaultPlans(prices PriceConfig) []Plan {
	return []Plan{
		{
			ID:              PlanFree,
			Name:            "Free",
			Description:     "Get started and explore",
			GenerationLimit: 5,
			Features:        []string{"5 generations per month", "Basic models", "Email support"},
		},
		{
			ID:              PlanPlus,
			Name:            "Plus",
			Description:     "For professionals",
			MonthlyPrice:    Money{Amount: 1500, Currency: "USD"},
			YearlyPrice:     Money{Amount: 14400, Currency: "USD"},
			TrialDays:       14,
			PriceIDs:        PriceIDs{Monthly: prices.PlusMonthly, Yearly: prices.PlusYearly},
			GenerationLimit: 100,
			Features:        []string{"100 generations per month", "All models", "Priority support", "Unlimited history"},
			Popular:         true,
		},
		{
			ID:              PlanPro,
			Name:            "Pro",
			Description:     "For teams and companies",
			MonthlyPrice:    Money{Amount: 4000, Currency: "USD"},
			YearlyPrice:     Money{Amount: 38400, Currency: "USD"},
			TrialDays:       7,
			PriceIDs:        PriceIDs{Monthly: prices.ProMonthly, Yearly: prices.ProYearly},
			GenerationLimit: Unlimited,
			Features:        []string{"Unlimited generations", "All models and early access", "24/7 support", "API access", "Advanced integrations"},
		},
	}
}
