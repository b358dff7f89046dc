// internal/domain/plan/entity.go
package plan

import (
	"strings"
	"time"
)

type DurationUnit string

const (
	DurationDays   DurationUnit = "days"
	DurationMonths DurationUnit = "months"
	DurationYears  DurationUnit = "years"
)

func (u DurationUnit) Valid() bool {
	switch u {
	case DurationDays, DurationMonths, DurationYears:
		return true
	}
	return false
}

type Tier string

const (
	TierFree       Tier = "free"
	TierBasic      Tier = "basic"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPremium, TierEnterprise:
		return true
	}
	return false
}

// Ceilings are the per-resource usage limits a package grants.
type Ceilings struct {
	Users         Ceiling `json:"maxUsers" bson:"max_users"`
	Following     Ceiling `json:"maxFollowing" bson:"max_following"`
	Activities    Ceiling `json:"maxActivities" bson:"max_activities"`
	Audiences     Ceiling `json:"maxAudiences" bson:"max_audiences"`
	Donations     Ceiling `json:"maxDonations" bson:"max_donations"`
	Pledges       Ceiling `json:"maxPledges" bson:"max_pledges"`
	Reports       Ceiling `json:"maxReports" bson:"max_reports"`
	Beneficiaries Ceiling `json:"maxBeneficiaries" bson:"max_beneficiaries"`
}

type Discount struct {
	Percentage float64   `json:"percentage" bson:"percentage"`
	ValidUntil time.Time `json:"validUntil" bson:"valid_until"`
}

// Package is a pricing plan definition. It is read-only to the lifecycle engine.
type Package struct {
	ID          string `json:"id" bson:"_id" db:"id"`
	Name        string `json:"name" bson:"name" db:"name"`
	Description string `json:"description,omitempty" bson:"description,omitempty" db:"description"`

	// Pricing
	Price    float64   `json:"price" bson:"price" db:"price"`
	Currency string    `json:"currency" bson:"currency" db:"currency"`
	Discount *Discount `json:"discount,omitempty" bson:"discount,omitempty" db:"discount"`

	// Billing period
	Duration     int          `json:"duration" bson:"duration" db:"duration"`
	DurationUnit DurationUnit `json:"durationUnit" bson:"duration_unit" db:"duration_unit"`

	// Entitlements
	Tier     Tier     `json:"tier,omitempty" bson:"tier,omitempty" db:"tier"`
	Ceilings Ceilings `json:"ceilings" bson:"ceilings" db:"ceilings"`

	// Flags
	IsFree               bool `json:"isFree" bson:"is_free" db:"is_free"`
	IsPopular            bool `json:"isPopular" bson:"is_popular" db:"is_popular"`
	IsActive             bool `json:"isActive" bson:"is_active" db:"is_active"`
	MaxFreeTrialDuration *int `json:"maxFreeTrialDuration,omitempty" bson:"max_free_trial_duration,omitempty" db:"max_free_trial_duration"`

	// Timestamps
	CreatedAt time.Time `json:"createdAt" bson:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at" db:"updated_at"`
}

// EndDate returns start plus one package period.
func (p *Package) EndDate(start time.Time) time.Time {
	return AddPeriod(start, p.Duration, p.DurationUnit)
}

// OffersFreeTrial reports whether the package can be started as a free trial.
func (p *Package) OffersFreeTrial() bool {
	return p.MaxFreeTrialDuration != nil && *p.MaxFreeTrialDuration > 0
}

// PriceAt returns the price charged at now, applying a discount that has not
// yet lapsed.
func (p *Package) PriceAt(now time.Time) float64 {
	if p.IsFree {
		return 0
	}
	if p.Discount == nil || p.Discount.Percentage <= 0 || !now.Before(p.Discount.ValidUntil) {
		return p.Price
	}
	discounted := p.Price * (1 - p.Discount.Percentage/100)
	if discounted < 0 {
		return 0
	}
	return discounted
}

// ResolveTier returns the explicit tier, falling back to the legacy
// name-based mapping for packages created before the tier field existed.
func (p *Package) ResolveTier() Tier {
	if p.Tier.Valid() {
		return p.Tier
	}
	name := strings.ToLower(p.Name)
	switch {
	case strings.Contains(name, "premium"):
		return TierPremium
	case strings.Contains(name, "enterprise"):
		return TierEnterprise
	default:
		return TierBasic
	}
}

// AddPeriod adds n units to start using calendar arithmetic. Day overflow is
// normalised forward, so Jan 31 + 1 month lands on Mar 2 in a leap year and
// Mar 3 otherwise.
func AddPeriod(start time.Time, n int, unit DurationUnit) time.Time {
	switch unit {
	case DurationDays:
		return start.AddDate(0, 0, n)
	case DurationMonths:
		return start.AddDate(0, n, 0)
	case DurationYears:
		return start.AddDate(n, 0, 0)
	default:
		return start
	}
}
