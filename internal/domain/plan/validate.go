package plan

import (
	"strings"

	xerrors "entitlement-service/internal/pkg/errors"
)

const maxTrialDays = 365

// Validate checks the catalog invariants: positive duration with a known
// unit, well-formed ceilings, trial length and discount bounds.
func (p *Package) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return xerrors.Invalid("package name is required")
	}
	if p.Price < 0 {
		return xerrors.Invalid("package price must not be negative")
	}
	if p.Duration < 1 {
		return xerrors.Invalid("package duration must be at least 1, got %d", p.Duration)
	}
	if !p.DurationUnit.Valid() {
		return xerrors.Invalid("invalid duration unit %q", p.DurationUnit)
	}
	if p.Tier != "" && !p.Tier.Valid() {
		return xerrors.Invalid("invalid tier %q", p.Tier)
	}
	if err := p.Ceilings.Validate(); err != nil {
		return err
	}
	if p.MaxFreeTrialDuration != nil {
		if d := *p.MaxFreeTrialDuration; d < 1 || d > maxTrialDays {
			return xerrors.Invalid("maxFreeTrialDuration must be between 1 and %d days, got %d", maxTrialDays, d)
		}
	}
	if p.Discount != nil {
		if p.Discount.Percentage < 0 || p.Discount.Percentage > 100 {
			return xerrors.Invalid("discount percentage must be between 0 and 100, got %.2f", p.Discount.Percentage)
		}
		if p.Discount.ValidUntil.IsZero() {
			return xerrors.Invalid("discount validUntil is required")
		}
	}
	return nil
}

// Validate checks every ceiling is a count or Unlimited.
func (c Ceilings) Validate() error {
	for name, v := range c.byResource() {
		if !v.Valid() {
			return xerrors.Invalid("ceiling %s must be a non-negative integer or unlimited, got %d", name, int64(v))
		}
	}
	return nil
}

func (c Ceilings) byResource() map[string]Ceiling {
	return map[string]Ceiling{
		"users":         c.Users,
		"following":     c.Following,
		"activities":    c.Activities,
		"audiences":     c.Audiences,
		"donations":     c.Donations,
		"pledges":       c.Pledges,
		"reports":       c.Reports,
		"beneficiaries": c.Beneficiaries,
	}
}
