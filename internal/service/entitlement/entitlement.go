// Package entitlement derives the usage limits mirrored onto a contributor.
// Every function here is pure.
package entitlement

import (
	"entitlement-service/internal/domain/contributor"
	"entitlement-service/internal/domain/plan"
)

// Free-tier defaults applied whenever a contributor holds no active
// subscription.
const (
	FreeMaxUsers      = 1
	FreeMaxProjects   = 1
	FreeStorageLimit  = 1
	FreeAPICallsLimit = 100
)

// ForPackage copies the package's ceilings verbatim. Projects, storage and
// API calls are not metered on paid packages.
func ForPackage(p *plan.Package) contributor.UsageLimits {
	c := p.Ceilings
	return contributor.UsageLimits{
		MaxUsers:         c.Users,
		MaxFollowing:     c.Following,
		MaxActivities:    c.Activities,
		MaxAudiences:     c.Audiences,
		MaxDonations:     c.Donations,
		MaxPledges:       c.Pledges,
		MaxReports:       c.Reports,
		MaxBeneficiaries: c.Beneficiaries,
		MaxProjects:      plan.Unlimited,
		StorageLimit:     plan.Unlimited,
		APICallsLimit:    plan.Unlimited,
	}
}

// FreeTier returns the downgrade limits with usage counters zeroed.
func FreeTier() contributor.UsageLimits {
	return contributor.UsageLimits{
		MaxUsers:      FreeMaxUsers,
		MaxProjects:   FreeMaxProjects,
		StorageLimit:  FreeStorageLimit,
		APICallsLimit: FreeAPICallsLimit,
	}
}

func ResolveTier(p *plan.Package) plan.Tier {
	return p.ResolveTier()
}

// Activated is the mirror for a contributor whose subscription subID on p
// just became ACTIVE.
func Activated(subID string, p *plan.Package, status contributor.Status) contributor.Entitlements {
	return contributor.Entitlements{
		CurrentSubscription: &subID,
		SubscriptionStatus:  contributor.SubscriptionActive,
		SubscriptionTier:    ResolveTier(p),
		Status:              status,
		UsageLimits:         ForPackage(p),
	}
}

// Downgraded is the mirror after the current subscription left ACTIVE.
func Downgraded(reason contributor.SubscriptionStatus, status contributor.Status) contributor.Entitlements {
	return contributor.Entitlements{
		CurrentSubscription: nil,
		SubscriptionStatus:  reason,
		SubscriptionTier:    plan.TierFree,
		Status:              status,
		UsageLimits:         FreeTier(),
		ResetUsage:          true,
	}
}

// Apply writes e onto c. Usage counters are kept unless e.ResetUsage.
func Apply(c *contributor.Contributor, e contributor.Entitlements) {
	usage := c.UsageLimits.CurrentUsage
	c.CurrentSubscription = e.CurrentSubscription
	c.SubscriptionStatus = e.SubscriptionStatus
	c.SubscriptionTier = e.SubscriptionTier
	c.Status = e.Status
	c.UsageLimits = e.UsageLimits
	if !e.ResetUsage {
		c.UsageLimits.CurrentUsage = usage
	}
}
