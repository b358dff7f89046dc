package entitlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitlement-service/internal/domain/contributor"
	"entitlement-service/internal/domain/plan"
)

func TestForPackageCopiesCeilings(t *testing.T) {
	p := &plan.Package{
		Name: "Premium",
		Ceilings: plan.Ceilings{
			Users:         5,
			Following:     plan.Unlimited,
			Activities:    20,
			Audiences:     3,
			Donations:     plan.Unlimited,
			Pledges:       7,
			Reports:       0,
			Beneficiaries: 11,
		},
	}
	limits := ForPackage(p)
	assert.Equal(t, plan.Limit(5), limits.MaxUsers)
	assert.True(t, limits.MaxFollowing.IsUnlimited())
	assert.Equal(t, plan.Limit(20), limits.MaxActivities)
	assert.Equal(t, plan.Limit(3), limits.MaxAudiences)
	assert.True(t, limits.MaxDonations.IsUnlimited())
	assert.Equal(t, plan.Limit(7), limits.MaxPledges)
	assert.Equal(t, plan.Limit(0), limits.MaxReports)
	assert.Equal(t, plan.Limit(11), limits.MaxBeneficiaries)
	assert.True(t, limits.MaxProjects.IsUnlimited())
	assert.True(t, limits.StorageLimit.IsUnlimited())
	assert.True(t, limits.APICallsLimit.IsUnlimited())
	assert.Equal(t, contributor.Usage{}, limits.CurrentUsage)
}

func TestFreeTier(t *testing.T) {
	limits := FreeTier()
	assert.Equal(t, plan.Limit(1), limits.MaxUsers)
	assert.Equal(t, plan.Limit(1), limits.MaxProjects)
	assert.Equal(t, plan.Limit(1), limits.StorageLimit)
	assert.Equal(t, plan.Limit(100), limits.APICallsLimit)
	assert.Equal(t, plan.Limit(0), limits.MaxFollowing)
	assert.Equal(t, plan.Limit(0), limits.MaxBeneficiaries)
	assert.Equal(t, contributor.Usage{}, limits.CurrentUsage)
}

func TestActivatedAndDowngraded(t *testing.T) {
	p := &plan.Package{Name: "Team", Tier: plan.TierEnterprise, Ceilings: plan.Ceilings{Users: 25}}
	c := &contributor.Contributor{ID: "c1"}

	Apply(c, Activated("sub-1", p, contributor.StatusActive))
	require.NotNil(t, c.CurrentSubscription)
	assert.True(t, c.HoldsSubscription("sub-1"))
	assert.Equal(t, plan.TierEnterprise, c.SubscriptionTier)
	assert.Equal(t, contributor.SubscriptionActive, c.SubscriptionStatus)
	assert.Equal(t, plan.Limit(25), c.UsageLimits.MaxUsers)

	Apply(c, Downgraded(contributor.SubscriptionExpired, contributor.StatusInactive))
	assert.Nil(t, c.CurrentSubscription)
	assert.Equal(t, plan.TierFree, c.SubscriptionTier)
	assert.Equal(t, contributor.SubscriptionExpired, c.SubscriptionStatus)
	assert.Equal(t, contributor.StatusInactive, c.Status)
	assert.Equal(t, FreeTier(), c.UsageLimits)
}

func TestActivationKeepsLiveUsage(t *testing.T) {
	p := &plan.Package{Name: "Team", Tier: plan.TierEnterprise, Ceilings: plan.Ceilings{Users: 25}}
	c := &contributor.Contributor{ID: "c1", UsageLimits: FreeTier()}
	c.UsageLimits.CurrentUsage = contributor.Usage{Users: 4, APICalls: 77}

	Apply(c, Activated("sub-1", p, contributor.StatusActive))
	assert.Equal(t, contributor.Usage{Users: 4, APICalls: 77}, c.UsageLimits.CurrentUsage)
	assert.Equal(t, plan.Limit(25), c.UsageLimits.MaxUsers)

	prior := c.Entitlements()
	Apply(c, Downgraded(contributor.SubscriptionCancelled, contributor.StatusInactive))
	assert.Equal(t, contributor.Usage{}, c.UsageLimits.CurrentUsage)

	// restoring a snapshot brings the counters back exactly
	Apply(c, prior)
	assert.Equal(t, contributor.Usage{Users: 4, APICalls: 77}, c.UsageLimits.CurrentUsage)
}

func TestResolveTierFallsBackToName(t *testing.T) {
	assert.Equal(t, plan.TierPremium, ResolveTier(&plan.Package{Name: "premium yearly"}))
	assert.Equal(t, plan.TierBasic, ResolveTier(&plan.Package{Name: "Starter"}))
}
