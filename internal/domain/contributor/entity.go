// internal/domain/contributor/entity.go
package contributor

import (
	"time"

	"entitlement-service/internal/domain/plan"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusPending   Status = "pending"
	StatusSuspended Status = "suspended"
	StatusTrial     Status = "trial"
)

// SubscriptionStatus is the simplified view of the current subscription
// mirrored on the contributor.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionSuspended SubscriptionStatus = "suspended"
)

type Usage struct {
	Users    int64 `json:"users" bson:"users"`
	Projects int64 `json:"projects" bson:"projects"`
	Storage  int64 `json:"storage" bson:"storage"`
	APICalls int64 `json:"apiCalls" bson:"api_calls"`
}

// UsageLimits is the denormalized copy of the active package's ceilings plus
// live usage counters.
type UsageLimits struct {
	MaxUsers         plan.Ceiling `json:"maxUsers" bson:"max_users"`
	MaxFollowing     plan.Ceiling `json:"maxFollowing" bson:"max_following"`
	MaxActivities    plan.Ceiling `json:"maxActivities" bson:"max_activities"`
	MaxAudiences     plan.Ceiling `json:"maxAudiences" bson:"max_audiences"`
	MaxDonations     plan.Ceiling `json:"maxDonations" bson:"max_donations"`
	MaxPledges       plan.Ceiling `json:"maxPledges" bson:"max_pledges"`
	MaxReports       plan.Ceiling `json:"maxReports" bson:"max_reports"`
	MaxBeneficiaries plan.Ceiling `json:"maxBeneficiaries" bson:"max_beneficiaries"`
	MaxProjects      plan.Ceiling `json:"maxProjects" bson:"max_projects"`
	StorageLimit     plan.Ceiling `json:"storageLimit" bson:"storage_limit"`
	APICallsLimit    plan.Ceiling `json:"apiCallsLimit" bson:"api_calls_limit"`
	CurrentUsage     Usage        `json:"currentUsage" bson:"current_usage"`
}

type BillingInfo struct {
	Name    string `json:"name" bson:"name"`
	Email   string `json:"email" bson:"email"`
	Address string `json:"address,omitempty" bson:"address,omitempty"`
	City    string `json:"city,omitempty" bson:"city,omitempty"`
	Country string `json:"country,omitempty" bson:"country,omitempty"`
	TaxID   string `json:"taxId,omitempty" bson:"tax_id,omitempty"`
}

type Contributor struct {
	ID    string `json:"id" bson:"_id" db:"id"`
	Name  string `json:"name" bson:"name" db:"name"`
	Email string `json:"email" bson:"email" db:"email"`

	// Entitlement mirror, written only by the lifecycle engine
	CurrentSubscription *string            `json:"currentSubscription" bson:"current_subscription" db:"current_subscription"`
	SubscriptionHistory []string           `json:"subscriptionHistory" bson:"subscription_history" db:"subscription_history"`
	SubscriptionStatus  SubscriptionStatus `json:"subscriptionStatus,omitempty" bson:"subscription_status,omitempty" db:"subscription_status"`
	SubscriptionTier    plan.Tier          `json:"subscriptionTier" bson:"subscription_tier" db:"subscription_tier"`
	Status              Status             `json:"status" bson:"status" db:"status"`
	UsageLimits         UsageLimits        `json:"usageLimits" bson:"usage_limits" db:"usage_limits"`

	BillingInfo *BillingInfo `json:"billingInfo,omitempty" bson:"billing_info,omitempty" db:"billing_info"`

	CreatedAt time.Time `json:"createdAt" bson:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at" db:"updated_at"`
}

// Entitlements is the set of mirror fields replaced as one unit.
type Entitlements struct {
	CurrentSubscription *string
	SubscriptionStatus  SubscriptionStatus
	SubscriptionTier    plan.Tier
	Status              Status
	UsageLimits         UsageLimits
	// ResetUsage replaces CurrentUsage too; otherwise the live counters
	// survive the new ceilings.
	ResetUsage bool
}

// Entitlements returns the contributor's current mirror.
func (c *Contributor) Entitlements() Entitlements {
	return Entitlements{
		CurrentSubscription: c.CurrentSubscription,
		SubscriptionStatus:  c.SubscriptionStatus,
		SubscriptionTier:    c.SubscriptionTier,
		Status:              c.Status,
		UsageLimits:         c.UsageLimits,
		ResetUsage:          true,
	}
}

// HoldsSubscription reports whether id is the contributor's current subscription.
func (c *Contributor) HoldsSubscription(id string) bool {
	return c.CurrentSubscription != nil && *c.CurrentSubscription == id
}

// Clone returns a deep copy.
func (c *Contributor) Clone() *Contributor {
	if c == nil {
		return nil
	}
	out := *c
	if c.CurrentSubscription != nil {
		id := *c.CurrentSubscription
		out.CurrentSubscription = &id
	}
	out.SubscriptionHistory = append([]string(nil), c.SubscriptionHistory...)
	if c.BillingInfo != nil {
		b := *c.BillingInfo
		out.BillingInfo = &b
	}
	return &out
}
