// internal/domain/subscription/dto.go
package subscription

import (
	"time"

	"entitlement-service/internal/domain/contributor"
	"entitlement-service/internal/domain/plan"
)

type CreateSubscriptionRequest struct {
	PackageID     string                   `json:"packageId" binding:"required"`
	PaymentMethod string                   `json:"paymentMethod" binding:"required"`
	AutoRenewal   bool                     `json:"autoRenewal"`
	BillingInfo   *contributor.BillingInfo `json:"billingInfo"`
}

type StartTrialRequest struct {
	PackageID string `json:"packageId" binding:"required"`
}

// PaymentConfirmation is what the payment gateway reports on success.
type PaymentConfirmation struct {
	TransactionID string         `json:"transactionId" binding:"required"`
	Amount        *float64       `json:"amount"`
	Metadata      map[string]any `json:"metadata"`
}

type CancelSubscriptionRequest struct {
	Reason string `json:"reason"`
}

// WebhookConfirmation is the gateway callback body; the subscription is
// looked up by the reference returned at creation.
type WebhookConfirmation struct {
	SubscriptionID string         `json:"subscriptionId" binding:"required"`
	TransactionID  string         `json:"transactionId" binding:"required"`
	Amount         *float64       `json:"amount"`
	Metadata       map[string]any `json:"metadata"`
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type SubscriptionListFilters struct {
	Status         *SubscriptionStatus `form:"status"`
	IncludeExpired bool                `form:"includeExpired"`
	Page           int                 `form:"page"`
	Limit          int                 `form:"limit"`
}

// Normalize clamps paging to page >= 1 and 1 <= limit <= MaxPageSize.
func (f *SubscriptionListFilters) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
}

func (f *SubscriptionListFilters) Offset() int {
	return (f.Page - 1) * f.Limit
}

type SubscriptionListResponse struct {
	Subscriptions []Subscription `json:"subscriptions"`
	Total         int64          `json:"total"`
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
	TotalPages    int            `json:"totalPages"`
}

// ActiveStatus is the contributor-facing entitlement view.
type ActiveStatus struct {
	ContributorID      string                         `json:"contributorId"`
	SubscriptionStatus contributor.SubscriptionStatus `json:"subscriptionStatus,omitempty"`
	SubscriptionTier   plan.Tier                      `json:"subscriptionTier"`
	Status             contributor.Status             `json:"status"`
	UsageLimits        contributor.UsageLimits        `json:"usageLimits"`
	Subscription       *Subscription                  `json:"subscription"`
	Package            *plan.Package                  `json:"package,omitempty"`
	DaysRemaining      int                            `json:"daysRemaining"`
}

// SweepResult summarises one expiry sweep.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Failed  int `json:"failed"`
}

// ReminderResult summarises one near-expiry scan.
type ReminderResult struct {
	Scanned int `json:"scanned"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// ExpiryWindow bounds a near-expiry query: from < endDate <= to.
type ExpiryWindow struct {
	From time.Time
	To   time.Time
}

// Matches reports whether a record with status s passes the status filters.
// An explicit status wins over IncludeExpired.
func (f *SubscriptionListFilters) Matches(s SubscriptionStatus) bool {
	if f.Status != nil {
		return s == *f.Status
	}
	return f.IncludeExpired || s != StatusExpired
}
