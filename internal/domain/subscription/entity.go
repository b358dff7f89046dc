// internal/domain/subscription/entity.go
package subscription

import (
	"time"
)

type SubscriptionStatus string

const (
	StatusPending   SubscriptionStatus = "PENDING"
	StatusActive    SubscriptionStatus = "ACTIVE"
	StatusExpired   SubscriptionStatus = "EXPIRED"
	StatusCancelled SubscriptionStatus = "CANCELLED"
	StatusSuspended SubscriptionStatus = "SUSPENDED"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusExpired, StatusCancelled, StatusSuspended:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// Threshold labels a near-expiry reminder.
type Threshold string

const (
	ThresholdWeek      Threshold = "week"
	ThresholdThreeDays Threshold = "three_days"
	ThresholdOneDay    Threshold = "one_day"
)

// ThresholdFor maps whole days remaining to a reminder label.
func ThresholdFor(daysRemaining int) (Threshold, bool) {
	switch daysRemaining {
	case 7:
		return ThresholdWeek, true
	case 3:
		return ThresholdThreeDays, true
	case 1:
		return ThresholdOneDay, true
	}
	return "", false
}

type UsageStats struct {
	Users    int64 `json:"users" bson:"users"`
	Projects int64 `json:"projects" bson:"projects"`
	Storage  int64 `json:"storage" bson:"storage"`
	APICalls int64 `json:"apiCalls" bson:"api_calls"`
}

type Subscription struct {
	ID            string `json:"id" bson:"_id" db:"id"`
	ContributorID string `json:"contributorId" bson:"contributor_id" db:"contributor_id"`
	PackageID     string `json:"packageId" bson:"package_id" db:"package_id"`

	// Period
	StartDate time.Time `json:"startDate" bson:"start_date" db:"start_date"`
	EndDate   time.Time `json:"endDate" bson:"end_date" db:"end_date"`

	// Status
	Status        SubscriptionStatus `json:"status" bson:"status" db:"status"`
	PaymentStatus PaymentStatus      `json:"paymentStatus" bson:"payment_status" db:"payment_status"`

	// Payment
	PaymentMethod         string  `json:"paymentMethod" bson:"payment_method" db:"payment_method"`
	TransactionID         string  `json:"transactionId" bson:"transaction_id" db:"transaction_id"`
	ExternalTransactionID *string `json:"externalTransactionId,omitempty" bson:"external_transaction_id,omitempty" db:"external_transaction_id"`
	Amount                float64 `json:"amount" bson:"amount" db:"amount"`
	Currency              string  `json:"currency" bson:"currency" db:"currency"`

	// Renewal
	AutoRenewal     bool       `json:"autoRenewal" bson:"auto_renewal" db:"auto_renewal"`
	RenewalAttempts int        `json:"renewalAttempts" bson:"renewal_attempts" db:"renewal_attempts"`
	LastRenewalDate *time.Time `json:"lastRenewalDate,omitempty" bson:"last_renewal_date,omitempty" db:"last_renewal_date"`
	NextBillingDate *time.Time `json:"nextBillingDate,omitempty" bson:"next_billing_date,omitempty" db:"next_billing_date"`

	// Cancellation
	CanceledAt        *time.Time `json:"canceledAt,omitempty" bson:"canceled_at,omitempty" db:"canceled_at"`
	CancelationReason *string    `json:"cancelationReason,omitempty" bson:"cancelation_reason,omitempty" db:"cancelation_reason"`

	IsFreeTrial           bool       `json:"isFreeTrial" bson:"is_free_trial" db:"is_free_trial"`
	UsageStats            UsageStats `json:"usageStats" bson:"usage_stats" db:"usage_stats"`
	LastNotifiedThreshold *Threshold `json:"lastNotifiedThreshold,omitempty" bson:"last_notified_threshold,omitempty" db:"last_notified_threshold"`

	// Metadata
	Metadata map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty" db:"metadata"`

	// Timestamps
	CreatedAt time.Time `json:"createdAt" bson:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at" db:"updated_at"`
}

// DaysRemaining is the whole number of days until EndDate, rounded up.
// Zero once the subscription has ended.
func (s *Subscription) DaysRemaining(now time.Time) int {
	left := s.EndDate.Sub(now)
	if left <= 0 {
		return 0
	}
	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// Clone returns a deep copy, so compensation steps can restore a prior state.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	c.ExternalTransactionID = cloneString(s.ExternalTransactionID)
	c.CancelationReason = cloneString(s.CancelationReason)
	c.LastRenewalDate = cloneTime(s.LastRenewalDate)
	c.NextBillingDate = cloneTime(s.NextBillingDate)
	c.CanceledAt = cloneTime(s.CanceledAt)
	if s.LastNotifiedThreshold != nil {
		t := *s.LastNotifiedThreshold
		c.LastNotifiedThreshold = &t
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type SubscriptionStats struct {
	TotalSubscriptions       int64   `json:"totalSubscriptions"`
	ActiveSubscriptions      int64   `json:"activeSubscriptions"`
	PendingSubscriptions     int64   `json:"pendingSubscriptions"`
	ExpiredSubscriptions     int64   `json:"expiredSubscriptions"`
	CancelledSubscriptions   int64   `json:"cancelledSubscriptions"`
	SuspendedSubscriptions   int64   `json:"suspendedSubscriptions"`
	TotalSpent               float64 `json:"totalSpent"`
	AverageSubscriptionValue float64 `json:"averageSubscriptionValue"`
}
