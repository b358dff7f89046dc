package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]SubscriptionStatus{
		{StatusPending, StatusActive},
		{StatusPending, StatusCancelled},
		{StatusActive, StatusExpired},
		{StatusActive, StatusCancelled},
		{StatusActive, StatusSuspended},
	}
	for _, p := range allowed {
		assert.True(t, CanTransition(p[0], p[1]), "%s -> %s", p[0], p[1])
	}

	all := []SubscriptionStatus{StatusPending, StatusActive, StatusExpired, StatusCancelled, StatusSuspended}
	for _, from := range []SubscriptionStatus{StatusExpired, StatusCancelled, StatusSuspended} {
		assert.True(t, from.IsTerminal())
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, CanTransition(StatusPending, StatusExpired))
	assert.False(t, CanTransition(StatusActive, StatusPending))
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Subscription{EndDate: now.Add(7 * 24 * time.Hour)}
	assert.Equal(t, 7, s.DaysRemaining(now))

	s.EndDate = now.Add(6*24*time.Hour + time.Minute)
	assert.Equal(t, 7, s.DaysRemaining(now))

	s.EndDate = now.Add(time.Hour)
	assert.Equal(t, 1, s.DaysRemaining(now))

	s.EndDate = now
	assert.Equal(t, 0, s.DaysRemaining(now))
}

func TestThresholdFor(t *testing.T) {
	for days, want := range map[int]Threshold{7: ThresholdWeek, 3: ThresholdThreeDays, 1: ThresholdOneDay} {
		got, ok := ThresholdFor(days)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	for _, days := range []int{0, 2, 4, 6, 8} {
		_, ok := ThresholdFor(days)
		assert.False(t, ok)
	}
}

func TestFiltersNormalize(t *testing.T) {
	f := SubscriptionListFilters{Page: 0, Limit: 500}
	f.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, MaxPageSize, f.Limit)

	f = SubscriptionListFilters{Page: 3}
	f.Normalize()
	assert.Equal(t, DefaultPageSize, f.Limit)
	assert.Equal(t, 20, f.Offset())
}

func TestCloneIsDeep(t *testing.T) {
	reason := "x"
	s := &Subscription{CancelationReason: &reason, Metadata: map[string]any{"a": 1}}
	c := s.Clone()
	*c.CancelationReason = "y"
	c.Metadata["a"] = 2
	assert.Equal(t, "x", *s.CancelationReason)
	assert.Equal(t, 1, s.Metadata["a"])
}
