package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitlement-service/internal/domain/subscription"
	"entitlement-service/internal/repository/memory"
)

func seed(t *testing.T, n int) *HistoryService {
	t.Helper()
	repos := memory.NewStore(false).Repositories()
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		status := subscription.StatusCancelled
		if i%4 == 0 {
			status = subscription.StatusExpired
		}
		require.NoError(t, repos.Subscriptions.Create(context.Background(), &subscription.Subscription{
			ID:            fmt.Sprintf("sub-%03d", i),
			ContributorID: "c1",
			Status:        status,
			PaymentStatus: subscription.PaymentPaid,
			Amount:        10,
			StartDate:     base.AddDate(0, i, 0),
			EndDate:       base.AddDate(0, i+1, 0),
			CreatedAt:     base.AddDate(0, i, 0),
		}))
	}
	return NewHistoryService(repos.Subscriptions)
}

func TestGetHistoryDefaults(t *testing.T) {
	svc := seed(t, 24)
	resp, err := svc.GetHistory(context.Background(), "c1", subscription.SubscriptionListFilters{})
	require.NoError(t, err)
	assert.EqualValues(t, 18, resp.Total, "expired hidden by default")
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 10, resp.Limit)
	assert.Equal(t, 2, resp.TotalPages)
	require.Len(t, resp.Subscriptions, 10)
	assert.Equal(t, "sub-023", resp.Subscriptions[0].ID)
	for _, s := range resp.Subscriptions {
		assert.NotEqual(t, subscription.StatusExpired, s.Status)
	}
}

func TestGetHistoryIncludeExpiredAndClamp(t *testing.T) {
	svc := seed(t, 24)
	resp, err := svc.GetHistory(context.Background(), "c1", subscription.SubscriptionListFilters{IncludeExpired: true, Limit: 1000})
	require.NoError(t, err)
	assert.EqualValues(t, 24, resp.Total)
	assert.Equal(t, 100, resp.Limit)
	assert.Equal(t, 1, resp.TotalPages)
	assert.Len(t, resp.Subscriptions, 24)
}

func TestGetHistoryStatusFilterShowsExpired(t *testing.T) {
	svc := seed(t, 8)
	expired := subscription.StatusExpired
	resp, err := svc.GetHistory(context.Background(), "c1", subscription.SubscriptionListFilters{Status: &expired})
	require.NoError(t, err)
	assert.EqualValues(t, 2, resp.Total)
}

func TestGetHistoryPastLastPage(t *testing.T) {
	svc := seed(t, 3)
	resp, err := svc.GetHistory(context.Background(), "c1", subscription.SubscriptionListFilters{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, resp.Subscriptions)
	assert.Equal(t, 9, resp.Page)
}

func TestGetStats(t *testing.T) {
	svc := seed(t, 8)
	stats, err := svc.GetStats(context.Background(), "c1")
	require.NoError(t, err)
	assert.EqualValues(t, 8, stats.TotalSubscriptions)
	assert.EqualValues(t, 2, stats.ExpiredSubscriptions)
	assert.EqualValues(t, 6, stats.CancelledSubscriptions)
	assert.Equal(t, 80.0, stats.TotalSpent)
	assert.Equal(t, 10.0, stats.AverageSubscriptionValue)
}
