package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"entitlement-service/internal/domain/contributor"
	"entitlement-service/internal/domain/plan"
	"entitlement-service/internal/domain/subscription"
	xerrors "entitlement-service/internal/pkg/errors"
	"entitlement-service/internal/repository"
	"entitlement-service/internal/repository/memory"
)

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

func seedStore(t *testing.T) *repository.Store {
	t.Helper()
	ctx := context.Background()
	repos := memory.NewStore(false).Repositories()
	require.NoError(t, repos.Plans.Create(ctx, &plan.Package{ID: "p1", Name: "Premium"}))
	require.NoError(t, repos.Contributors.Create(ctx, &contributor.Contributor{
		ID: "c1", Name: "Helping Hands", Email: "hello@helpinghands.org",
		BillingInfo: &contributor.BillingInfo{Email: "billing@helpinghands.org"},
	}))
	require.NoError(t, repos.Subscriptions.Create(ctx, &subscription.Subscription{
		ID: "s1", ContributorID: "c1", PackageID: "p1",
		EndDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Status: subscription.StatusActive,
	}))
	return repos
}

func TestSendExpirationReminderEmailsBillingAddress(t *testing.T) {
	mailer := &mockMailer{}
	mailer.On("Send", "billing@helpinghands.org", "Your Premium subscription expires in three days", mock.AnythingOfType("string")).Return(nil)

	svc := NewReminderService(seedStore(t), mailer, zap.NewNop())
	require.NoError(t, svc.SendExpirationReminder(context.Background(), "s1", subscription.ThresholdThreeDays))
	mailer.AssertExpectations(t)
}

func TestSendExpirationReminderPropagatesFailures(t *testing.T) {
	mailer := &mockMailer{}
	mailer.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	svc := NewReminderService(seedStore(t), mailer, zap.NewNop())

	assert.Error(t, svc.SendExpirationReminder(context.Background(), "s1", subscription.ThresholdWeek))
	assert.ErrorIs(t, svc.SendExpirationReminder(context.Background(), "missing", subscription.ThresholdWeek), xerrors.ErrNotFound)
}

func TestSendExpirationReminderWithoutMailerLogs(t *testing.T) {
	svc := NewReminderService(seedStore(t), nil, zap.NewNop())
	assert.NoError(t, svc.SendExpirationReminder(context.Background(), "s1", subscription.ThresholdOneDay))
}

func TestReminderEmail(t *testing.T) {
	subject, body := ReminderEmail("A & B", "Premium", subscription.ThresholdOneDay, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "Your Premium subscription expires tomorrow", subject)
	assert.Contains(t, body, "A &amp; B")
	assert.Contains(t, body, "March 1, 2024")
}
