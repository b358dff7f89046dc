// internal/service/notification/service.go
package notification

import (
	"context"
	"fmt"
	"html"
	"time"

	"entitlement-service/internal/domain/subscription"
	"entitlement-service/internal/repository"

	"go.uber.org/zap"
)

// Mailer is the outgoing mail transport.
type Mailer interface {
	Send(to, subject, bodyHTML string) error
}

// ReminderService turns a near-expiry threshold into an email to the
// contributor. Without a mailer the reminder is only logged.
type ReminderService struct {
	store  *repository.Store
	mailer Mailer
	logger *zap.Logger
}

func NewReminderService(store *repository.Store, mailer Mailer, logger *zap.Logger) *ReminderService {
	return &ReminderService{
		store:  store,
		mailer: mailer,
		logger: logger,
	}
}

// SendExpirationReminder looks up the subscription's contributor and package
// and emails the reminder for threshold.
func (s *ReminderService) SendExpirationReminder(ctx context.Context, subscriptionID string, threshold subscription.Threshold) error {
	sub, err := s.store.Subscriptions.FindByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	c, err := s.store.Contributors.FindByID(ctx, sub.ContributorID)
	if err != nil {
		return err
	}
	packageName := sub.PackageID
	if pkg, err := s.store.Plans.FindByID(ctx, sub.PackageID); err == nil {
		packageName = pkg.Name
	}

	to := c.Email
	if c.BillingInfo != nil && c.BillingInfo.Email != "" {
		to = c.BillingInfo.Email
	}

	if s.mailer == nil || to == "" {
		s.logger.Info("expiration reminder",
			zap.String("subscription_id", sub.ID),
			zap.String("contributor_id", c.ID),
			zap.String("threshold", string(threshold)),
			zap.Time("end_date", sub.EndDate),
		)
		return nil
	}

	subject, body := ReminderEmail(c.Name, packageName, threshold, sub.EndDate)
	if err := s.mailer.Send(to, subject, body); err != nil {
		return fmt.Errorf("failed to send reminder email: %w", err)
	}

	s.logger.Info("expiration reminder sent",
		zap.String("subscription_id", sub.ID),
		zap.String("threshold", string(threshold)),
	)
	return nil
}

var thresholdPhrases = map[subscription.Threshold]string{
	subscription.ThresholdWeek:      "in one week",
	subscription.ThresholdThreeDays: "in three days",
	subscription.ThresholdOneDay:    "tomorrow",
}

// ReminderEmail builds the subject and HTML body of a reminder.
func ReminderEmail(name, packageName string, threshold subscription.Threshold, endDate time.Time) (string, string) {
	when, ok := thresholdPhrases[threshold]
	if !ok {
		when = "soon"
	}
	subject := fmt.Sprintf("Your %s subscription expires %s", packageName, when)
	body := fmt.Sprintf(`
		<h2>Subscription expiring %s</h2>
		<p>Hello %s,</p>
		<p>Your <strong>%s</strong> subscription ends on %s.</p>
		<p>Renew before then to keep your current limits. After expiry your account returns to the free tier.</p>
	`, html.EscapeString(when), html.EscapeString(name), html.EscapeString(packageName), endDate.Format("January 2, 2006 15:04 MST"))
	return subject, body
}
