package subscription

import (
	"context"
	"fmt"
	"time"

	"entitlement-service/internal/domain/contributor"
	"entitlement-service/internal/domain/subscription"
	xerrors "entitlement-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// ReminderWindow is how far ahead the near-expiry scan looks.
const ReminderWindow = 7 * 24 * time.Hour

// CheckExpiredSubscriptions expires every ACTIVE subscription whose period
// has elapsed and downgrades its contributor. This is the only path that
// produces EXPIRED. A failing record is logged and skipped.
func (s *SubscriptionService) CheckExpiredSubscriptions(ctx context.Context) (*subscription.SweepResult, error) {
	now := s.clock.Now()
	due, err := s.store.Subscriptions.FindExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to scan expired subscriptions: %w", err)
	}

	result := &subscription.SweepResult{Scanned: len(due)}
	for i := range due {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		sub := &due[i]
		if err := s.expire(ctx, sub, now); err != nil {
			result.Failed++
			s.logger.Error("failed to expire subscription",
				zap.String("subscription_id", sub.ID),
				zap.String("contributor_id", sub.ContributorID),
				zap.Error(err),
			)
			continue
		}
		result.Expired++
	}

	s.logger.Info("expiry sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("expired", result.Expired),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (s *SubscriptionService) expire(ctx context.Context, sub *subscription.Subscription, now time.Time) error {
	c, err := s.store.Contributors.FindByID(ctx, sub.ContributorID)
	if err != nil {
		if !xerrors.Is(err, xerrors.ErrNotFound) {
			return err
		}
		s.logger.Warn("expiring subscription of missing contributor", zap.String("subscription_id", sub.ID))
		c = nil
	}

	next := sub.Clone()
	next.Status = subscription.StatusExpired
	next.NextBillingDate = nil
	next.UpdatedAt = now

	return s.atomically(ctx, "expire subscription", func(ctx context.Context, uow *unitOfWork) error {
		if err := uow.updateSubscription(ctx, sub, next); err != nil {
			return err
		}
		return s.downgrade(ctx, uow, c, sub.ID, contributor.SubscriptionExpired, contributor.StatusInactive, now)
	})
}

// SendExpirationReminders notifies ACTIVE subscriptions ending within the
// next seven days when exactly 7, 3 or 1 days remain. A threshold already
// recorded on the subscription is not sent again.
func (s *SubscriptionService) SendExpirationReminders(ctx context.Context) (*subscription.ReminderResult, error) {
	now := s.clock.Now()
	expiring, err := s.store.Subscriptions.FindExpiring(ctx, subscription.ExpiryWindow{From: now, To: now.Add(ReminderWindow)})
	if err != nil {
		return nil, fmt.Errorf("failed to scan expiring subscriptions: %w", err)
	}

	result := &subscription.ReminderResult{Scanned: len(expiring)}
	for i := range expiring {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		sub := &expiring[i]
		threshold, ok := subscription.ThresholdFor(sub.DaysRemaining(now))
		if !ok {
			continue
		}
		if sub.LastNotifiedThreshold != nil && *sub.LastNotifiedThreshold == threshold {
			result.Skipped++
			continue
		}

		if err := s.notifier.SendExpirationReminder(ctx, sub.ID, threshold); err != nil {
			result.Failed++
			s.logger.Error("failed to send expiration reminder",
				zap.String("subscription_id", sub.ID),
				zap.String("threshold", string(threshold)),
				zap.Error(err),
			)
			continue
		}
		result.Sent++

		next := sub.Clone()
		next.LastNotifiedThreshold = &threshold
		next.UpdatedAt = now
		if err := s.store.Subscriptions.Update(ctx, next, sub.Status); err != nil {
			s.logger.Warn("failed to record notified threshold",
				zap.String("subscription_id", sub.ID),
				zap.String("threshold", string(threshold)),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("near-expiry scan finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("sent", result.Sent),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}
