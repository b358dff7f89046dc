// internal/service/subscription/subscription_service.go
package subscription

import (
	"context"
	"fmt"
	"time"

	"entitlement-service/internal/domain/contributor"
	"entitlement-service/internal/domain/plan"
	"entitlement-service/internal/domain/subscription"
	"entitlement-service/internal/pkg/clock"
	xerrors "entitlement-service/internal/pkg/errors"
	"entitlement-service/internal/repository"
	"entitlement-service/internal/service/entitlement"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const defaultCancelReason = "Cancelled by user"

// Notifier delivers near-expiry reminders.
type Notifier interface {
	SendExpirationReminder(ctx context.Context, subscriptionID string, threshold subscription.Threshold) error
}

// SubscriptionService is the lifecycle engine. It is the only writer of
// subscription status and of the contributor's entitlement fields.
type SubscriptionService struct {
	store    *repository.Store
	notifier Notifier
	clock    clock.Clock
	logger   *zap.Logger
}

func NewSubscriptionService(
	store *repository.Store,
	notifier Notifier,
	clk clock.Clock,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		store:    store,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
	}
}

// CreateSubscription opens a PENDING subscription awaiting payment.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, contributorID string, req *subscription.CreateSubscriptionRequest) (*subscription.Subscription, error) {
	c, err := s.store.Contributors.FindByID(ctx, contributorID)
	if err != nil {
		return nil, err
	}

	pkg, err := s.store.Plans.FindByID(ctx, req.PackageID)
	if err != nil {
		return nil, err
	}
	if !pkg.IsActive {
		return nil, xerrors.Conflict("package %q is not active", pkg.Name)
	}

	// Fast path only; the store's unique index is the real guard.
	active, err := s.findActive(ctx, contributorID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, xerrors.Conflict("contributor already has an active subscription %s", active.ID)
	}

	now := s.clock.Now()
	sub := &subscription.Subscription{
		ID:            newID(),
		ContributorID: contributorID,
		PackageID:     pkg.ID,
		StartDate:     now,
		EndDate:       pkg.EndDate(now),
		Status:        subscription.StatusPending,
		PaymentStatus: subscription.PaymentPending,
		PaymentMethod: req.PaymentMethod,
		TransactionID: generateTransactionReference(),
		Amount:        pkg.PriceAt(now),
		Currency:      pkg.Currency,
		AutoRenewal:   req.AutoRenewal,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.atomically(ctx, "create subscription", func(ctx context.Context, uow *unitOfWork) error {
		if err := uow.createSubscription(ctx, sub); err != nil {
			return err
		}
		if req.BillingInfo != nil {
			next := c.Clone()
			next.BillingInfo = req.BillingInfo
			next.UpdatedAt = now
			return uow.updateContributor(ctx, c, next)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription created",
		zap.String("subscription_id", sub.ID),
		zap.String("transaction_id", sub.TransactionID),
		zap.String("contributor_id", contributorID),
		zap.String("package_id", pkg.ID),
		zap.Time("end_date", sub.EndDate),
		zap.Float64("amount", sub.Amount),
	)

	return sub, nil
}

// ConfirmPayment activates a PENDING subscription and mirrors its package
// onto the contributor.
func (s *SubscriptionService) ConfirmPayment(ctx context.Context, subscriptionID string, conf *subscription.PaymentConfirmation) (*subscription.Subscription, error) {
	sub, err := s.store.Subscriptions.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.PaymentStatus == subscription.PaymentPaid {
		return nil, xerrors.Conflict("payment for subscription %s is already confirmed", sub.ID)
	}
	if !subscription.CanTransition(sub.Status, subscription.StatusActive) {
		return nil, xerrors.Conflict("subscription %s is %s and cannot be activated", sub.ID, sub.Status)
	}

	pkg, err := s.store.Plans.FindByID(ctx, sub.PackageID)
	if err != nil {
		return nil, err
	}
	c, err := s.store.Contributors.FindByID(ctx, sub.ContributorID)
	if err != nil {
		return nil, err
	}
	active, err := s.findActive(ctx, sub.ContributorID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, xerrors.Conflict("contributor already has an active subscription %s", active.ID)
	}

	if conf.Amount != nil && *conf.Amount != sub.Amount {
		s.logger.Warn("confirmed amount differs from subscription amount",
			zap.String("subscription_id", sub.ID),
			zap.Float64("expected", sub.Amount),
			zap.Float64("received", *conf.Amount),
		)
	}

	now := s.clock.Now()
	next := sub.Clone()
	next.Status = subscription.StatusActive
	next.PaymentStatus = subscription.PaymentPaid
	externalID := conf.TransactionID
	next.ExternalTransactionID = &externalID
	if next.AutoRenewal {
		end := next.EndDate
		next.NextBillingDate = &end
	}
	next.Metadata = mergeMetadata(next.Metadata, conf.Metadata)
	next.UpdatedAt = now

	mirrored := c.Clone()
	entitlement.Apply(mirrored, entitlement.Activated(sub.ID, pkg, contributor.StatusActive))
	mirrored.SubscriptionHistory = appendHistory(mirrored.SubscriptionHistory, sub.ID)
	mirrored.UpdatedAt = now

	err = s.atomically(ctx, "confirm payment", func(ctx context.Context, uow *unitOfWork) error {
		if err := uow.updateSubscription(ctx, sub, next); err != nil {
			return err
		}
		return uow.updateContributor(ctx, c, mirrored)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription activated",
		zap.String("subscription_id", sub.ID),
		zap.String("contributor_id", sub.ContributorID),
		zap.String("external_transaction_id", externalID),
		zap.String("tier", string(mirrored.SubscriptionTier)),
	)

	return next, nil
}

// CancelSubscription cancels a PENDING or ACTIVE subscription. The
// contributor drops to the free tier when it was backed by this subscription.
func (s *SubscriptionService) CancelSubscription(ctx context.Context, subscriptionID, reason string) (*subscription.Subscription, error) {
	sub, err := s.store.Subscriptions.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if !subscription.CanTransition(sub.Status, subscription.StatusCancelled) {
		if sub.Status == subscription.StatusCancelled {
			return nil, xerrors.Conflict("subscription %s is already cancelled", sub.ID)
		}
		return nil, xerrors.Conflict("subscription %s is %s and cannot be cancelled", sub.ID, sub.Status)
	}

	c, err := s.store.Contributors.FindByID(ctx, sub.ContributorID)
	if err != nil {
		return nil, err
	}

	if reason == "" {
		reason = defaultCancelReason
	}
	now := s.clock.Now()
	next := sub.Clone()
	next.Status = subscription.StatusCancelled
	next.CanceledAt = &now
	next.CancelationReason = &reason
	next.AutoRenewal = false
	next.NextBillingDate = nil
	next.UpdatedAt = now

	err = s.atomically(ctx, "cancel subscription", func(ctx context.Context, uow *unitOfWork) error {
		if err := uow.updateSubscription(ctx, sub, next); err != nil {
			return err
		}
		return s.downgrade(ctx, uow, c, sub.ID, contributor.SubscriptionCancelled, contributor.StatusInactive, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription cancelled",
		zap.String("subscription_id", sub.ID),
		zap.String("contributor_id", sub.ContributorID),
		zap.String("reason", reason),
	)

	return next, nil
}

// RenewSubscription buys the same package again: a new PENDING subscription
// is created for the same contributor. The source record only has its
// renewal bookkeeping bumped.
func (s *SubscriptionService) RenewSubscription(ctx context.Context, subscriptionID string) (*subscription.Subscription, error) {
	source, err := s.store.Subscriptions.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	renewed, err := s.CreateSubscription(ctx, source.ContributorID, &subscription.CreateSubscriptionRequest{
		PackageID:     source.PackageID,
		PaymentMethod: source.PaymentMethod,
		AutoRenewal:   source.AutoRenewal,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	bumped := source.Clone()
	bumped.RenewalAttempts++
	bumped.LastRenewalDate = &now
	bumped.UpdatedAt = now
	if err := s.store.Subscriptions.Update(ctx, bumped, source.Status); err != nil {
		s.logger.Warn("failed to record renewal on source subscription",
			zap.String("subscription_id", source.ID),
			zap.String("renewed_subscription_id", renewed.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("subscription renewed",
		zap.String("subscription_id", source.ID),
		zap.String("renewed_subscription_id", renewed.ID),
	)

	return renewed, nil
}

// ExtendSubscription pushes an ACTIVE subscription's end date out by one
// package period, counted from the later of its current end and now.
func (s *SubscriptionService) ExtendSubscription(ctx context.Context, subscriptionID string) (*subscription.Subscription, error) {
	sub, err := s.store.Subscriptions.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != subscription.StatusActive {
		return nil, xerrors.Conflict("only active subscriptions can be extended, %s is %s", sub.ID, sub.Status)
	}
	pkg, err := s.store.Plans.FindByID(ctx, sub.PackageID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	from := sub.EndDate
	if from.Before(now) {
		from = now
	}

	next := sub.Clone()
	next.EndDate = pkg.EndDate(from)
	next.RenewalAttempts++
	next.LastRenewalDate = &now
	next.LastNotifiedThreshold = nil
	if next.AutoRenewal {
		end := next.EndDate
		next.NextBillingDate = &end
	}
	next.UpdatedAt = now

	err = s.atomically(ctx, "extend subscription", func(ctx context.Context, uow *unitOfWork) error {
		return uow.updateSubscription(ctx, sub, next)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription extended",
		zap.String("subscription_id", sub.ID),
		zap.Time("previous_end_date", sub.EndDate),
		zap.Time("end_date", next.EndDate),
	)

	return next, nil
}

// StartFreeTrial activates a zero-cost trial of a package that offers one.
// Each contributor gets a single trial.
func (s *SubscriptionService) StartFreeTrial(ctx context.Context, contributorID, packageID string) (*subscription.Subscription, error) {
	c, err := s.store.Contributors.FindByID(ctx, contributorID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.store.Plans.FindByID(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if !pkg.IsActive {
		return nil, xerrors.Conflict("package %q is not active", pkg.Name)
	}
	if !pkg.OffersFreeTrial() {
		return nil, xerrors.Conflict("package %q does not offer a free trial", pkg.Name)
	}

	used, err := s.store.Subscriptions.HasFreeTrial(ctx, contributorID)
	if err != nil {
		return nil, fmt.Errorf("failed to check trial eligibility: %w", err)
	}
	if used {
		return nil, xerrors.Conflict("contributor has already used a free trial")
	}
	active, err := s.findActive(ctx, contributorID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, xerrors.Conflict("contributor already has an active subscription %s", active.ID)
	}

	now := s.clock.Now()
	sub := &subscription.Subscription{
		ID:            newID(),
		ContributorID: contributorID,
		PackageID:     pkg.ID,
		StartDate:     now,
		EndDate:       plan.AddPeriod(now, *pkg.MaxFreeTrialDuration, plan.DurationDays),
		Status:        subscription.StatusActive,
		PaymentStatus: subscription.PaymentPaid,
		PaymentMethod: "free_trial",
		TransactionID: generateTransactionReference(),
		Amount:        0,
		Currency:      pkg.Currency,
		IsFreeTrial:   true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	mirrored := c.Clone()
	entitlement.Apply(mirrored, entitlement.Activated(sub.ID, pkg, contributor.StatusTrial))
	mirrored.SubscriptionHistory = appendHistory(mirrored.SubscriptionHistory, sub.ID)
	mirrored.UpdatedAt = now

	err = s.atomically(ctx, "start free trial", func(ctx context.Context, uow *unitOfWork) error {
		if err := uow.createSubscription(ctx, sub); err != nil {
			return err
		}
		return uow.updateContributor(ctx, c, mirrored)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("free trial started",
		zap.String("subscription_id", sub.ID),
		zap.String("contributor_id", contributorID),
		zap.Int("days", *pkg.MaxFreeTrialDuration),
	)

	return sub, nil
}

// GetSubscription retrieves a subscription by ID
func (s *SubscriptionService) GetSubscription(ctx context.Context, subscriptionID string) (*subscription.Subscription, error) {
	return s.store.Subscriptions.FindByID(ctx, subscriptionID)
}

// GetActiveStatus returns the contributor's entitlement view with its active
// subscription, if any.
func (s *SubscriptionService) GetActiveStatus(ctx context.Context, contributorID string) (*subscription.ActiveStatus, error) {
	c, err := s.store.Contributors.FindByID(ctx, contributorID)
	if err != nil {
		return nil, err
	}

	status := &subscription.ActiveStatus{
		ContributorID:      c.ID,
		SubscriptionStatus: c.SubscriptionStatus,
		SubscriptionTier:   c.SubscriptionTier,
		Status:             c.Status,
		UsageLimits:        c.UsageLimits,
	}

	active, err := s.findActive(ctx, contributorID)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return status, nil
	}

	status.Subscription = active
	status.DaysRemaining = active.DaysRemaining(s.clock.Now())
	pkg, err := s.store.Plans.FindByID(ctx, active.PackageID)
	switch {
	case err == nil:
		status.Package = pkg
	case xerrors.Is(err, xerrors.ErrNotFound):
		s.logger.Warn("active subscription references missing package",
			zap.String("subscription_id", active.ID),
			zap.String("package_id", active.PackageID),
		)
	default:
		return nil, err
	}
	return status, nil
}

// ========== Admin Operations ==========

// SuspendSubscription suspends an ACTIVE subscription and puts the
// contributor on free limits.
func (s *SubscriptionService) SuspendSubscription(ctx context.Context, subscriptionID string) (*subscription.Subscription, error) {
	sub, err := s.store.Subscriptions.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if !subscription.CanTransition(sub.Status, subscription.StatusSuspended) {
		return nil, xerrors.Conflict("subscription %s is %s and cannot be suspended", sub.ID, sub.Status)
	}
	c, err := s.store.Contributors.FindByID(ctx, sub.ContributorID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	next := sub.Clone()
	next.Status = subscription.StatusSuspended
	next.AutoRenewal = false
	next.NextBillingDate = nil
	next.UpdatedAt = now

	err = s.atomically(ctx, "suspend subscription", func(ctx context.Context, uow *unitOfWork) error {
		if err := uow.updateSubscription(ctx, sub, next); err != nil {
			return err
		}
		return s.downgrade(ctx, uow, c, sub.ID, contributor.SubscriptionSuspended, contributor.StatusSuspended, now)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("subscription suspended by admin", zap.String("subscription_id", sub.ID))
	return next, nil
}

// ========== Helper Methods ==========

// findActive returns the contributor's ACTIVE subscription or nil.
func (s *SubscriptionService) findActive(ctx context.Context, contributorID string) (*subscription.Subscription, error) {
	sub, err := s.store.Subscriptions.FindActiveByContributor(ctx, contributorID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up active subscription: %w", err)
	}
	return sub, nil
}

// downgrade resets c to the free tier when subscriptionID backs it.
func (s *SubscriptionService) downgrade(
	ctx context.Context,
	uow *unitOfWork,
	c *contributor.Contributor,
	subscriptionID string,
	reason contributor.SubscriptionStatus,
	status contributor.Status,
	now time.Time,
) error {
	if c == nil || !c.HoldsSubscription(subscriptionID) {
		return nil
	}
	next := c.Clone()
	entitlement.Apply(next, entitlement.Downgraded(reason, status))
	next.UpdatedAt = now
	return uow.updateContributor(ctx, c, next)
}

func appendHistory(history []string, id string) []string {
	for _, h := range history {
		if h == id {
			return history
		}
	}
	return append(history, id)
}

func mergeMetadata(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func newID() string {
	return ulid.Make().String()
}

// generateTransactionReference generates unique transaction reference
func generateTransactionReference() string {
	return "TXN-" + ulid.Make().String()
}
