// Package repository declares the persistence contracts shared by the
// postgres, mongo and memory stores.
package repository

import (
	"context"
	"time"

	"entitlement-service/internal/domain/contributor"
	"entitlement-service/internal/domain/plan"
	"entitlement-service/internal/domain/subscription"
)

type PlanRepository interface {
	// Create fails with ErrConflict when the name is taken.
	Create(ctx context.Context, p *plan.Package) error
	FindByID(ctx context.Context, id string) (*plan.Package, error)
	List(ctx context.Context, filters plan.PackageListFilters) ([]plan.Package, error)
}

type ContributorRepository interface {
	Create(ctx context.Context, c *contributor.Contributor) error
	FindByID(ctx context.Context, id string) (*contributor.Contributor, error)
	// Update replaces the entitlement mirror, subscription history and
	// billing info of c.
	Update(ctx context.Context, c *contributor.Contributor) error
}

type SubscriptionRepository interface {
	// Create fails with ErrConflict when sub is ACTIVE and the contributor
	// already holds an ACTIVE subscription.
	Create(ctx context.Context, sub *subscription.Subscription) error
	FindByID(ctx context.Context, id string) (*subscription.Subscription, error)
	FindActiveByContributor(ctx context.Context, contributorID string) (*subscription.Subscription, error)
	// Update writes every mutable field of sub provided the stored status
	// still equals expected. A lost race yields ErrConflict.
	Update(ctx context.Context, sub *subscription.Subscription, expected subscription.SubscriptionStatus) error
	Delete(ctx context.Context, id string) error
	// FindExpired returns ACTIVE subscriptions with endDate <= now.
	FindExpired(ctx context.Context, now time.Time) ([]subscription.Subscription, error)
	// FindExpiring returns ACTIVE subscriptions with From < endDate <= To.
	FindExpiring(ctx context.Context, window subscription.ExpiryWindow) ([]subscription.Subscription, error)
	List(ctx context.Context, contributorID string, filters subscription.SubscriptionListFilters) ([]subscription.Subscription, int64, error)
	GetStats(ctx context.Context, contributorID string) (*subscription.SubscriptionStats, error)
	HasFreeTrial(ctx context.Context, contributorID string) (bool, error)
}

// TxManager runs fn atomically when the backend supports multi-entity
// transactions. Repositories called with the ctx handed to fn join the
// transaction.
type TxManager interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	SupportsTransactions() bool
}

// Store bundles one backend's repositories.
type Store struct {
	Plans         PlanRepository
	Contributors  ContributorRepository
	Subscriptions SubscriptionRepository
	Tx            TxManager
	Close         func(ctx context.Context) error
}
