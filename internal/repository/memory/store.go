// Package memory is an in-process store used by tests and single-node demos.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"entitlement-service/internal/domain/contributor"
	"entitlement-service/internal/domain/plan"
	"entitlement-service/internal/domain/subscription"
	xerrors "entitlement-service/internal/pkg/errors"
	"entitlement-service/internal/repository"
)

type Store struct {
	mu            sync.Mutex
	txMu          sync.Mutex
	transactional bool

	plans         map[string]plan.Package
	contributors  map[string]contributor.Contributor
	subscriptions map[string]subscription.Subscription
}

// NewStore returns an empty store. A transactional store rolls back every
// write of a failed WithinTransaction; a non-transactional one behaves like a
// standalone document database and leaves recovery to the caller.
func NewStore(transactional bool) *Store {
	return &Store{
		transactional: transactional,
		plans:         make(map[string]plan.Package),
		contributors:  make(map[string]contributor.Contributor),
		subscriptions: make(map[string]subscription.Subscription),
	}
}

// Repositories exposes the store through the shared contracts.
func (s *Store) Repositories() *repository.Store {
	return &repository.Store{
		Plans:         planRepo{s},
		Contributors:  contributorRepo{s},
		Subscriptions: subscriptionRepo{s},
		Tx:            s,
		Close:         func(context.Context) error { return nil },
	}
}

func (s *Store) SupportsTransactions() bool { return s.transactional }

type txKey struct{}

// WithinTransaction serializes fn against every other write. On failure only
// the records fn touched are put back.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactional {
		return fn(ctx)
	}
	if _, nested := ctx.Value(txKey{}).(*undoLog); nested {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	log := newUndoLog()
	if err := fn(context.WithValue(ctx, txKey{}, log)); err != nil {
		s.rollback(log)
		return err
	}
	return nil
}

// write runs a mutation under mu. Outside a transaction it first waits for
// the running one, if any, to finish.
func (s *Store) write(ctx context.Context, fn func(log *undoLog) error) error {
	log, inTx := ctx.Value(txKey{}).(*undoLog)
	if !inTx {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(log)
}

// undoLog keeps the first pre-image of every record written in a
// transaction. A nil pre-image means the record did not exist.
type undoLog struct {
	plans         map[string]*plan.Package
	contributors  map[string]*contributor.Contributor
	subscriptions map[string]*subscription.Subscription
}

func newUndoLog() *undoLog {
	return &undoLog{
		plans:         make(map[string]*plan.Package),
		contributors:  make(map[string]*contributor.Contributor),
		subscriptions: make(map[string]*subscription.Subscription),
	}
}

// The record* methods are no-ops outside a transaction. Callers hold mu.

func (l *undoLog) recordPlan(s *Store, id string) {
	if l == nil {
		return
	}
	if _, seen := l.plans[id]; seen {
		return
	}
	var prior *plan.Package
	if p, ok := s.plans[id]; ok {
		prior = &p
	}
	l.plans[id] = prior
}

func (l *undoLog) recordContributor(s *Store, id string) {
	if l == nil {
		return
	}
	if _, seen := l.contributors[id]; seen {
		return
	}
	var prior *contributor.Contributor
	if c, ok := s.contributors[id]; ok {
		prior = c.Clone()
	}
	l.contributors[id] = prior
}

func (l *undoLog) recordSubscription(s *Store, id string) {
	if l == nil {
		return
	}
	if _, seen := l.subscriptions[id]; seen {
		return
	}
	var prior *subscription.Subscription
	if sub, ok := s.subscriptions[id]; ok {
		prior = sub.Clone()
	}
	l.subscriptions[id] = prior
}

func (s *Store) rollback(log *undoLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range log.plans {
		if p == nil {
			delete(s.plans, id)
		} else {
			s.plans[id] = *p
		}
	}
	for id, c := range log.contributors {
		if c == nil {
			delete(s.contributors, id)
		} else {
			s.contributors[id] = *c
		}
	}
	for id, sub := range log.subscriptions {
		if sub == nil {
			delete(s.subscriptions, id)
		} else {
			s.subscriptions[id] = *sub
		}
	}
}

type planRepo struct{ s *Store }

func (r planRepo) Create(ctx context.Context, p *plan.Package) error {
	return r.s.write(ctx, func(log *undoLog) error {
		for _, existing := range r.s.plans {
			if existing.Name == p.Name {
				return xerrors.Conflict("package %q already exists", p.Name)
			}
		}
		if _, ok := r.s.plans[p.ID]; ok {
			return xerrors.Conflict("package %s already exists", p.ID)
		}
		log.recordPlan(r.s, p.ID)
		r.s.plans[p.ID] = *p
		return nil
	})
}

func (r planRepo) FindByID(_ context.Context, id string) (*plan.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.plans[id]
	if !ok {
		return nil, xerrors.NotFound("package %s not found", id)
	}
	return &p, nil
}

func (r planRepo) List(_ context.Context, filters plan.PackageListFilters) ([]plan.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]plan.Package, 0, len(r.s.plans))
	for _, p := range r.s.plans {
		if filters.ActiveOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

type contributorRepo struct{ s *Store }

func (r contributorRepo) Create(ctx context.Context, c *contributor.Contributor) error {
	return r.s.write(ctx, func(log *undoLog) error {
		if _, ok := r.s.contributors[c.ID]; ok {
			return xerrors.Conflict("contributor %s already exists", c.ID)
		}
		log.recordContributor(r.s, c.ID)
		r.s.contributors[c.ID] = *c.Clone()
		return nil
	})
}

func (r contributorRepo) FindByID(_ context.Context, id string) (*contributor.Contributor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.contributors[id]
	if !ok {
		return nil, xerrors.NotFound("contributor %s not found", id)
	}
	return c.Clone(), nil
}

func (r contributorRepo) Update(ctx context.Context, c *contributor.Contributor) error {
	return r.s.write(ctx, func(log *undoLog) error {
		if _, ok := r.s.contributors[c.ID]; !ok {
			return xerrors.NotFound("contributor %s not found", c.ID)
		}
		log.recordContributor(r.s, c.ID)
		r.s.contributors[c.ID] = *c.Clone()
		return nil
	})
}

type subscriptionRepo struct{ s *Store }

// activeHolder returns the id of the contributor's ACTIVE subscription other
// than exclude. Callers hold mu.
func (r subscriptionRepo) activeHolder(contributorID, exclude string) (string, bool) {
	for id, sub := range r.s.subscriptions {
		if id != exclude && sub.ContributorID == contributorID && sub.Status == subscription.StatusActive {
			return id, true
		}
	}
	return "", false
}

// checkUnique enforces one ACTIVE subscription per contributor and one
// subscription per gateway transaction id. Callers hold mu.
func (r subscriptionRepo) checkUnique(sub *subscription.Subscription) error {
	if sub.Status == subscription.StatusActive {
		if id, ok := r.activeHolder(sub.ContributorID, sub.ID); ok {
			return xerrors.Conflict("contributor %s already has active subscription %s", sub.ContributorID, id)
		}
	}
	if sub.ExternalTransactionID != nil {
		for id, other := range r.s.subscriptions {
			if id != sub.ID && other.ExternalTransactionID != nil && *other.ExternalTransactionID == *sub.ExternalTransactionID {
				return xerrors.Conflict("transaction %s already confirmed subscription %s", *sub.ExternalTransactionID, id)
			}
		}
	}
	return nil
}

func (r subscriptionRepo) Create(ctx context.Context, sub *subscription.Subscription) error {
	return r.s.write(ctx, func(log *undoLog) error {
		if _, ok := r.s.subscriptions[sub.ID]; ok {
			return xerrors.Conflict("subscription %s already exists", sub.ID)
		}
		if err := r.checkUnique(sub); err != nil {
			return err
		}
		log.recordSubscription(r.s, sub.ID)
		r.s.subscriptions[sub.ID] = *sub.Clone()
		return nil
	})
}

func (r subscriptionRepo) FindByID(_ context.Context, id string) (*subscription.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subscriptions[id]
	if !ok {
		return nil, xerrors.NotFound("subscription %s not found", id)
	}
	return sub.Clone(), nil
}

func (r subscriptionRepo) FindActiveByContributor(_ context.Context, contributorID string) (*subscription.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.activeHolder(contributorID, "")
	if !ok {
		return nil, xerrors.NotFound("no active subscription for contributor %s", contributorID)
	}
	sub := r.s.subscriptions[id]
	return sub.Clone(), nil
}

func (r subscriptionRepo) Update(ctx context.Context, sub *subscription.Subscription, expected subscription.SubscriptionStatus) error {
	return r.s.write(ctx, func(log *undoLog) error {
		stored, ok := r.s.subscriptions[sub.ID]
		if !ok {
			return xerrors.NotFound("subscription %s not found", sub.ID)
		}
		if stored.Status != expected {
			return xerrors.Conflict("subscription %s is %s, expected %s", sub.ID, stored.Status, expected)
		}
		if err := r.checkUnique(sub); err != nil {
			return err
		}
		log.recordSubscription(r.s, sub.ID)
		r.s.subscriptions[sub.ID] = *sub.Clone()
		return nil
	})
}

func (r subscriptionRepo) Delete(ctx context.Context, id string) error {
	return r.s.write(ctx, func(log *undoLog) error {
		if _, ok := r.s.subscriptions[id]; !ok {
			return xerrors.NotFound("subscription %s not found", id)
		}
		log.recordSubscription(r.s, id)
		delete(r.s.subscriptions, id)
		return nil
	})
}

func (r subscriptionRepo) collect(keep func(subscription.Subscription) bool) []subscription.Subscription {
	out := []subscription.Subscription{}
	for _, sub := range r.s.subscriptions {
		if keep(sub) {
			out = append(out, *sub.Clone())
		}
	}
	return out
}

func (r subscriptionRepo) FindExpired(_ context.Context, now time.Time) ([]subscription.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.collect(func(sub subscription.Subscription) bool {
		return sub.Status == subscription.StatusActive && !sub.EndDate.After(now)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return out, nil
}

func (r subscriptionRepo) FindExpiring(_ context.Context, w subscription.ExpiryWindow) ([]subscription.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.collect(func(sub subscription.Subscription) bool {
		return sub.Status == subscription.StatusActive && sub.EndDate.After(w.From) && !sub.EndDate.After(w.To)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return out, nil
}

func (r subscriptionRepo) List(_ context.Context, contributorID string, filters subscription.SubscriptionListFilters) ([]subscription.Subscription, int64, error) {
	filters.Normalize()
	r.s.mu.Lock()
	matched := r.collect(func(sub subscription.Subscription) bool {
		return sub.ContributorID == contributorID && filters.Matches(sub.Status)
	})
	r.s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	start := filters.Offset()
	if start >= len(matched) {
		return []subscription.Subscription{}, total, nil
	}
	end := start + filters.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r subscriptionRepo) GetStats(_ context.Context, contributorID string) (*subscription.SubscriptionStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var stats subscription.SubscriptionStats
	var paid int64
	for _, sub := range r.s.subscriptions {
		if sub.ContributorID != contributorID {
			continue
		}
		stats.TotalSubscriptions++
		switch sub.Status {
		case subscription.StatusActive:
			stats.ActiveSubscriptions++
		case subscription.StatusPending:
			stats.PendingSubscriptions++
		case subscription.StatusExpired:
			stats.ExpiredSubscriptions++
		case subscription.StatusCancelled:
			stats.CancelledSubscriptions++
		case subscription.StatusSuspended:
			stats.SuspendedSubscriptions++
		}
		if sub.PaymentStatus == subscription.PaymentPaid {
			stats.TotalSpent += sub.Amount
			paid++
		}
	}
	if paid > 0 {
		stats.AverageSubscriptionValue = stats.TotalSpent / float64(paid)
	}
	return &stats, nil
}

func (r subscriptionRepo) HasFreeTrial(_ context.Context, contributorID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sub := range r.s.subscriptions {
		if sub.ContributorID == contributorID && sub.IsFreeTrial {
			return true, nil
		}
	}
	return false, nil
}
