package subscription

import (
	"context"
	"errors"

	"entitlement-service/internal/domain/contributor"
	"entitlement-service/internal/domain/subscription"
	xerrors "entitlement-service/internal/pkg/errors"
	"entitlement-service/internal/repository"

	"go.uber.org/zap"
)

// unitOfWork records a compensating action for every write it performs so a
// failed operation can be undone on backends without transactions.
type unitOfWork struct {
	repos *repository.Store
	undo  []undoStep
}

type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

func (u *unitOfWork) push(name string, fn func(ctx context.Context) error) {
	u.undo = append(u.undo, undoStep{name: name, fn: fn})
}

func (u *unitOfWork) createSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if err := u.repos.Subscriptions.Create(ctx, sub); err != nil {
		return err
	}
	id := sub.ID
	u.push("delete subscription "+id, func(ctx context.Context) error {
		return u.repos.Subscriptions.Delete(ctx, id)
	})
	return nil
}

// updateSubscription writes next if the stored status still equals prev's.
func (u *unitOfWork) updateSubscription(ctx context.Context, prev, next *subscription.Subscription) error {
	if err := u.repos.Subscriptions.Update(ctx, next, prev.Status); err != nil {
		return err
	}
	restore, written := prev.Clone(), next.Status
	u.push("restore subscription "+prev.ID, func(ctx context.Context) error {
		return u.repos.Subscriptions.Update(ctx, restore, written)
	})
	return nil
}

func (u *unitOfWork) updateContributor(ctx context.Context, prev, next *contributor.Contributor) error {
	if err := u.repos.Contributors.Update(ctx, next); err != nil {
		return err
	}
	restore := prev.Clone()
	u.push("restore contributor "+prev.ID, func(ctx context.Context) error {
		return u.repos.Contributors.Update(ctx, restore)
	})
	return nil
}

// rollback runs the recorded compensations newest first. Every step is
// attempted; the joined failures are returned.
func (u *unitOfWork) rollback(ctx context.Context, logger *zap.Logger) error {
	var errs []error
	for i := len(u.undo) - 1; i >= 0; i-- {
		step := u.undo[i]
		if err := step.fn(ctx); err != nil {
			logger.Error("compensation step failed", zap.String("step", step.name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	u.undo = nil
	return errors.Join(errs...)
}

// atomically runs fn as one unit. On a transactional backend the store rolls
// back; otherwise the unit of work compensates. Domain errors reach the
// caller unchanged unless compensation itself failed.
func (s *SubscriptionService) atomically(ctx context.Context, op string, fn func(ctx context.Context, uow *unitOfWork) error) error {
	uow := &unitOfWork{repos: s.store}

	if s.store.Tx.SupportsTransactions() {
		err := s.store.Tx.WithinTransaction(ctx, func(ctx context.Context) error {
			return fn(ctx, uow)
		})
		if err == nil || xerrors.IsDomain(err) {
			return err
		}
		s.logger.Error("transaction rolled back", zap.String("operation", op), zap.Error(err))
		return xerrors.TransactionFailure(op+" failed", err)
	}

	err := fn(ctx, uow)
	if err == nil {
		return nil
	}
	if cerr := uow.rollback(context.WithoutCancel(ctx), s.logger); cerr != nil {
		s.logger.Error("partial write left in place",
			zap.String("operation", op),
			zap.Error(err),
			zap.NamedError("compensation_error", cerr),
		)
		return xerrors.TransactionFailure(op+" partially applied; re-fetch state before retrying", err)
	}
	if xerrors.IsDomain(err) {
		return err
	}
	s.logger.Warn("write compensated", zap.String("operation", op), zap.Error(err))
	return xerrors.TransactionFailure(op+" failed", err)
}
