// internal/repository/postgres/subscription_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"entitlement-service/internal/domain/subscription"
	xerrors "entitlement-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

const (
	oneActiveIndex           = "subscriptions_one_active_per_contributor"
	externalTransactionIndex = "subscriptions_external_transaction_id_key"
)

type SubscriptionRepository struct {
	db *DB
}

func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `
	id, contributor_id, package_id, start_date, end_date,
	status, payment_status, payment_method, transaction_id, external_transaction_id,
	amount, currency, auto_renewal, renewal_attempts, last_renewal_date, next_billing_date,
	canceled_at, cancelation_reason, is_free_trial, usage_stats, last_notified_threshold,
	metadata, created_at, updated_at`

// Create inserts a subscription. A second ACTIVE row for the contributor
// violates the partial unique index and surfaces as a Conflict.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	usageJSON, metadataJSON, err := marshalSubscription(sub)
	if err != nil {
		return err
	}

	_, err = r.db.conn(ctx).Exec(
		ctx, query,
		sub.ID, sub.ContributorID, sub.PackageID, sub.StartDate, sub.EndDate,
		sub.Status, sub.PaymentStatus, sub.PaymentMethod, sub.TransactionID, sub.ExternalTransactionID,
		sub.Amount, sub.Currency, sub.AutoRenewal, sub.RenewalAttempts, sub.LastRenewalDate, sub.NextBillingDate,
		sub.CanceledAt, sub.CancelationReason, sub.IsFreeTrial, usageJSON, thresholdValue(sub.LastNotifiedThreshold),
		metadataJSON, sub.CreatedAt, sub.UpdatedAt,
	)
	if isUniqueViolation(err, oneActiveIndex) {
		return xerrors.Conflict("contributor %s already has an active subscription", sub.ContributorID)
	}
	if isUniqueViolation(err, externalTransactionIndex) {
		return xerrors.Conflict("transaction %s already confirmed another subscription", *sub.ExternalTransactionID)
	}
	if isUniqueViolation(err, "") {
		return xerrors.Conflict("subscription %s already exists", sub.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// FindByID retrieves a subscription by ID
func (r *SubscriptionRepository) FindByID(ctx context.Context, id string) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	sub, err := scanSubscription(r.db.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "subscription", id)
	}
	return sub, nil
}

// FindActiveByContributor retrieves the contributor's ACTIVE subscription
func (r *SubscriptionRepository) FindActiveByContributor(ctx context.Context, contributorID string) (*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE contributor_id = $1 AND status = 'ACTIVE'`

	sub, err := scanSubscription(r.db.conn(ctx).QueryRow(ctx, query, contributorID))
	if err != nil {
		return nil, notFound(err, "active subscription for contributor", contributorID)
	}
	return sub, nil
}

// Update rewrites every mutable column when the stored status still equals
// expected.
func (r *SubscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription, expected subscription.SubscriptionStatus) error {
	query := `
		UPDATE subscriptions
		SET start_date = $1, end_date = $2, status = $3, payment_status = $4,
		    payment_method = $5, external_transaction_id = $6, amount = $7,
		    auto_renewal = $8, renewal_attempts = $9, last_renewal_date = $10,
		    next_billing_date = $11, canceled_at = $12, cancelation_reason = $13,
		    usage_stats = $14, last_notified_threshold = $15, metadata = $16,
		    updated_at = $17
		WHERE id = $18 AND status = $19
	`

	usageJSON, metadataJSON, err := marshalSubscription(sub)
	if err != nil {
		return err
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}

	conn := r.db.conn(ctx)
	result, err := conn.Exec(
		ctx, query,
		sub.StartDate, sub.EndDate, sub.Status, sub.PaymentStatus,
		sub.PaymentMethod, sub.ExternalTransactionID, sub.Amount,
		sub.AutoRenewal, sub.RenewalAttempts, sub.LastRenewalDate,
		sub.NextBillingDate, sub.CanceledAt, sub.CancelationReason,
		usageJSON, thresholdValue(sub.LastNotifiedThreshold), metadataJSON,
		sub.UpdatedAt, sub.ID, expected,
	)
	if isUniqueViolation(err, oneActiveIndex) {
		return xerrors.Conflict("contributor %s already has an active subscription", sub.ContributorID)
	}
	if isUniqueViolation(err, externalTransactionIndex) {
		return xerrors.Conflict("transaction %s already confirmed another subscription", *sub.ExternalTransactionID)
	}
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var current subscription.SubscriptionStatus
	err = conn.QueryRow(ctx, `SELECT status FROM subscriptions WHERE id = $1`, sub.ID).Scan(&current)
	if err != nil {
		return notFound(err, "subscription", sub.ID)
	}
	return xerrors.Conflict("subscription %s is %s, expected %s", sub.ID, current, expected)
}

func (r *SubscriptionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.conn(ctx).Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.NotFound("subscription %s not found", id)
	}
	return nil
}

// FindExpired returns ACTIVE subscriptions whose end date has passed.
func (r *SubscriptionRepository) FindExpired(ctx context.Context, now time.Time) ([]subscription.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'ACTIVE' AND end_date <= $1
		ORDER BY end_date ASC
	`
	return r.query(ctx, query, now)
}

// FindExpiring returns ACTIVE subscriptions ending inside the window.
func (r *SubscriptionRepository) FindExpiring(ctx context.Context, w subscription.ExpiryWindow) ([]subscription.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'ACTIVE' AND end_date > $1 AND end_date <= $2
		ORDER BY end_date ASC
	`
	return r.query(ctx, query, w.From, w.To)
}

// List returns one page of the contributor's subscriptions, newest first,
// plus the total matching count.
func (r *SubscriptionRepository) List(ctx context.Context, contributorID string, filters subscription.SubscriptionListFilters) ([]subscription.Subscription, int64, error) {
	filters.Normalize()

	conditions := []string{"contributor_id = $1"}
	args := []any{contributorID}
	argPos := 2

	if filters.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *filters.Status)
		argPos++
	} else if !filters.IncludeExpired {
		conditions = append(conditions, fmt.Sprintf("status <> $%d", argPos))
		args = append(args, subscription.StatusExpired)
		argPos++
	}

	whereClause := "WHERE " + strings.Join(conditions, " AND ")
	conn := r.db.conn(ctx)

	var total int64
	countQuery := `SELECT COUNT(*) FROM subscriptions ` + whereClause
	if err := conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM subscriptions
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, subscriptionColumns, whereClause, argPos, argPos+1)
	args = append(args, filters.Limit, filters.Offset())

	subs, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

// GetStats aggregates the contributor's subscriptions by status. Spend and
// average cover PAID records only.
func (r *SubscriptionRepository) GetStats(ctx context.Context, contributorID string) (*subscription.SubscriptionStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'ACTIVE'),
			COUNT(*) FILTER (WHERE status = 'PENDING'),
			COUNT(*) FILTER (WHERE status = 'EXPIRED'),
			COUNT(*) FILTER (WHERE status = 'CANCELLED'),
			COUNT(*) FILTER (WHERE status = 'SUSPENDED'),
			COALESCE(SUM(amount) FILTER (WHERE payment_status = 'PAID'), 0)::float8,
			COALESCE(AVG(amount) FILTER (WHERE payment_status = 'PAID'), 0)::float8
		FROM subscriptions
		WHERE contributor_id = $1
	`

	var stats subscription.SubscriptionStats
	err := r.db.conn(ctx).QueryRow(ctx, query, contributorID).Scan(
		&stats.TotalSubscriptions,
		&stats.ActiveSubscriptions,
		&stats.PendingSubscriptions,
		&stats.ExpiredSubscriptions,
		&stats.CancelledSubscriptions,
		&stats.SuspendedSubscriptions,
		&stats.TotalSpent,
		&stats.AverageSubscriptionValue,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription stats: %w", err)
	}
	return &stats, nil
}

func (r *SubscriptionRepository) HasFreeTrial(ctx context.Context, contributorID string) (bool, error) {
	var exists bool
	err := r.db.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE contributor_id = $1 AND is_free_trial)`,
		contributorID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check free trial: %w", err)
	}
	return exists, nil
}

func (r *SubscriptionRepository) query(ctx context.Context, query string, args ...any) ([]subscription.Subscription, error) {
	rows, err := r.db.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []subscription.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}
	return subs, nil
}

func thresholdValue(t *subscription.Threshold) *string {
	if t == nil {
		return nil
	}
	v := string(*t)
	return &v
}

func marshalSubscription(sub *subscription.Subscription) (usage, metadata []byte, err error) {
	usage, err = json.Marshal(sub.UsageStats)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal usage stats: %w", err)
	}
	if sub.Metadata != nil {
		metadata, err = json.Marshal(sub.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	return usage, metadata, nil
}

func scanSubscription(row pgx.Row) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	var usageJSON, metadataJSON []byte
	var threshold *string

	err := row.Scan(
		&sub.ID, &sub.ContributorID, &sub.PackageID, &sub.StartDate, &sub.EndDate,
		&sub.Status, &sub.PaymentStatus, &sub.PaymentMethod, &sub.TransactionID, &sub.ExternalTransactionID,
		&sub.Amount, &sub.Currency, &sub.AutoRenewal, &sub.RenewalAttempts, &sub.LastRenewalDate, &sub.NextBillingDate,
		&sub.CanceledAt, &sub.CancelationReason, &sub.IsFreeTrial, &usageJSON, &threshold,
		&metadataJSON, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if threshold != nil {
		t := subscription.Threshold(*threshold)
		sub.LastNotifiedThreshold = &t
	}
	if len(usageJSON) > 0 {
		if err := json.Unmarshal(usageJSON, &sub.UsageStats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal usage stats: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &sub.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &sub, nil
}
