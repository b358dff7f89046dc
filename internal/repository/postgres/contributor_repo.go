// internal/repository/postgres/contributor_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"entitlement-service/internal/domain/contributor"
	xerrors "entitlement-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

type ContributorRepository struct {
	db *DB
}

func NewContributorRepository(db *DB) *ContributorRepository {
	return &ContributorRepository{db: db}
}

const contributorColumns = `
	id, name, email, current_subscription, subscription_history,
	subscription_status, subscription_tier, status, usage_limits, billing_info,
	created_at, updated_at`

func (r *ContributorRepository) Create(ctx context.Context, c *contributor.Contributor) error {
	query := `
		INSERT INTO contributors (` + contributorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	limitsJSON, billingJSON, err := marshalContributor(c)
	if err != nil {
		return err
	}

	_, err = r.db.conn(ctx).Exec(
		ctx, query,
		c.ID, c.Name, c.Email, c.CurrentSubscription, pq.Array(historyOf(c)),
		c.SubscriptionStatus, c.SubscriptionTier, c.Status, limitsJSON, billingJSON,
		c.CreatedAt, c.UpdatedAt,
	)
	if isUniqueViolation(err, "") {
		return xerrors.Conflict("contributor %s already exists", c.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create contributor: %w", err)
	}
	return nil
}

// FindByID retrieves a contributor by ID
func (r *ContributorRepository) FindByID(ctx context.Context, id string) (*contributor.Contributor, error) {
	query := `SELECT ` + contributorColumns + ` FROM contributors WHERE id = $1`

	c, err := scanContributor(r.db.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "contributor", id)
	}
	return c, nil
}

// Update writes the entitlement mirror, history and billing info.
func (r *ContributorRepository) Update(ctx context.Context, c *contributor.Contributor) error {
	query := `
		UPDATE contributors
		SET current_subscription = $1, subscription_history = $2,
		    subscription_status = $3, subscription_tier = $4, status = $5,
		    usage_limits = $6, billing_info = $7, updated_at = $8
		WHERE id = $9
	`

	limitsJSON, billingJSON, err := marshalContributor(c)
	if err != nil {
		return err
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}

	result, err := r.db.conn(ctx).Exec(
		ctx, query,
		c.CurrentSubscription, pq.Array(historyOf(c)),
		c.SubscriptionStatus, c.SubscriptionTier, c.Status,
		limitsJSON, billingJSON, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update contributor: %w", err)
	}
	if result.RowsAffected() == 0 {
		return xerrors.NotFound("contributor %s not found", c.ID)
	}
	return nil
}

func historyOf(c *contributor.Contributor) []string {
	if c.SubscriptionHistory == nil {
		return []string{}
	}
	return c.SubscriptionHistory
}

func marshalContributor(c *contributor.Contributor) (limits, billing []byte, err error) {
	limits, err = json.Marshal(c.UsageLimits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal usage limits: %w", err)
	}
	if c.BillingInfo != nil {
		billing, err = json.Marshal(c.BillingInfo)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal billing info: %w", err)
		}
	}
	return limits, billing, nil
}

func scanContributor(row pgx.Row) (*contributor.Contributor, error) {
	var c contributor.Contributor
	var history pq.StringArray
	var limitsJSON, billingJSON []byte

	err := row.Scan(
		&c.ID, &c.Name, &c.Email, &c.CurrentSubscription, &history,
		&c.SubscriptionStatus, &c.SubscriptionTier, &c.Status, &limitsJSON, &billingJSON,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.SubscriptionHistory = []string(history)
	if len(limitsJSON) > 0 {
		if err := json.Unmarshal(limitsJSON, &c.UsageLimits); err != nil {
			return nil, fmt.Errorf("failed to unmarshal usage limits: %w", err)
		}
	}
	if len(billingJSON) > 0 {
		c.BillingInfo = &contributor.BillingInfo{}
		if err := json.Unmarshal(billingJSON, c.BillingInfo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal billing info: %w", err)
		}
	}
	return &c, nil
}
