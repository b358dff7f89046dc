// internal/repository/postgres/plan_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"entitlement-service/internal/domain/plan"
	xerrors "entitlement-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

type PlanRepository struct {
	db *DB
}

func NewPlanRepository(db *DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `
	id, name, description, price, currency, discount,
	duration, duration_unit, tier, ceilings,
	is_free, is_popular, is_active, max_free_trial_duration,
	created_at, updated_at`

// Create inserts a package. A taken name is a Conflict.
func (r *PlanRepository) Create(ctx context.Context, p *plan.Package) error {
	query := `
		INSERT INTO packages (` + planColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	ceilingsJSON, err := json.Marshal(p.Ceilings)
	if err != nil {
		return fmt.Errorf("failed to marshal ceilings: %w", err)
	}
	var discountJSON []byte
	if p.Discount != nil {
		discountJSON, err = json.Marshal(p.Discount)
		if err != nil {
			return fmt.Errorf("failed to marshal discount: %w", err)
		}
	}

	_, err = r.db.conn(ctx).Exec(
		ctx, query,
		p.ID, p.Name, p.Description, p.Price, p.Currency, discountJSON,
		p.Duration, p.DurationUnit, p.Tier, ceilingsJSON,
		p.IsFree, p.IsPopular, p.IsActive, p.MaxFreeTrialDuration,
		p.CreatedAt, p.UpdatedAt,
	)
	if isUniqueViolation(err, "") {
		return xerrors.Conflict("package %q already exists", p.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create package: %w", err)
	}
	return nil
}

// FindByID retrieves a package by ID
func (r *PlanRepository) FindByID(ctx context.Context, id string) (*plan.Package, error) {
	query := `SELECT ` + planColumns + ` FROM packages WHERE id = $1`

	p, err := scanPackage(r.db.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "package", id)
	}
	return p, nil
}

// List returns packages ordered by price, then name.
func (r *PlanRepository) List(ctx context.Context, filters plan.PackageListFilters) ([]plan.Package, error) {
	query := `SELECT ` + planColumns + ` FROM packages`
	if filters.ActiveOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY price ASC, name ASC`

	rows, err := r.db.conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	defer rows.Close()

	packages := []plan.Package{}
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		packages = append(packages, *p)
	}
	return packages, rows.Err()
}

func scanPackage(row pgx.Row) (*plan.Package, error) {
	var p plan.Package
	var discountJSON, ceilingsJSON []byte

	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Currency, &discountJSON,
		&p.Duration, &p.DurationUnit, &p.Tier, &ceilingsJSON,
		&p.IsFree, &p.IsPopular, &p.IsActive, &p.MaxFreeTrialDuration,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(ceilingsJSON) > 0 {
		if err := json.Unmarshal(ceilingsJSON, &p.Ceilings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ceilings: %w", err)
		}
	}
	if len(discountJSON) > 0 {
		p.Discount = &plan.Discount{}
		if err := json.Unmarshal(discountJSON, p.Discount); err != nil {
			return nil, fmt.Errorf("failed to unmarshal discount: %w", err)
		}
	}
	return &p, nil
}
