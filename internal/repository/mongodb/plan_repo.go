// internal/repository/mongodb/plan_repo.go
package mongodb

import (
	"context"
	"fmt"

	"entitlement-service/internal/domain/plan"
	xerrors "entitlement-service/internal/pkg/errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type PlanRepository struct {
	coll *mongo.Collection
}

func NewPlanRepository(db *DB) *PlanRepository {
	return &PlanRepository{coll: db.collection(packagesCollection)}
}

func (r *PlanRepository) Create(ctx context.Context, p *plan.Package) error {
	_, err := r.coll.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return xerrors.Conflict("package %q already exists", p.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create package: %w", err)
	}
	return nil
}

func (r *PlanRepository) FindByID(ctx context.Context, id string) (*plan.Package, error) {
	var p plan.Package
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&p); err != nil {
		return nil, notFound(err, "package", id)
	}
	return &p, nil
}

func (r *PlanRepository) List(ctx context.Context, filters plan.PackageListFilters) ([]plan.Package, error) {
	filter := bson.D{}
	if filters.ActiveOnly {
		filter = append(filter, bson.E{Key: "is_active", Value: true})
	}
	opts := options.Find().SetSort(bson.D{{Key: "price", Value: 1}, {Key: "name", Value: 1}})

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	packages := []plan.Package{}
	if err := cursor.All(ctx, &packages); err != nil {
		return nil, fmt.Errorf("failed to decode packages: %w", err)
	}
	return packages, nil
}
