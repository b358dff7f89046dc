// internal/repository/mongodb/contributor_repo.go
package mongodb

import (
	"context"
	"fmt"

	"entitlement-service/internal/domain/contributor"
	xerrors "entitlement-service/internal/pkg/errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

type ContributorRepository struct {
	coll *mongo.Collection
}

func NewContributorRepository(db *DB) *ContributorRepository {
	return &ContributorRepository{coll: db.collection(contributorsCollection)}
}

func (r *ContributorRepository) Create(ctx context.Context, c *contributor.Contributor) error {
	doc := c.Clone()
	if doc.SubscriptionHistory == nil {
		doc.SubscriptionHistory = []string{}
	}
	_, err := r.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return xerrors.Conflict("contributor %s already exists", c.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create contributor: %w", err)
	}
	return nil
}

func (r *ContributorRepository) FindByID(ctx context.Context, id string) (*contributor.Contributor, error) {
	var c contributor.Contributor
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&c); err != nil {
		return nil, notFound(err, "contributor", id)
	}
	return &c, nil
}

// Update sets the entitlement mirror, history and billing info.
func (r *ContributorRepository) Update(ctx context.Context, c *contributor.Contributor) error {
	history := c.SubscriptionHistory
	if history == nil {
		history = []string{}
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "current_subscription", Value: c.CurrentSubscription},
		{Key: "subscription_history", Value: history},
		{Key: "subscription_status", Value: c.SubscriptionStatus},
		{Key: "subscription_tier", Value: c.SubscriptionTier},
		{Key: "status", Value: c.Status},
		{Key: "usage_limits", Value: c.UsageLimits},
		{Key: "billing_info", Value: c.BillingInfo},
		{Key: "updated_at", Value: c.UpdatedAt},
	}}}

	result, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: c.ID}}, update)
	if err != nil {
		return fmt.Errorf("failed to update contributor: %w", err)
	}
	if result.MatchedCount == 0 {
		return xerrors.NotFound("contributor %s not found", c.ID)
	}
	return nil
}
