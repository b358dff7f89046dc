// internal/repository/mongodb/subscription_repo.go
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"entitlement-service/internal/domain/subscription"
	xerrors "entitlement-service/internal/pkg/errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type SubscriptionRepository struct {
	coll *mongo.Collection
}

func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{coll: db.collection(subscriptionsCollection)}
}

// duplicateActive reports whether err is a violation of the one-active index.
func duplicateActive(err error) bool {
	return mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), oneActiveIndex)
}

// duplicateExternal reports whether err is a violation of the gateway
// transaction index.
func duplicateExternal(err error) bool {
	return mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), "index: "+externalTransactionIndex+" ")
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	_, err := r.coll.InsertOne(ctx, sub)
	if duplicateActive(err) {
		return xerrors.Conflict("contributor %s already has an active subscription", sub.ContributorID)
	}
	if duplicateExternal(err) {
		return xerrors.Conflict("transaction %s already confirmed another subscription", *sub.ExternalTransactionID)
	}
	if mongo.IsDuplicateKeyError(err) {
		return xerrors.Conflict("subscription %s already exists", sub.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) FindByID(ctx context.Context, id string) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&sub); err != nil {
		return nil, notFound(err, "subscription", id)
	}
	return &sub, nil
}

func (r *SubscriptionRepository) FindActiveByContributor(ctx context.Context, contributorID string) (*subscription.Subscription, error) {
	filter := bson.D{
		{Key: "contributor_id", Value: contributorID},
		{Key: "status", Value: subscription.StatusActive},
	}
	var sub subscription.Subscription
	if err := r.coll.FindOne(ctx, filter).Decode(&sub); err != nil {
		return nil, notFound(err, "active subscription for contributor", contributorID)
	}
	return &sub, nil
}

// Update replaces the document when its stored status still equals expected.
func (r *SubscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription, expected subscription.SubscriptionStatus) error {
	filter := bson.D{
		{Key: "_id", Value: sub.ID},
		{Key: "status", Value: expected},
	}
	result, err := r.coll.ReplaceOne(ctx, filter, sub)
	if duplicateActive(err) {
		return xerrors.Conflict("contributor %s already has an active subscription", sub.ContributorID)
	}
	if duplicateExternal(err) {
		return xerrors.Conflict("transaction %s already confirmed another subscription", *sub.ExternalTransactionID)
	}
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	current, err := r.FindByID(ctx, sub.ID)
	if err != nil {
		return err
	}
	return xerrors.Conflict("subscription %s is %s, expected %s", sub.ID, current.Status, expected)
}

func (r *SubscriptionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if result.DeletedCount == 0 {
		return xerrors.NotFound("subscription %s not found", id)
	}
	return nil
}

func (r *SubscriptionRepository) FindExpired(ctx context.Context, now time.Time) ([]subscription.Subscription, error) {
	filter := bson.D{
		{Key: "status", Value: subscription.StatusActive},
		{Key: "end_date", Value: bson.D{{Key: "$lte", Value: now}}},
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "end_date", Value: 1}}))
}

func (r *SubscriptionRepository) FindExpiring(ctx context.Context, w subscription.ExpiryWindow) ([]subscription.Subscription, error) {
	filter := bson.D{
		{Key: "status", Value: subscription.StatusActive},
		{Key: "end_date", Value: bson.D{{Key: "$gt", Value: w.From}, {Key: "$lte", Value: w.To}}},
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "end_date", Value: 1}}))
}

func (r *SubscriptionRepository) List(ctx context.Context, contributorID string, filters subscription.SubscriptionListFilters) ([]subscription.Subscription, int64, error) {
	filters.Normalize()

	filter := bson.D{{Key: "contributor_id", Value: contributorID}}
	if filters.Status != nil {
		filter = append(filter, bson.E{Key: "status", Value: *filters.Status})
	} else if !filters.IncludeExpired {
		filter = append(filter, bson.E{Key: "status", Value: bson.D{{Key: "$ne", Value: subscription.StatusExpired}}})
	}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(filters.Offset())).
		SetLimit(int64(filters.Limit))
	subs, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

func countIf(field string, value any) bson.D {
	return bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{"$" + field, value}}}, 1, 0,
	}}}}}
}

func (r *SubscriptionRepository) GetStats(ctx context.Context, contributorID string) (*subscription.SubscriptionStats, error) {
	paid := bson.D{{Key: "$eq", Value: bson.A{"$payment_status", subscription.PaymentPaid}}}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "contributor_id", Value: contributorID}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "active", Value: countIf("status", subscription.StatusActive)},
			{Key: "pending", Value: countIf("status", subscription.StatusPending)},
			{Key: "expired", Value: countIf("status", subscription.StatusExpired)},
			{Key: "cancelled", Value: countIf("status", subscription.StatusCancelled)},
			{Key: "suspended", Value: countIf("status", subscription.StatusSuspended)},
			{Key: "paid", Value: countIf("payment_status", subscription.PaymentPaid)},
			{Key: "spent", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{paid, "$amount", 0}}}}}},
		}}},
	}

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate subscription stats: %w", err)
	}
	var rows []struct {
		Total     int64   `bson:"total"`
		Active    int64   `bson:"active"`
		Pending   int64   `bson:"pending"`
		Expired   int64   `bson:"expired"`
		Cancelled int64   `bson:"cancelled"`
		Suspended int64   `bson:"suspended"`
		Paid      int64   `bson:"paid"`
		Spent     float64 `bson:"spent"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode subscription stats: %w", err)
	}

	stats := &subscription.SubscriptionStats{}
	if len(rows) == 0 {
		return stats, nil
	}
	row := rows[0]
	stats.TotalSubscriptions = row.Total
	stats.ActiveSubscriptions = row.Active
	stats.PendingSubscriptions = row.Pending
	stats.ExpiredSubscriptions = row.Expired
	stats.CancelledSubscriptions = row.Cancelled
	stats.SuspendedSubscriptions = row.Suspended
	stats.TotalSpent = row.Spent
	if row.Paid > 0 {
		stats.AverageSubscriptionValue = row.Spent / float64(row.Paid)
	}
	return stats, nil
}

func (r *SubscriptionRepository) HasFreeTrial(ctx context.Context, contributorID string) (bool, error) {
	filter := bson.D{
		{Key: "contributor_id", Value: contributorID},
		{Key: "is_free_trial", Value: true},
	}
	err := r.coll.FindOne(ctx, filter).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check free trial: %w", err)
	}
	return true, nil
}

func (r *SubscriptionRepository) find(ctx context.Context, filter bson.D, opts *options.FindOptionsBuilder) ([]subscription.Subscription, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	subs := []subscription.Subscription{}
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, fmt.Errorf("failed to decode subscriptions: %w", err)
	}
	return subs, nil
}
