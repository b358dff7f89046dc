// internal/repository/mongodb/store.go
package mongodb

import (
	"context"
	"errors"
	"fmt"

	xerrors "entitlement-service/internal/pkg/errors"
	"entitlement-service/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	packagesCollection      = "packages"
	contributorsCollection  = "contributors"
	subscriptionsCollection = "subscriptions"

	oneActiveIndex           = "one_active_per_contributor"
	externalTransactionIndex = "external_transaction_id"
)

// DB holds the database handle and whether the deployment accepts
// multi-document transactions.
type DB struct {
	client        *mongo.Client
	database      *mongo.Database
	transactional bool
}

func NewDB(client *mongo.Client, database string, transactional bool) *DB {
	return &DB{
		client:        client,
		database:      client.Database(database),
		transactional: transactional,
	}
}

// NewStore wires the MongoDB repositories. Close disconnects the client.
func NewStore(db *DB) *repository.Store {
	return &repository.Store{
		Plans:         NewPlanRepository(db),
		Contributors:  NewContributorRepository(db),
		Subscriptions: NewSubscriptionRepository(db),
		Tx:            db,
		Close:         db.client.Disconnect,
	}
}

func (db *DB) collection(name string) *mongo.Collection {
	return db.database.Collection(name)
}

func (db *DB) SupportsTransactions() bool { return db.transactional }

// WithinTransaction runs fn in a multi-document transaction on replica sets
// and sharded clusters. On a standalone server fn runs as is and the caller
// compensates. Nested calls join the outer session.
func (db *DB) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !db.transactional || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := db.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	if err := sess.StartTransaction(); err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	if err := fn(mongo.NewSessionContext(ctx, sess)); err != nil {
		if aerr := sess.AbortTransaction(context.WithoutCancel(ctx)); aerr != nil {
			return errors.Join(err, aerr)
		}
		return err
	}
	if err := sess.CommitTransaction(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// EnsureIndexes creates the unique indexes the repositories rely on,
// including the partial indexes that admit one ACTIVE subscription per
// contributor and one subscription per gateway transaction.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	if _, err := db.collection(packagesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("package_name"),
	}); err != nil {
		return fmt.Errorf("failed to create package indexes: %w", err)
	}

	_, err := db.collection(subscriptionsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "contributor_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName(oneActiveIndex).
				SetPartialFilterExpression(bson.D{{Key: "status", Value: "ACTIVE"}}),
		},
		{
			Keys:    bson.D{{Key: "transaction_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("transaction_id"),
		},
		{
			Keys: bson.D{{Key: "external_transaction_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName(externalTransactionIndex).
				SetPartialFilterExpression(bson.D{{Key: "external_transaction_id", Value: bson.D{{Key: "$exists", Value: true}}}}),
		},
		{
			Keys:    bson.D{{Key: "contributor_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("contributor_created"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "end_date", Value: 1}},
			Options: options.Index().SetName("status_end_date"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create subscription indexes: %w", err)
	}
	return nil
}

func notFound(err error, what, id string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return xerrors.NotFound("%s %s not found", what, id)
	}
	return fmt.Errorf("failed to find %s: %w", what, err)
}
