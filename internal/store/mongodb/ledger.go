// Package mongodb provides a cost ledger backed by a MongoDB collection.
package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/davidbz/roomgen/internal/domain"
	"github.com/davidbz/roomgen/internal/metrics"
	"github.com/davidbz/roomgen/internal/observability"
)

const backend = "mongodb"

// Ledger stores one document per cost entry.
type Ledger struct {
	client *mongo.Client
	col    *mongo.Collection
}

// Connect dials MongoDB, verifies the connection and returns a ledger.
func Connect(ctx context.Context, cfg *Config) (*Ledger, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	ledger, err := NewLedger(connectCtx, client.Database(cfg.Database), cfg.Collection)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	ledger.client = client

	observability.FromContext(ctx).Info("connected to mongo",
		observability.String("database", cfg.Database),
		observability.String("collection", cfg.Collection),
	)

	return ledger, nil
}

// NewLedger returns a ledger over the named collection and ensures its indexes.
func NewLedger(ctx context.Context, db *mongo.Database, collection string) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}

	col := db.Collection(collection)

	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return &Ledger{col: col}, nil
}

// Close disconnects the client when the ledger owns it.
func (l *Ledger) Close(ctx context.Context) error {
	if l.client == nil {
		return nil
	}
	return l.client.Disconnect(ctx)
}

// Append records one completed generation.
func (l *Ledger) Append(ctx context.Context, entry domain.CostEntry) error {
	if entry.UserID == "" {
		return errors.New("user id cannot be empty")
	}
	metrics.IncStoreOp(backend, "append")

	entry.CreatedAt = entry.CreatedAt.UTC()
	if _, err := l.col.InsertOne(ctx, entry); err != nil {
		metrics.IncError("mongo_ledger", "append_error")
		return fmt.Errorf("failed to insert cost entry: %w", err)
	}
	return nil
}

// ListByUser returns the user's entries ordered by creation time.
func (l *Ledger) ListByUser(ctx context.Context, userID string) ([]domain.CostEntry, error) {
	metrics.IncStoreOp(backend, "list")

	cur, err := l.col.Find(ctx,
		bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		metrics.IncError("mongo_ledger", "list_error")
		return nil, fmt.Errorf("failed to query cost entries: %w", err)
	}
	defer func() {
		if err := cur.Close(ctx); err != nil {
			observability.FromContext(ctx).Warn("failed to close cursor", observability.Error(err))
		}
	}()

	var entries []domain.CostEntry
	for cur.Next(ctx) {
		var entry domain.CostEntry
		if err := cur.Decode(&entry); err != nil {
			metrics.IncError("mongo_ledger", "list_decode_error")
			return nil, fmt.Errorf("failed to decode cost entry: %w", err)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := cur.Err(); err != nil {
		metrics.IncError("mongo_ledger", "list_cursor_error")
		return nil, fmt.Errorf("failed to iterate cost entries: %w", err)
	}

	return entries, nil
}

// DeleteByUser removes every entry for a user.
func (l *Ledger) DeleteByUser(ctx context.Context, userID string) error {
	metrics.IncStoreOp(backend, "delete")

	if _, err := l.col.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		metrics.IncError("mongo_ledger", "delete_error")
		return fmt.Errorf("failed to delete cost entries: %w", err)
	}
	return nil
}

var _ domain.CostLedger = (*Ledger)(nil)
