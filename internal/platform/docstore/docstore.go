// Package docstore persists derived documents in MongoDB.
//
// Every document is written with its natural key as _id, replace-on-conflict.
// Writes are therefore idempotent: re-ingesting a session converges on the
// same stored state, and redundant ingesting instances never conflict.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pitwall/pitwall/internal/collections"
)

// writeBatchSize bounds one bulk write, so each batch gets its own deadline.
const writeBatchSize = 1000

// Config holds document store configuration.
type Config struct {
	// Connection string (e.g. mongodb://localhost:27017).
	URI string

	Database string

	ConnectTimeout time.Duration
	WriteTimeout   time.Duration

	// Attempts per document before giving up on it.
	MaxRetries uint
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017",
		Database:       "pitwall",
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxRetries:     3,
	}
}

// Store wraps a MongoDB database for document writes.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	cfg    Config
	logger *slog.Logger
}

// Connect establishes a MongoDB connection and verifies it.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	defaults := DefaultConfig()
	if cfg.URI == "" {
		cfg.URI = defaults.URI
	}
	if cfg.Database == "" {
		cfg.Database = defaults.Database
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaults.ConnectTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if logger == nil {
		logger = slog.Default()
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	logger.Info("connected to document store", "database", cfg.Database)

	return &Store{
		client: client,
		db:     client.Database(cfg.Database),
		cfg:    cfg,
		logger: logger.With("component", "docstore"),
	}, nil
}

// Write upserts documents into a collection keyed by their natural key, in
// unordered bulk batches. A document the server rejects is logged and
// skipped without aborting its siblings; a batch that fails wholesale (store
// unreachable, deadline exceeded) is an error and aborts the run.
func (s *Store) Write(ctx context.Context, collection string, docs []collections.Document) error {
	if len(docs) == 0 {
		return nil
	}

	coll := s.db.Collection(collection)

	failed := 0
	for start := 0; start < len(docs); start += writeBatchSize {
		end := start + writeBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		rejected, err := s.writeBatch(ctx, coll, docs[start:end])
		if err != nil {
			return fmt.Errorf("writing %s documents: %w", collection, err)
		}
		failed += rejected
	}

	if failed > 0 {
		s.logger.Warn("partial write", "collection", collection, "failed", failed, "total", len(docs))
	}
	return nil
}

// writeBatch upserts one batch under its own deadline. Per-document server
// rejections are counted and logged; any other failure is returned.
func (s *Store) writeBatch(ctx context.Context, coll *mongo.Collection, docs []collections.Document) (int, error) {
	batchCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	models := make([]mongo.WriteModel, len(docs))
	for i, doc := range docs {
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID()}).
			SetReplacement(doc).
			SetUpsert(true)
	}

	err := retry.Do(
		func() error {
			_, err := coll.BulkWrite(batchCtx, models, options.BulkWrite().SetOrdered(false))
			return err
		},
		retry.Attempts(s.cfg.MaxRetries),
		retry.Delay(100*time.Millisecond),
		retry.Context(batchCtx),
		retry.LastErrorOnly(true),
	)
	if err == nil {
		return 0, nil
	}

	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) && len(bulkErr.WriteErrors) < len(docs) {
		for _, we := range bulkErr.WriteErrors {
			s.logger.Error("document write failed",
				"collection", coll.Name(),
				"id", docs[we.Index].ID(),
				"error", we.Message,
			)
		}
		return len(bulkErr.WriteErrors), nil
	}
	return 0, err
}

// Close disconnects from MongoDB.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
