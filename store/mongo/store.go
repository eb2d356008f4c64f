package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/belsrc/squeue"
	"github.com/belsrc/squeue/queue"
)

// Default connection and collection settings. All are overridable
// through options or a squeue.Config.
const (
	defaultDatabase   = "squeue"
	defaultCollection = "queue"
	defaultKeepAlive  = 20 * time.Second
	defaultTTL        = 7 * 24 * time.Hour
)

// Index names, stable across Migrate calls so re-declaration is a
// server-side no-op.
const (
	idxClaimOrder   = "claim_order"
	idxCompletedTTL = "completed_ttl"
)

// Ensure Store implements the engine contract at compile time.
var _ queue.Store = (*Store)(nil)

// Store is a MongoDB implementation of queue.Store. It owns the client
// it opened: Close disconnects it. Every engine operation maps to one
// driver call, so atomicity is inherited from MongoDB's per-document
// guarantees.
type Store struct {
	client     *mongod.Client
	collection *mongod.Collection

	database  string
	colName   string
	keepAlive time.Duration
	retryable bool
	ttl       time.Duration
	logger    *slog.Logger
}

// Option configures the Store before connecting.
type Option func(*Store)

// WithDatabase sets the database name.
func WithDatabase(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.database = name
		}
	}
}

// WithCollection sets the backing collection name.
func WithCollection(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.colName = name
		}
	}
}

// WithKeepAlive sets the server heartbeat interval.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// WithRetryableOps toggles the driver's retryable reads and writes,
// the reconnect story for transient network failures.
func WithRetryableOps(enabled bool) Option {
	return func(s *Store) { s.retryable = enabled }
}

// WithCompletedTTL sets the retention window the TTL index applies to
// completed items.
func WithCompletedTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithConfig applies the store-relevant fields of a Config.
func WithConfig(cfg squeue.Config) Option {
	return func(s *Store) {
		if cfg.Database != "" {
			s.database = cfg.Database
		}
		if cfg.Collection != "" {
			s.colName = cfg.Collection
		}
		if cfg.KeepAlive > 0 {
			s.keepAlive = cfg.KeepAliveInterval()
		}
		if cfg.CompletedTTL > 0 {
			s.ttl = cfg.TTL()
		}
		s.retryable = cfg.AutoReconnect
	}
}

// Open connects to MongoDB and returns a ready Store. The connection is
// verified with a ping before returning, so an unreachable or
// unauthorized target fails here rather than on first use. The caller
// owns the handle and must Close it.
func Open(ctx context.Context, uri string, opts ...Option) (*Store, error) {
	s := &Store{
		database:  defaultDatabase,
		colName:   defaultCollection,
		keepAlive: defaultKeepAlive,
		retryable: true,
		ttl:       defaultTTL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	clientOpts := options.Client().
		ApplyURI(uri).
		SetHeartbeatInterval(s.keepAlive).
		SetRetryWrites(s.retryable).
		SetRetryReads(s.retryable)

	client, err := mongod.Connect(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("squeue/mongo: connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("squeue/mongo: ping %s: %w", s.database, err)
	}

	s.client = client
	s.collection = client.Database(s.database).Collection(s.colName)

	s.logger.Debug("store opened",
		slog.String("database", s.database),
		slog.String("collection", s.colName),
	)
	return s, nil
}

// Collection returns the underlying collection for advanced usage.
func (s *Store) Collection() *mongod.Collection {
	return s.collection
}

// Migrate declares the two indexes the engine depends on: the
// composite claim index covering the selection predicate and ordering,
// and the TTL index expiring completed items after the retention
// window. Idempotent; safe to call when the indexes already exist.
// Idempotency holds only for unchanged options: re-running with a
// different WithCompletedTTL fails with an IndexOptionsConflict from
// the server. Change the retention window with collMod, or drop the
// completed_ttl index first and Migrate again.
func (s *Store) Migrate(ctx context.Context) error {
	ttlSeconds := int32(s.ttl / time.Second)

	indexes := []mongod.IndexModel{
		{
			Keys: bson.D{
				{Key: "locked", Value: 1},
				{Key: "complete", Value: 1},
				{Key: "dead", Value: 1},
				{Key: "priority", Value: -1},
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetName(idxClaimOrder),
		},
		{
			Keys: bson.D{{Key: "completed_at", Value: 1}},
			Options: options.Index().
				SetName(idxCompletedTTL).
				SetExpireAfterSeconds(ttlSeconds),
		},
	}

	if _, err := s.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("squeue/mongo: migrate %s indexes: %w", s.colName, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("squeue/mongo: ping: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("squeue/mongo: disconnect: %w", err)
	}
	return nil
}

// isNoDocuments returns true when err indicates no documents matched.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}
