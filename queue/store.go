package queue

import (
	"context"
	"time"
)

// ListOpts controls pagination for item list queries.
type ListOpts struct {
	// Limit is the maximum number of items to return. Zero means no limit.
	Limit int
	// Offset is the number of items to skip.
	Offset int
}

// Store is the capability contract the engine requires from a backend.
// Every mutating method must be a single atomic operation with respect
// to concurrent callers; the engine never issues a read followed by a
// dependent write for a state transition. Backends: store/mongo for
// production, store/memory for development and tests.
type Store interface {
	// Insert persists a new item and assigns its ID in place.
	Insert(ctx context.Context, it *Item) error

	// FindAndLock atomically selects one pending item — highest
	// priority first, oldest first within a priority — and locks it
	// with the given timestamp. Returns squeue.ErrNoItem when nothing
	// is eligible. Two concurrent callers can never receive the same
	// item.
	FindAndLock(ctx context.Context, now time.Time) (*Item, error)

	// MarkComplete unconditionally unlocks the item and stamps it
	// complete at the given timestamp. Safe to repeat.
	MarkComplete(ctx context.Context, id string, now time.Time) error

	// ReleaseFailed atomically unlocks the item, clears its lock
	// timestamp, and increments its retry count, returning the updated
	// item.
	ReleaseFailed(ctx context.Context, id string) (*Item, error)

	// MarkDead flags the item as dead. Idempotent.
	MarkDead(ctx context.Context, id string) error

	// ReleaseExpired unlocks every item whose lock timestamp is at or
	// before cutoff and returns the number of items released.
	ReleaseExpired(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteCompleted removes all completed items, returning the count.
	DeleteCompleted(ctx context.Context) (int64, error)

	// DeleteDead removes all dead items, returning the count.
	DeleteDead(ctx context.Context) (int64, error)

	// Get retrieves an item by ID.
	Get(ctx context.Context, id string) (*Item, error)

	// List returns items in the given state, oldest first. The zero
	// State lists every item.
	List(ctx context.Context, state State, opts ListOpts) ([]*Item, error)

	// Count returns the number of items in the given state. The zero
	// State counts every item.
	Count(ctx context.Context, state State) (int64, error)

	// Migrate bootstraps the backing collection and its indexes.
	// Idempotent; call once before first use.
	Migrate(ctx context.Context) error

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close(ctx context.Context) error
}
