package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/belsrc/squeue"
)

// DefaultMaxRetries is the failure budget applied when no option
// overrides it.
const DefaultMaxRetries = 5

// Queue is the lifecycle engine. It owns the state machine rules —
// claim ordering, retry counting, dead-lettering, lease reclaim — and
// expresses every transition as one atomic store call. It holds no
// state of its own beyond configuration, so a single Queue is safe for
// concurrent use and any number of Queue instances (in any number of
// processes) may share one collection.
type Queue struct {
	store      Store
	maxRetries int
	logger     *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxRetries sets the failure budget before dead-lettering.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// WithConfig applies the engine-relevant fields of a Config.
func WithConfig(cfg squeue.Config) Option {
	return func(q *Queue) {
		if cfg.Retries > 0 {
			q.maxRetries = cfg.Retries
		}
	}
}

// New creates a Queue over the given store.
func New(store Store, opts ...Option) *Queue {
	q := &Queue{
		store:      store,
		maxRetries: DefaultMaxRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// MaxRetries returns the configured failure budget.
func (q *Queue) MaxRetries() int { return q.maxRetries }

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*Item)

// WithPriority sets the item's priority. Higher claims first; equal
// priorities are claimed oldest first.
func WithPriority(p int) EnqueueOption {
	return func(it *Item) { it.Priority = p }
}

// Enqueue inserts a new pending item and returns it with its assigned
// ID. The message is stored opaquely. Priority defaults to 1 when not
// set.
func (q *Queue) Enqueue(ctx context.Context, message []byte, opts ...EnqueueOption) (*Item, error) {
	if len(message) == 0 {
		return nil, squeue.ErrEmptyMessage
	}

	it := &Item{
		Message:   message,
		CreatedAt: now(),
	}
	for _, opt := range opts {
		opt(it)
	}
	if it.Priority == 0 {
		it.Priority = 1
	}

	if err := q.store.Insert(ctx, it); err != nil {
		return nil, err
	}

	q.logger.Debug("item enqueued",
		slog.String("item_id", it.ID),
		slog.Int("priority", it.Priority),
	)
	return it, nil
}

// Claim atomically locks and returns one pending item: highest
// priority first, then oldest first within a priority tier. The
// selection and the lock are one conditional update, so concurrent
// claimers always receive distinct items. Returns squeue.ErrNoItem
// when the queue holds nothing claimable.
func (q *Queue) Claim(ctx context.Context) (*Claimed, error) {
	it, err := q.store.FindAndLock(ctx, now())
	if err != nil {
		return nil, err
	}

	q.logger.Debug("item claimed",
		slog.String("item_id", it.ID),
		slog.Int("priority", it.Priority),
		slog.Int("retries", it.Retries),
	)
	return &Claimed{ID: it.ID, Message: it.Message}, nil
}

// Complete marks the item done and unlocks it. It carries no
// precondition on the current lock state: repeating a completion is a
// safe no-op that re-stamps completed_at. Returns squeue.ErrNotFound
// for an unknown id.
func (q *Queue) Complete(ctx context.Context, id string) error {
	if err := q.store.MarkComplete(ctx, id, now()); err != nil {
		return err
	}
	q.logger.Debug("item completed", slog.String("item_id", id))
	return nil
}

// Fail records a processing failure: the item is unlocked and its
// retry count incremented in one atomic step, then dead-lettered if
// the budget is exhausted. The unlock and the dead-letter write are
// two separate store operations; between them another claimer could
// briefly pick the item up. That window is benign — the item is
// unlocked either way, and MarkDead is unconditional — so it is
// accepted rather than folded into a single predicate update.
func (q *Queue) Fail(ctx context.Context, id string) error {
	it, err := q.store.ReleaseFailed(ctx, id)
	if err != nil {
		return err
	}

	if it.Retries >= q.maxRetries {
		q.logger.Warn("item exhausted retries, dead-lettering",
			slog.String("item_id", id),
			slog.Int("retries", it.Retries),
			slog.Int("max_retries", q.maxRetries),
		)
		return q.MarkDead(ctx, id)
	}

	q.logger.Debug("item failed, returned to pending",
		slog.String("item_id", id),
		slog.Int("retries", it.Retries),
		slog.Int("max_retries", q.maxRetries),
	)
	return nil
}

// MarkDead flags the item as dead, excluding it from future claims.
// Dead items are retained for inspection until purged explicitly.
// Idempotent.
func (q *Queue) MarkDead(ctx context.Context, id string) error {
	return q.store.MarkDead(ctx, id)
}

// ReclaimExpired returns items whose lease has lapsed to the pending
// pool: every item locked at or before now-lease is unlocked. This is
// the crash-recovery path for workers that claimed an item and died
// before acknowledging it. Safe to call repeatedly and concurrently;
// each call only touches leases already expired at call time. Returns
// the number of items reclaimed.
func (q *Queue) ReclaimExpired(ctx context.Context, lease time.Duration) (int64, error) {
	if lease < 0 {
		return 0, fmt.Errorf("squeue: negative lease %v", lease)
	}

	n, err := q.store.ReleaseExpired(ctx, now().Add(-lease))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.logger.Info("reclaimed expired leases", slog.Int64("count", n))
	}
	return n, nil
}

// PurgeCompleted deletes every completed item and returns the count.
// This is a manual escape hatch; the store's TTL expiry on
// completed_at is the primary cleanup path.
func (q *Queue) PurgeCompleted(ctx context.Context) (int64, error) {
	return q.store.DeleteCompleted(ctx)
}

// PurgeDead deletes every dead item and returns the count. Dead items
// have no automatic expiry; they stay until purged here or inspected
// and removed out of band.
func (q *Queue) PurgeDead(ctx context.Context) (int64, error) {
	return q.store.DeleteDead(ctx)
}

// Get retrieves an item by ID, including its bookkeeping fields.
// Read-only; intended for inspection and tooling.
func (q *Queue) Get(ctx context.Context, id string) (*Item, error) {
	return q.store.Get(ctx, id)
}

// List returns items in the given state, oldest first.
func (q *Queue) List(ctx context.Context, state State, opts ListOpts) ([]*Item, error) {
	return q.store.List(ctx, state, opts)
}

// Count returns the number of items in the given state.
func (q *Queue) Count(ctx context.Context, state State) (int64, error) {
	return q.store.Count(ctx, state)
}

// Stats returns a census of the collection by state. Four independent
// counts, so the figures are not a consistent snapshot under load.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var err error

	if s.Pending, err = q.store.Count(ctx, StatePending); err != nil {
		return Stats{}, err
	}
	if s.Locked, err = q.store.Count(ctx, StateLocked); err != nil {
		return Stats{}, err
	}
	if s.Complete, err = q.store.Count(ctx, StateComplete); err != nil {
		return Stats{}, err
	}
	if s.Dead, err = q.store.Count(ctx, StateDead); err != nil {
		return Stats{}, err
	}
	return s, nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}
