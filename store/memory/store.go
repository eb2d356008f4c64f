// Package memory provides a fully in-memory queue.Store. Safe for
// concurrent access. Intended for unit testing and development; nothing
// survives process exit and the TTL retention window is not enforced.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/belsrc/squeue"
	"github.com/belsrc/squeue/queue"
)

// Ensure Store implements the engine contract at compile time.
var _ queue.Store = (*Store)(nil)

// entry wraps a stored item with its insertion sequence. The sequence
// breaks created_at ties so equal-priority claims stay FIFO even when
// items are enqueued within the clock's resolution.
type entry struct {
	item *queue.Item
	seq  uint64
}

// Store is an in-memory implementation of queue.Store. Item IDs are
// random UUIDs.
type Store struct {
	mu      sync.Mutex
	items   map[string]*entry
	nextSeq uint64
	closed  bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{items: make(map[string]*entry)}
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is still open.
func (m *Store) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return squeue.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Subsequent operations fail with
// squeue.ErrStoreClosed.
func (m *Store) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.items = nil
	return nil
}

// Insert persists a new item and assigns it a UUID.
func (m *Store) Insert(_ context.Context, it *queue.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return squeue.ErrStoreClosed
	}

	it.ID = uuid.NewString()
	cp := *it
	m.nextSeq++
	m.items[it.ID] = &entry{item: &cp, seq: m.nextSeq}
	return nil
}

// FindAndLock atomically claims the best pending item: priority
// descending, then insertion order ascending.
func (m *Store) FindAndLock(_ context.Context, now time.Time) (*queue.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, squeue.ErrStoreClosed
	}

	var best *entry
	for _, e := range m.items {
		if e.item.Locked || e.item.Complete || e.item.Dead {
			continue
		}
		if best == nil || claimsBefore(e, best) {
			best = e
		}
	}
	if best == nil {
		return nil, squeue.ErrNoItem
	}

	t := now
	best.item.Locked = true
	best.item.LockedAt = &t

	cp := *best.item
	return &cp, nil
}

// claimsBefore reports whether a should be claimed ahead of b.
func claimsBefore(a, b *entry) bool {
	if a.item.Priority != b.item.Priority {
		return a.item.Priority > b.item.Priority
	}
	if !a.item.CreatedAt.Equal(b.item.CreatedAt) {
		return a.item.CreatedAt.Before(b.item.CreatedAt)
	}
	return a.seq < b.seq
}

// MarkComplete unconditionally unlocks and completes the item.
func (m *Store) MarkComplete(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return squeue.ErrStoreClosed
	}

	e, ok := m.items[id]
	if !ok {
		return squeue.ErrNotFound
	}

	t := now
	e.item.Locked = false
	e.item.Complete = true
	e.item.CompletedAt = &t
	return nil
}

// ReleaseFailed unlocks the item, clears its lock timestamp, and
// increments its retry count.
func (m *Store) ReleaseFailed(_ context.Context, id string) (*queue.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, squeue.ErrStoreClosed
	}

	e, ok := m.items[id]
	if !ok {
		return nil, squeue.ErrNotFound
	}

	e.item.Locked = false
	e.item.LockedAt = nil
	e.item.Retries++

	cp := *e.item
	return &cp, nil
}

// MarkDead flags the item as dead. Idempotent.
func (m *Store) MarkDead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return squeue.ErrStoreClosed
	}

	e, ok := m.items[id]
	if !ok {
		return squeue.ErrNotFound
	}
	e.item.Dead = true
	return nil
}

// ReleaseExpired unlocks every item locked at or before cutoff.
func (m *Store) ReleaseExpired(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, squeue.ErrStoreClosed
	}

	var n int64
	for _, e := range m.items {
		if !e.item.Locked || e.item.LockedAt == nil {
			continue
		}
		if e.item.LockedAt.After(cutoff) {
			continue
		}
		e.item.Locked = false
		e.item.LockedAt = nil
		n++
	}
	return n, nil
}

// DeleteCompleted removes all completed items.
func (m *Store) DeleteCompleted(_ context.Context) (int64, error) {
	return m.deleteWhere(func(it *queue.Item) bool { return it.Complete })
}

// DeleteDead removes all dead items.
func (m *Store) DeleteDead(_ context.Context) (int64, error) {
	return m.deleteWhere(func(it *queue.Item) bool { return it.Dead })
}

func (m *Store) deleteWhere(match func(*queue.Item) bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, squeue.ErrStoreClosed
	}

	var n int64
	for id, e := range m.items {
		if match(e.item) {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

// Get retrieves an item by ID.
func (m *Store) Get(_ context.Context, id string) (*queue.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, squeue.ErrStoreClosed
	}

	e, ok := m.items[id]
	if !ok {
		return nil, squeue.ErrNotFound
	}
	cp := *e.item
	return &cp, nil
}

// List returns items in the given state in insertion order. The zero
// state lists everything.
func (m *Store) List(_ context.Context, state queue.State, opts queue.ListOpts) ([]*queue.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, squeue.ErrStoreClosed
	}

	matched := make([]*entry, 0, len(m.items))
	for _, e := range m.items {
		if state == "" || e.item.State() == state {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, k int) bool { return matched[i].seq < matched[k].seq })

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}

	out := make([]*queue.Item, 0, len(matched))
	for _, e := range matched {
		cp := *e.item
		out = append(out, &cp)
	}
	return out, nil
}

// Count returns the number of items in the given state. The zero state
// counts everything.
func (m *Store) Count(_ context.Context, state queue.State) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, squeue.ErrStoreClosed
	}

	var n int64
	for _, e := range m.items {
		if state == "" || e.item.State() == state {
			n++
		}
	}
	return n, nil
}
