package squeue

import "errors"

var (
	// Argument errors. Caller bugs, never retried by the engine.
	ErrEmptyMessage = errors.New("squeue: message is empty")
	ErrInvalidID    = errors.New("squeue: invalid item id")

	// ErrNotFound is returned when an operate-by-id call does not
	// resolve to an existing item.
	ErrNotFound = errors.New("squeue: item not found")

	// ErrNoItem signals that Claim found nothing eligible. An empty
	// queue is an expected steady state, not a failure; callers should
	// poll again with backoff.
	ErrNoItem = errors.New("squeue: no item available")

	// ErrStoreClosed is returned by store operations after Close.
	ErrStoreClosed = errors.New("squeue: store closed")
)
