// Package queue implements the lifecycle engine for squeue: the state
// machine moving an item from pending to locked to complete, failed, or
// dead, and the claim protocol guaranteeing that concurrent workers
// each receive a distinct item.
//
// The engine is storage-agnostic. It talks to a backend through the
// [Store] capability interface, and every state transition it issues is
// a single atomic conditional update — never a read followed by a
// dependent write. Mutual exclusion between workers is therefore
// enforced entirely by the store; the engine needs no in-process
// locking and may be shared freely across goroutines and processes.
//
// Claim ordering is total: priority descending, then enqueue time
// ascending. There is no global FIFO across priority tiers — a higher
// priority item always preempts.
package queue
