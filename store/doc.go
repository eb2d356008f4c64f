// Package store groups the queue.Store backends.
//
// The capability contract itself lives in the queue package next to the
// engine that consumes it. A backend implements queue.Store in full:
//
//   - store/mongo — MongoDB backend, the production store. Claims use
//     findAndModify; completed items expire through a TTL index.
//   - store/memory — in-memory store for development and testing.
//
// Backends must give every mutating method single-operation atomicity;
// the engine relies on it for exactly-once claims and never compensates
// with its own locking.
package store
