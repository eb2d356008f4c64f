// Package squeue provides a durable, priority-ordered job queue backed by
// MongoDB. Producers enqueue opaque payloads; any number of consumer
// processes claim, process, and acknowledge items, coordinating solely
// through the store's atomic conditional updates. Items abandoned by
// crashed workers are reclaimed after a lease timeout, and items that
// exhaust their retry budget are dead-lettered.
//
// squeue is a library, not a service. Open a store, wrap it in a queue,
// and call the lifecycle operations directly:
//
//	st, err := mongo.Open(ctx, "mongodb://localhost:27017")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close(ctx)
//
//	if err := st.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	q := queue.New(st)
//	item, err := q.Enqueue(ctx, []byte(`{"to":"someone@example.com"}`))
//
// Consumers either drive the queue by hand (Claim, then Complete or
// Fail) or run a worker pool from the worker package. Background lease
// reclaim and purge scheduling live in the maintenance package.
//
// # Architecture
//
// The queue package owns the lifecycle state machine and defines the
// Store capability interface. Backends implement Store: store/mongo for
// production, store/memory for development and tests. Every state
// transition is a single atomic conditional update against the backing
// store, so no in-process locking is needed and workers on different
// machines can never claim the same item twice.
package squeue
