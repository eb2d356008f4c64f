// Package mongo implements queue.Store on the official MongoDB driver.
// This is the production backend: the claim protocol rides on
// findAndModify, whose per-document atomicity is what keeps concurrent
// workers from double-claiming.
//
// The Store owns the client it opened — Close disconnects it:
//
//	st, err := mongo.Open(ctx, "mongodb://localhost:27017",
//	    mongo.WithCollection("queue"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close(ctx)
//
//	if err := st.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrate declares a composite index over (locked, complete, dead,
// priority, created_at) serving the claim predicate and ordering, and a
// TTL index on completed_at so the server expires completed items after
// the retention window (default 7 days). Dead items never expire.
package mongo
