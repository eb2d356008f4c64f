//go:build integration

package mongo_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/belsrc/squeue"
	"github.com/belsrc/squeue/queue"
	mongostore "github.com/belsrc/squeue/store/mongo"
)

// setupTestStore starts a MongoDB container and returns a connected,
// migrated Store.
func setupTestStore(t *testing.T) *mongostore.Store {
	t.Helper()

	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7", mongodb.WithReplicaSet("rs0"))
	if err != nil {
		t.Fatalf("start mongo container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	st, err := mongostore.Open(ctx, uri,
		mongostore.WithDatabase("squeue_test"),
		mongostore.WithCollection("queue_test"),
	)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close(ctx)
	})

	if migErr := st.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}
	// Declaring existing indexes again must be a no-op.
	if migErr := st.Migrate(ctx); migErr != nil {
		t.Fatalf("second migrate: %v", migErr)
	}

	return st
}

func TestStore_Ping(t *testing.T) {
	st := setupTestStore(t)
	if err := st.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestStore_InsertAndGet(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	it := &queue.Item{
		Message:   []byte(`{"kind":"email"}`),
		Priority:  3,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.Insert(ctx, it); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if it.ID == "" {
		t.Fatal("Insert did not assign an ID")
	}

	got, err := st.Get(ctx, it.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(got.Message) != `{"kind":"email"}` {
		t.Errorf("message = %s, want original payload", got.Message)
	}
	if got.Priority != 3 {
		t.Errorf("priority = %d, want 3", got.Priority)
	}
	if got.State() != queue.StatePending {
		t.Errorf("state = %q, want pending", got.State())
	}
}

func TestStore_IDErrors(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	// Malformed id: caller bug.
	if _, err := st.Get(ctx, "not-an-objectid"); !errors.Is(err, squeue.ErrInvalidID) {
		t.Errorf("Get(malformed) error = %v, want ErrInvalidID", err)
	}

	// Well-formed but unknown id.
	if _, err := st.Get(ctx, "ffffffffffffffffffffffff"); !errors.Is(err, squeue.ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
	if err := st.MarkComplete(ctx, "ffffffffffffffffffffffff", time.Now().UTC()); !errors.Is(err, squeue.ErrNotFound) {
		t.Errorf("MarkComplete(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestStore_ClaimOrdering(t *testing.T) {
	st := setupTestStore(t)
	q := queue.New(st)
	ctx := context.Background()

	// Spread created_at beyond the server's millisecond resolution so
	// the FIFO tie-break is deterministic.
	p1, _ := q.Enqueue(ctx, []byte("P1"), queue.WithPriority(1))
	time.Sleep(5 * time.Millisecond)
	p2, _ := q.Enqueue(ctx, []byte("P2"), queue.WithPriority(5))
	time.Sleep(5 * time.Millisecond)
	p3, _ := q.Enqueue(ctx, []byte("P3"), queue.WithPriority(1))

	want := []string{p2.ID, p1.ID, p3.ID}
	for i, wantID := range want {
		claimed, err := q.Claim(ctx)
		if err != nil {
			t.Fatalf("Claim %d returned error: %v", i, err)
		}
		if claimed.ID != wantID {
			t.Errorf("claim %d = %s, want %s", i, claimed.ID, wantID)
		}
	}

	if _, err := q.Claim(ctx); !errors.Is(err, squeue.ErrNoItem) {
		t.Fatalf("claim on drained queue error = %v, want ErrNoItem", err)
	}
}

func TestStore_ConcurrentClaimsAreDistinct(t *testing.T) {
	st := setupTestStore(t)
	q := queue.New(st)
	ctx := context.Background()

	const n = 16
	for i := range n {
		if _, err := q.Enqueue(ctx, []byte(fmt.Sprintf("item-%d", i))); err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]int, n)
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := q.Claim(ctx)
			if err != nil {
				t.Errorf("concurrent Claim returned error: %v", err)
				return
			}
			mu.Lock()
			ids[claimed.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != n {
		t.Fatalf("claimed %d distinct items, want %d", len(ids), n)
	}
	for id, count := range ids {
		if count != 1 {
			t.Errorf("item %s delivered %d times, want exactly once", id, count)
		}
	}
}

func TestStore_FailLifecycle(t *testing.T) {
	st := setupTestStore(t)
	q := queue.New(st, queue.WithMaxRetries(2))
	ctx := context.Background()

	it, _ := q.Enqueue(ctx, []byte("flaky"))

	for attempt := 1; attempt <= 2; attempt++ {
		claimed, err := q.Claim(ctx)
		if err != nil {
			t.Fatalf("Claim %d returned error: %v", attempt, err)
		}
		if err := q.Fail(ctx, claimed.ID); err != nil {
			t.Fatalf("Fail %d returned error: %v", attempt, err)
		}
	}

	got, err := q.Get(ctx, it.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !got.Dead || got.Retries != 2 {
		t.Errorf("item after exhausted budget = %+v, want dead with 2 retries", got)
	}
	if got.Locked || got.LockedAt != nil {
		t.Errorf("dead item still locked: %+v", got)
	}
	if _, err := q.Claim(ctx); !errors.Is(err, squeue.ErrNoItem) {
		t.Fatalf("Claim after dead-letter error = %v, want ErrNoItem", err)
	}
}

func TestStore_ReleaseExpired(t *testing.T) {
	st := setupTestStore(t)
	q := queue.New(st)
	ctx := context.Background()

	it, _ := q.Enqueue(ctx, []byte("abandoned"))
	if _, err := q.Claim(ctx); err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}

	n, err := q.ReclaimExpired(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ReclaimExpired returned error: %v", err)
	}
	if n != 0 {
		t.Errorf("ReclaimExpired(1h) = %d, want 0", n)
	}

	time.Sleep(5 * time.Millisecond)
	n, err = q.ReclaimExpired(ctx, 0)
	if err != nil {
		t.Fatalf("ReclaimExpired returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("ReclaimExpired(0) = %d, want 1", n)
	}

	claimed, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim after reclaim returned error: %v", err)
	}
	if claimed.ID != it.ID {
		t.Errorf("reclaimed id = %s, want %s", claimed.ID, it.ID)
	}
}

func TestStore_CompleteAndPurge(t *testing.T) {
	st := setupTestStore(t)
	q := queue.New(st)
	ctx := context.Background()

	done, _ := q.Enqueue(ctx, []byte("done"))
	if err := q.Complete(ctx, done.ID); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	got, err := q.Get(ctx, done.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !got.Complete || got.CompletedAt == nil {
		t.Errorf("completed item = %+v, want complete with CompletedAt", got)
	}

	doomed, _ := q.Enqueue(ctx, []byte("doomed"))
	if err := q.MarkDead(ctx, doomed.ID); err != nil {
		t.Fatalf("MarkDead returned error: %v", err)
	}

	nc, err := q.PurgeCompleted(ctx)
	if err != nil {
		t.Fatalf("PurgeCompleted returned error: %v", err)
	}
	if nc != 1 {
		t.Errorf("PurgeCompleted = %d, want 1", nc)
	}

	nd, err := q.PurgeDead(ctx)
	if err != nil {
		t.Fatalf("PurgeDead returned error: %v", err)
	}
	if nd != 1 {
		t.Errorf("PurgeDead = %d, want 1", nd)
	}

	total, err := q.Count(ctx, "")
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if total != 0 {
		t.Errorf("Count after purges = %d, want 0", total)
	}
}

func TestStore_ListAndCountByState(t *testing.T) {
	st := setupTestStore(t)
	q := queue.New(st)
	ctx := context.Background()

	for i := range 3 {
		if _, err := q.Enqueue(ctx, []byte(fmt.Sprintf("p-%d", i))); err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if _, err := q.Claim(ctx); err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	want := queue.Stats{Pending: 2, Locked: 1}
	if stats != want {
		t.Errorf("Stats = %+v, want %+v", stats, want)
	}

	locked, err := q.List(ctx, queue.StateLocked, queue.ListOpts{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(locked) != 1 {
		t.Errorf("List(locked) returned %d items, want 1", len(locked))
	}
}
