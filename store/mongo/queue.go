package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/belsrc/squeue"
	"github.com/belsrc/squeue/queue"
)

// Insert persists a new item and assigns its ObjectID.
func (s *Store) Insert(ctx context.Context, it *queue.Item) error {
	m := toItemModel(it)
	m.ID = bson.NewObjectID()

	if _, err := s.collection.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("squeue/mongo: insert item: %w", err)
	}

	it.ID = m.ID.Hex()
	return nil
}

// FindAndLock atomically claims one pending item via findAndModify:
// the selection predicate, the ordering, and the lock write are a
// single conditional update, so concurrent callers always receive
// distinct documents.
func (s *Store) FindAndLock(ctx context.Context, now time.Time) (*queue.Item, error) {
	filter := bson.M{
		"locked":   false,
		"complete": false,
		"dead":     false,
	}

	update := bson.M{
		"$set": bson.M{
			"locked":    true,
			"locked_at": now,
		},
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{
			{Key: "priority", Value: -1},
			{Key: "created_at", Value: 1},
		})

	var m itemModel
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, squeue.ErrNoItem
		}
		return nil, fmt.Errorf("squeue/mongo: find and lock: %w", err)
	}

	return fromItemModel(&m), nil
}

// MarkComplete unconditionally unlocks the item and stamps completion.
// No precondition on the lock state: repeating a completion is a safe
// no-op that refreshes completed_at.
func (s *Store) MarkComplete(ctx context.Context, id string, now time.Time) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{
			"locked":       false,
			"complete":     true,
			"completed_at": now,
		}},
	)
	if err != nil {
		return fmt.Errorf("squeue/mongo: mark complete: %w", err)
	}
	if res.MatchedCount == 0 {
		return squeue.ErrNotFound
	}
	return nil
}

// ReleaseFailed unlocks the item, clears its lock timestamp, and
// increments its retry count, returning the updated document so the
// engine can check the budget.
func (s *Store) ReleaseFailed(ctx context.Context, id string) (*queue.Item, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	update := bson.M{
		"$set":   bson.M{"locked": false},
		"$unset": bson.M{"locked_at": ""},
		"$inc":   bson.M{"retries": 1},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var m itemModel
	err = s.collection.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, squeue.ErrNotFound
		}
		return nil, fmt.Errorf("squeue/mongo: release failed item: %w", err)
	}

	return fromItemModel(&m), nil
}

// MarkDead flags the item as dead. Idempotent.
func (s *Store) MarkDead(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"dead": true}},
	)
	if err != nil {
		return fmt.Errorf("squeue/mongo: mark dead: %w", err)
	}
	if res.MatchedCount == 0 {
		return squeue.ErrNotFound
	}
	return nil
}

// ReleaseExpired unlocks every item whose lock timestamp is at or
// before cutoff. One updateMany; each matched document flips back to
// pending atomically, so concurrent reclaimers never double-count.
func (s *Store) ReleaseExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.collection.UpdateMany(ctx,
		bson.M{
			"locked":    true,
			"locked_at": bson.M{"$lte": cutoff},
		},
		bson.M{
			"$set":   bson.M{"locked": false},
			"$unset": bson.M{"locked_at": ""},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("squeue/mongo: release expired: %w", err)
	}
	return res.ModifiedCount, nil
}

// DeleteCompleted removes all completed items.
func (s *Store) DeleteCompleted(ctx context.Context) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{"complete": true})
	if err != nil {
		return 0, fmt.Errorf("squeue/mongo: delete completed: %w", err)
	}
	return res.DeletedCount, nil
}

// DeleteDead removes all dead items.
func (s *Store) DeleteDead(ctx context.Context) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, bson.M{"dead": true})
	if err != nil {
		return 0, fmt.Errorf("squeue/mongo: delete dead: %w", err)
	}
	return res.DeletedCount, nil
}

// Get retrieves an item by ID.
func (s *Store) Get(ctx context.Context, id string) (*queue.Item, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var m itemModel
	err = s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, squeue.ErrNotFound
		}
		return nil, fmt.Errorf("squeue/mongo: get item: %w", err)
	}
	return fromItemModel(&m), nil
}

// List returns items in the given state, oldest first.
func (s *Store) List(ctx context.Context, state queue.State, opts queue.ListOpts) ([]*queue.Item, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.collection.Find(ctx, stateFilter(state), findOpts)
	if err != nil {
		return nil, fmt.Errorf("squeue/mongo: list items: %w", err)
	}
	defer cursor.Close(ctx)

	var models []itemModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("squeue/mongo: list items decode: %w", err)
	}

	items := make([]*queue.Item, 0, len(models))
	for i := range models {
		items = append(items, fromItemModel(&models[i]))
	}
	return items, nil
}

// Count returns the number of items in the given state.
func (s *Store) Count(ctx context.Context, state queue.State) (int64, error) {
	count, err := s.collection.CountDocuments(ctx, stateFilter(state))
	if err != nil {
		return 0, fmt.Errorf("squeue/mongo: count items: %w", err)
	}
	return count, nil
}
