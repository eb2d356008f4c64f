package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/belsrc/squeue"
	"github.com/belsrc/squeue/queue"
)

// itemModel is the wire shape of a queue item. The lifecycle flags are
// always materialized (never omitted) so the claim predicate can match
// on equality without $exists clauses.
type itemModel struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	Message     []byte        `bson:"message"`
	Priority    int           `bson:"priority"`
	CreatedAt   time.Time     `bson:"created_at"`
	Locked      bool          `bson:"locked"`
	LockedAt    *time.Time    `bson:"locked_at,omitempty"`
	Retries     int           `bson:"retries"`
	Complete    bool          `bson:"complete"`
	CompletedAt *time.Time    `bson:"completed_at,omitempty"`
	Dead        bool          `bson:"dead"`
}

func toItemModel(it *queue.Item) *itemModel {
	return &itemModel{
		Message:     it.Message,
		Priority:    it.Priority,
		CreatedAt:   it.CreatedAt,
		Locked:      it.Locked,
		LockedAt:    it.LockedAt,
		Retries:     it.Retries,
		Complete:    it.Complete,
		CompletedAt: it.CompletedAt,
		Dead:        it.Dead,
	}
}

func fromItemModel(m *itemModel) *queue.Item {
	return &queue.Item{
		ID:          m.ID.Hex(),
		Message:     m.Message,
		Priority:    m.Priority,
		CreatedAt:   m.CreatedAt,
		Locked:      m.Locked,
		LockedAt:    m.LockedAt,
		Retries:     m.Retries,
		Complete:    m.Complete,
		CompletedAt: m.CompletedAt,
		Dead:        m.Dead,
	}
}

// parseID converts an engine-level id back to an ObjectID. A malformed
// id is a caller bug, reported as squeue.ErrInvalidID.
func parseID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.ObjectID{}, squeue.ErrInvalidID
	}
	return oid, nil
}

// stateFilter builds the predicate matching a derived lifecycle state.
// The zero state matches everything.
func stateFilter(state queue.State) bson.M {
	switch state {
	case queue.StatePending:
		return bson.M{"locked": false, "complete": false, "dead": false}
	case queue.StateLocked:
		return bson.M{"locked": true, "complete": false, "dead": false}
	case queue.StateComplete:
		return bson.M{"complete": true}
	case queue.StateDead:
		return bson.M{"dead": true, "complete": false}
	default:
		return bson.M{}
	}
}
