package queue

import "time"

// State is the derived lifecycle state of an item. Exactly one state
// describes an item at any instant; it is computed from the lifecycle
// flags rather than stored.
type State string

const (
	// StatePending means the item is waiting to be claimed.
	StatePending State = "pending"
	// StateLocked means a worker currently holds a claim on the item.
	StateLocked State = "locked"
	// StateComplete means the item finished successfully. Terminal.
	StateComplete State = "complete"
	// StateDead means the item exhausted its retry budget. Terminal.
	StateDead State = "dead"
)

// Item is one enqueued job. The message payload is opaque to the
// engine; it is stored and returned untouched.
type Item struct {
	// ID is assigned by the store on insert and immutable thereafter.
	// Its format is backend-specific (ObjectID hex for mongo, UUID for
	// memory); the engine treats it as an opaque string.
	ID string `json:"id"`

	Message   []byte    `json:"message"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`

	Locked   bool       `json:"locked"`
	LockedAt *time.Time `json:"locked_at,omitempty"`

	Retries int `json:"retries"`

	Complete    bool       `json:"complete"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Dead bool `json:"dead"`
}

// State derives the effective lifecycle state from the item's flags.
// Complete and dead are terminal and win over the lock flag.
func (it *Item) State() State {
	switch {
	case it.Complete:
		return StateComplete
	case it.Dead:
		return StateDead
	case it.Locked:
		return StateLocked
	default:
		return StatePending
	}
}

// Claimed is the caller-facing view of a claimed item. Internal
// bookkeeping fields are deliberately not exposed; acknowledge with
// Complete or Fail using the ID.
type Claimed struct {
	ID      string `json:"id"`
	Message []byte `json:"message"`
}

// Stats is a point-in-time census of the collection by state.
type Stats struct {
	Pending  int64 `json:"pending"`
	Locked   int64 `json:"locked"`
	Complete int64 `json:"complete"`
	Dead     int64 `json:"dead"`
}
