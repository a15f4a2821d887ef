// Package changes describes committed mutations so that a caller can mirror
// them to a remote service. The store publishes; it never talks to the network.
package changes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Entity string

const (
	EntityUser  Entity = "user"
	EntityHabit Entity = "habit"
	EntityScore Entity = "score"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is one committed mutation. Snapshot holds the full field set after
// the change (nil for deletes); Fields lists the columns a partial update wrote.
type Change struct {
	ID       string    `json:"id"`
	Entity   Entity    `json:"entity"`
	Op       Op        `json:"op"`
	EntityID int64     `json:"entity_id"`
	UserID   int64     `json:"user_id"`
	Fields   []string  `json:"fields,omitempty"`
	Snapshot any       `json:"snapshot,omitempty"`
	At       time.Time `json:"at"`
}

// New stamps a change with a fresh id and the current time.
func New(entity Entity, op Op, entityID, userID int64, snapshot any) Change {
	return Change{
		ID:       uuid.New().String(),
		Entity:   entity,
		Op:       op,
		EntityID: entityID,
		UserID:   userID,
		Snapshot: snapshot,
		At:       time.Now().UTC(),
	}
}

func (c Change) String() string {
	return fmt.Sprintf("%s %s #%d (user %d)", c.Op, c.Entity, c.EntityID, c.UserID)
}

// Sink receives changes after their transaction committed.
type Sink interface {
	Publish(ctx context.Context, c Change) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, c Change) error

func (f SinkFunc) Publish(ctx context.Context, c Change) error { return f(ctx, c) }

// Discard drops every change.
var Discard Sink = SinkFunc(func(context.Context, Change) error { return nil })

// Recorder keeps changes in memory.
type Recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *Recorder) Publish(_ context.Context, c Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return nil
}

// Changes returns a copy of everything recorded so far.
func (r *Recorder) Changes() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Change, len(r.changes))
	copy(out, r.changes)
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = nil
}

// Journal appends changes as JSON lines, an outbox a sync process can drain.
type Journal struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJournal(w io.Writer) *Journal {
	return &Journal{enc: json.NewEncoder(w)}
}

func (j *Journal) Publish(_ context.Context, c Change) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(c); err != nil {
		return fmt.Errorf("failed to write change %s: %w", c.ID, err)
	}
	return nil
}
