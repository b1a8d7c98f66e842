// Package anim holds the ephemeral visual-feedback queue: short-lived events
// emitted on like/click interactions that expire on a fixed clock, not on any
// other state change.
package anim

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// TTL is the fixed lifetime of every event.
const TTL = 1000 * time.Millisecond

// Zone names the screen region an animation flies toward.
type Zone string

const (
	ZoneTree Zone = "tree"
	ZoneChat Zone = "chat"
)

type Event struct {
	// ID is a ULID minted from the event's creation time, so ids sort by
	// emission order.
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Zone  Zone    `json:"zone"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	At    time.Time
}

// Queue is the active animation set. Expiry is time-based: an event is gone
// TTL after creation regardless of what else happened in between. The clock
// is injectable for deterministic tests.
type Queue struct {
	mu      sync.Mutex
	now     func() time.Time
	entropy *rand.Rand
	events  []Event
}

func NewQueue() *Queue {
	return NewQueueWithClock(time.Now)
}

func NewQueueWithClock(now func() time.Time) *Queue {
	return &Queue{
		now:     now,
		entropy: rand.New(rand.NewSource(now().UnixNano())),
	}
}

// Emit adds an event and returns its id.
func (q *Queue) Emit(title string, zone Zone, x, y float64) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	at := q.now()
	id := ulid.MustNew(ulid.Timestamp(at), q.entropy).String()
	q.prune(at)
	q.events = append(q.events, Event{ID: id, Title: title, Zone: zone, X: x, Y: y, At: at})
	return id
}

// Active returns the events still inside their TTL window.
func (q *Queue) Active() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prune(q.now())
	return append([]Event(nil), q.events...)
}

// prune drops expired events; callers hold the lock.
func (q *Queue) prune(now time.Time) {
	kept := q.events[:0]
	for _, event := range q.events {
		if now.Sub(event.At) <= TTL {
			kept = append(kept, event)
		}
	}
	q.events = kept
}
