package anim

import (
	"testing"
	"time"
)

// fixedClock advances only when the test says so.
type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time          { return c.t }
func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestEmitIsActiveWithinTTL(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := NewQueueWithClock(clock.now)

	id := q.Emit("Crimson Tower", ZoneTree, 120, 48)
	if id == "" {
		t.Fatal("empty event id")
	}

	clock.advance(999 * time.Millisecond)
	active := q.Active()
	if len(active) != 1 || active[0].ID != id {
		t.Fatalf("active = %+v, want the emitted event", active)
	}
	if active[0].Title != "Crimson Tower" || active[0].Zone != ZoneTree {
		t.Fatalf("event fields wrong: %+v", active[0])
	}
}

func TestEventExpiresAfterTTL(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := NewQueueWithClock(clock.now)

	q.Emit("Crimson Tower", ZoneChat, 0, 0)

	clock.advance(1000 * time.Millisecond)
	if len(q.Active()) != 1 {
		t.Fatal("event must survive to exactly its TTL")
	}

	clock.advance(1 * time.Millisecond)
	if got := q.Active(); len(got) != 0 {
		t.Fatalf("event outlived its TTL: %+v", got)
	}
}

func TestExpiryIsPerEvent(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := NewQueueWithClock(clock.now)

	q.Emit("first", ZoneTree, 0, 0)
	clock.advance(600 * time.Millisecond)
	second := q.Emit("second", ZoneTree, 0, 0)

	clock.advance(600 * time.Millisecond)
	active := q.Active()
	if len(active) != 1 || active[0].ID != second {
		t.Fatalf("active = %+v, want only the younger event", active)
	}
}

func TestIDsSortByEmissionOrder(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	q := NewQueueWithClock(clock.now)

	a := q.Emit("a", ZoneTree, 0, 0)
	clock.advance(5 * time.Millisecond)
	b := q.Emit("b", ZoneTree, 0, 0)

	if !(a < b) {
		t.Fatalf("ids out of order: %s then %s", a, b)
	}
}
