package live

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	mu      sync.Mutex
	docs    []Document
	err     error
	fetches int
	gate    chan struct{} // when set, Fetch blocks until the gate closes
}

func (s *fakeSource) Fetch(_ context.Context, _ string) ([]Document, error) {
	s.mu.Lock()
	s.fetches++
	docs, err, gate := s.docs, s.err, s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return docs, err
}

func (s *fakeSource) set(docs []Document, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs, s.err = docs, err
}

func (s *fakeSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func doc(id string) Document {
	return Document{ID: id, Data: json.RawMessage(`{"id":"` + id + `"}`)}
}

func waitSnap(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestListenDeliversInitialSnapshot(t *testing.T) {
	source := &fakeSource{docs: []Document{doc("a"), doc("b")}}
	client := NewClient(source, NewMemoryBus())

	snaps := make(chan Snapshot, 16)
	h := client.Listen(context.Background(), "projects/p1", func(s Snapshot) { snaps <- s })
	defer h.Cancel()

	snap := waitSnap(t, snaps)
	if snap.Path != "projects/p1" || len(snap.Docs) != 2 || snap.Err != nil {
		t.Fatalf("initial snapshot wrong: %+v", snap)
	}
}

func TestListenRefetchesOnPublish(t *testing.T) {
	source := &fakeSource{docs: []Document{doc("a")}}
	bus := NewMemoryBus()
	client := NewClient(source, bus)

	snaps := make(chan Snapshot, 16)
	h := client.Listen(context.Background(), "projects/p1", func(s Snapshot) { snaps <- s })
	defer h.Cancel()
	waitSnap(t, snaps)

	source.set([]Document{doc("a"), doc("b")}, nil)
	if err := bus.Publish(context.Background(), "projects/p1"); err != nil {
		t.Fatal(err)
	}

	snap := waitSnap(t, snaps)
	if len(snap.Docs) != 2 {
		t.Fatalf("re-fetch did not pick up new docs: %+v", snap)
	}
}

func TestListenSurvivesFetchError(t *testing.T) {
	source := &fakeSource{docs: []Document{doc("a")}}
	bus := NewMemoryBus()
	client := NewClient(source, bus)

	snaps := make(chan Snapshot, 16)
	h := client.Listen(context.Background(), "projects/p1", func(s Snapshot) { snaps <- s })
	defer h.Cancel()
	waitSnap(t, snaps)

	source.set(nil, errors.New("store down"))
	bus.Publish(context.Background(), "projects/p1")
	snap := waitSnap(t, snaps)
	if snap.Err == nil {
		t.Fatal("expected error snapshot")
	}

	// The stream keeps going: a later invalidation delivers a good snapshot.
	source.set([]Document{doc("a")}, nil)
	bus.Publish(context.Background(), "projects/p1")
	snap = waitSnap(t, snaps)
	if snap.Err != nil || len(snap.Docs) != 1 {
		t.Fatalf("subscription dead after error: %+v", snap)
	}
}

func TestPublishesCoalesceWhileFetchInFlight(t *testing.T) {
	gate := make(chan struct{})
	source := &fakeSource{docs: []Document{doc("a")}, gate: gate}
	bus := NewMemoryBus()
	client := NewClient(source, bus)

	snaps := make(chan Snapshot, 16)
	h := client.Listen(context.Background(), "projects/p1", func(s Snapshot) { snaps <- s })

	// Initial fetch is parked on the gate; pile up invalidations.
	for i := 0; i < 5; i++ {
		bus.Publish(context.Background(), "projects/p1")
	}
	source.mu.Lock()
	source.gate = nil
	source.mu.Unlock()
	close(gate)

	waitSnap(t, snaps) // initial
	waitSnap(t, snaps) // the one coalesced re-fetch
	h.Cancel()

	if got := source.fetchCount(); got != 2 {
		t.Fatalf("fetches = %d, want initial + one coalesced re-fetch", got)
	}
}

func TestCancelReleasesBusSubscription(t *testing.T) {
	source := &fakeSource{docs: []Document{doc("a")}}
	bus := NewMemoryBus()
	client := NewClient(source, bus)

	snaps := make(chan Snapshot, 16)
	h := client.Listen(context.Background(), "projects/p1", func(s Snapshot) { snaps <- s })
	waitSnap(t, snaps)

	if got := bus.SubscriberCount("projects/p1"); got != 1 {
		t.Fatalf("subscriber count = %d before cancel", got)
	}
	h.Cancel()
	h.Cancel() // idempotent
	if got := bus.SubscriberCount("projects/p1"); got != 0 {
		t.Fatalf("cancel leaked bus subscription, count = %d", got)
	}

	before := source.fetchCount()
	bus.Publish(context.Background(), "projects/p1")
	time.Sleep(20 * time.Millisecond)
	if source.fetchCount() != before {
		t.Fatal("cancelled subscription still fetching")
	}
}

func TestSplitPath(t *testing.T) {
	got := SplitPath("projects/p1/material/cat1/nodes")
	want := []string{"projects", "p1", "material", "cat1", "nodes"}
	if len(got) != len(want) {
		t.Fatalf("SplitPath = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SplitPath = %v, want %v", got, want)
		}
	}
}

func TestPathBuilders(t *testing.T) {
	cases := []struct{ got, want string }{
		{ProjectPath("p1"), "projects/p1"},
		{ChatPath("p1"), "projects/p1/chat"},
		{SpacePath("p1", "material"), "projects/p1/material"},
		{NodesPath("p1", "material", "c1"), "projects/p1/material/c1/nodes"},
		{ChildNodesPath("p1", "material", "c1", "n1"), "projects/p1/material/c1/nodes/n1/childNodes"},
		{EntityPath("p1", "e1"), "projects/p1/entities/e1"},
		{ImagePath("p1", "i1"), "projects/p1/images/i1"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("path = %q, want %q", tc.got, tc.want)
		}
	}
}
