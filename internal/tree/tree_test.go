package tree

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"trellis/api/internal/live"
)

// fakeQuerier is a controllable live-query primitive that counts active
// handles and lets tests deliver snapshots by hand, in any order.
type fakeQuerier struct {
	mu   sync.Mutex
	subs map[string]*fakeSub
}

type fakeSub struct {
	querier   *fakeQuerier
	path      string
	deliver   func(live.Snapshot)
	cancelled bool
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{subs: make(map[string]*fakeSub)}
}

func (q *fakeQuerier) Listen(_ context.Context, path string, deliver func(live.Snapshot)) live.Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	sub := &fakeSub{querier: q, path: path, deliver: deliver}
	q.subs[path] = sub
	return sub
}

func (s *fakeSub) Cancel() {
	s.querier.mu.Lock()
	defer s.querier.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	if s.querier.subs[s.path] == s {
		delete(s.querier.subs, s.path)
	}
}

func (q *fakeQuerier) activeCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.subs)
}

func (q *fakeQuerier) hasSub(path string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.subs[path]
	return ok
}

func (q *fakeQuerier) push(t *testing.T, path string, docs []live.Document) {
	t.Helper()
	q.mu.Lock()
	sub, ok := q.subs[path]
	q.mu.Unlock()
	if !ok {
		t.Fatalf("no active subscription for %s", path)
	}
	sub.deliver(live.Snapshot{Path: path, Docs: docs})
}

func (q *fakeQuerier) pushErr(t *testing.T, path string, err error) {
	t.Helper()
	q.mu.Lock()
	sub, ok := q.subs[path]
	q.mu.Unlock()
	if !ok {
		t.Fatalf("no active subscription for %s", path)
	}
	sub.deliver(live.Snapshot{Path: path, Err: err})
}

func catDocs(t *testing.T, titles map[string]string) []live.Document {
	t.Helper()
	var docs []live.Document
	for id, title := range titles {
		data, err := json.Marshal(map[string]any{"id": id, "title": title})
		if err != nil {
			t.Fatal(err)
		}
		docs = append(docs, live.Document{ID: id, Data: data})
	}
	return docs
}

func itemDocs(t *testing.T, ids ...string) []live.Document {
	t.Helper()
	var docs []live.Document
	for _, id := range ids {
		data, err := json.Marshal(map[string]any{"id": id, "title": "title-" + id, "type": "text"})
		if err != nil {
			t.Fatal(err)
		}
		docs = append(docs, live.Document{ID: id, Data: data})
	}
	return docs
}

func quietStore(q *fakeQuerier) *Store {
	s := NewStore(q)
	s.logf = func(string, ...any) {}
	return s
}

func TestSubscribeFansOut(t *testing.T) {
	q := newFakeQuerier()
	s := quietStore(q)
	s.Subscribe(context.Background(), "p1", "material")

	q.push(t, "projects/p1/material", catDocs(t, map[string]string{"catA": "A", "catB": "B"}))

	if !q.hasSub("projects/p1/material/catA/nodes") || !q.hasSub("projects/p1/material/catB/nodes") {
		t.Fatal("expected one node subscription per category")
	}

	q.push(t, "projects/p1/material/catA/nodes", itemDocs(t, "n1"))
	if !q.hasSub("projects/p1/material/catA/nodes/n1/childNodes") {
		t.Fatal("expected a child subscription per node")
	}

	q.push(t, "projects/p1/material/catA/nodes/n1/childNodes", itemDocs(t, "c1"))

	cats := s.Categories()
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(cats))
	}
	var catA *Category
	for i := range cats {
		if cats[i].ID == "catA" {
			catA = &cats[i]
		}
	}
	if catA == nil || len(catA.Nodes) != 1 || catA.Nodes[0].ID != "n1" {
		t.Fatalf("catA nodes wrong: %+v", catA)
	}
	if len(catA.Nodes[0].ChildNodes) != 1 || catA.Nodes[0].ChildNodes[0].ID != "c1" {
		t.Fatalf("n1 children wrong: %+v", catA.Nodes[0].ChildNodes)
	}
}

func TestCategoryUpdatePreservesFetchedNodes(t *testing.T) {
	q := newFakeQuerier()
	s := quietStore(q)
	s.Subscribe(context.Background(), "p1", "material")

	q.push(t, "projects/p1/material", catDocs(t, map[string]string{"catA": "A"}))
	q.push(t, "projects/p1/material/catA/nodes", itemDocs(t, "n1", "n2"))

	// Rename while the node query stays in flight: children must survive.
	q.push(t, "projects/p1/material", catDocs(t, map[string]string{"catA": "A renamed"}))

	cats := s.Categories()
	if cats[0].Title != "A renamed" {
		t.Errorf("title = %q, want rename applied", cats[0].Title)
	}
	if len(cats[0].Nodes) != 2 {
		t.Fatalf("rename reverted nodes: %+v", cats[0].Nodes)
	}
}

func TestMergeIsOrderIndependent(t *testing.T) {
	run := func(order []func(q *fakeQuerier)) []Category {
		q := newFakeQuerier()
		s := quietStore(q)
		s.Subscribe(context.Background(), "p1", "material")
		q.push(t, "projects/p1/material", catDocs(t, map[string]string{"catA": "A"}))
		for _, step := range order {
			step(q)
		}
		return s.Categories()
	}

	nodesStep := func(q *fakeQuerier) {
		q.push(t, "projects/p1/material/catA/nodes", itemDocs(t, "n1"))
	}
	renameStep := func(q *fakeQuerier) {
		q.push(t, "projects/p1/material", catDocs(t, map[string]string{"catA": "A v2"}))
	}

	a := run([]func(q *fakeQuerier){nodesStep, renameStep})
	b := run([]func(q *fakeQuerier){renameStep, nodesStep})

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("merge depends on arrival order:\n%+v\n%+v", a, b)
	}
}

func TestNodeUpdateLeavesSiblingCategoriesAlone(t *testing.T) {
	q := newFakeQuerier()
	s := quietStore(q)
	s.Subscribe(context.Background(), "p1", "material")

	q.push(t, "projects/p1/material", catDocs(t, map[string]string{"catA": "A", "catB": "B"}))
	q.push(t, "projects/p1/material/catB/nodes", itemDocs(t, "nb"))
	q.push(t, "projects/p1/material/catA/nodes", itemDocs(t, "na1", "na2"))

	for _, cat := range s.Categories() {
		switch cat.ID {
		case "catA":
			if len(cat.Nodes) != 2 {
				t.Errorf("catA nodes = %d, want 2", len(cat.Nodes))
			}
		case "catB":
			if len(cat.Nodes) != 1 || cat.Nodes[0].ID != "nb" {
				t.Errorf("catB disturbed: %+v", cat.Nodes)
			}
		}
	}
}

func TestUnsubscribeCancelsEveryHandle(t *testing.T) {
	q := newFakeQuerier()
	s := quietStore(q)
	s.Subscribe(context.Background(), "p1", "material")

	q.push(t, "projects/p1/material", catDocs(t, map[string]string{"catA": "A", "catB": "B"}))
	q.push(t, "projects/p1/material/catA/nodes", itemDocs(t, "n1", "n2"))
	q.push(t, "projects/p1/material/catB/nodes", itemDocs(t, "n3"))

	if q.activeCount() == 0 {
		t.Fatal("expected live handles before teardown")
	}
	s.Unsubscribe()
	if got := q.activeCount(); got != 0 {
		t.Fatalf("leaked %d subscriptions after unsubscribe", got)
	}
}

func TestResubscribeTearsDownPreviousFanOut(t *testing.T) {
	q := newFakeQuerier()
	s := quietStore(q)
	s.Subscribe(context.Background(), "p1", "material")
	q.push(t, "projects/p1/material", catDocs(t, map[string]string{"catA": "A"}))
	q.push(t, "projects/p1/material/catA/nodes", itemDocs(t, "n1"))

	s.Subscribe(context.Background(), "p1", "conceptual")

	if got := q.activeCount(); got != 1 {
		t.Fatalf("expected only the new root subscription, got %d", got)
	}
	if !q.hasSub("projects/p1/conceptual") {
		t.Fatal("new root subscription missing")
	}
	if len(s.Categories()) != 0 {
		t.Fatal("old pair's tree must not leak into the new one")
	}
}

func TestRemovedCategoryDropsItsSubscriptions(t *testing.T) {
	q := newFakeQuerier()
	s := quietStore(q)
	s.Subscribe(context.Background(), "p1", "material")

	q.push(t, "projects/p1/material", catDocs(t, map[string]string{"catA": "A", "catB": "B"}))
	q.push(t, "projects/p1/material/catB/nodes", itemDocs(t, "nb"))

	q.push(t, "projects/p1/material", catDocs(t, map[string]string{"catA": "A"}))

	if q.hasSub("projects/p1/material/catB/nodes") {
		t.Error("removed category's node subscription still live")
	}
	if q.hasSub("projects/p1/material/catB/nodes/nb/childNodes") {
		t.Error("removed category's child subscription still live")
	}
	if q.activeCount() != 2 { // root + catA nodes
		t.Errorf("active = %d, want 2", q.activeCount())
	}
}

func TestQueryErrorKeepsTreeAndSiblings(t *testing.T) {
	q := newFakeQuerier()
	s := quietStore(q)
	s.Subscribe(context.Background(), "p1", "material")

	q.push(t, "projects/p1/material", catDocs(t, map[string]string{"catA": "A"}))
	q.push(t, "projects/p1/material/catA/nodes", itemDocs(t, "n1"))
	before := s.Categories()
	handles := q.activeCount()

	q.pushErr(t, "projects/p1/material", fmt.Errorf("transient"))
	q.pushErr(t, "projects/p1/material/catA/nodes", fmt.Errorf("transient"))

	if !reflect.DeepEqual(before, s.Categories()) {
		t.Error("error snapshot corrupted the tree")
	}
	if q.activeCount() != handles {
		t.Error("error snapshot must not tear down subscriptions")
	}
}

func TestOnChangeDeliversCopies(t *testing.T) {
	q := newFakeQuerier()
	s := quietStore(q)
	var last []Category
	s.OnChange(func(cats []Category) { last = cats })
	s.Subscribe(context.Background(), "p1", "material")

	q.push(t, "projects/p1/material", catDocs(t, map[string]string{"catA": "A"}))
	if len(last) != 1 || last[0].ID != "catA" {
		t.Fatalf("onChange snapshot wrong: %+v", last)
	}

	// Mutating the callback's copy must not reach the store.
	last[0].Title = "mutated"
	if s.Categories()[0].Title == "mutated" {
		t.Error("onChange must hand out copies")
	}
}
