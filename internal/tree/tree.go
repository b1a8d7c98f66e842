// Package tree maintains a live projection of one (project, space) pair's
// category -> node -> child node hierarchy. A top-level live query on the
// category collection fans out to one query per category on its nodes and one
// per node on its child nodes; fan-out depth is fixed at three.
package tree

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"trellis/api/internal/live"
)

type Category struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	SortOrder   int    `json:"sortOrder"`
	Nodes       []Node `json:"nodes"`
}

type Node struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Type        string      `json:"type"`
	Images      []string    `json:"images,omitempty"`
	Palette     []string    `json:"palette,omitempty"`
	EntityIDs   []string    `json:"entityIds,omitempty"`
	SortOrder   int         `json:"sortOrder"`
	ChildNodes  []ChildNode `json:"childNodes"`
}

type ChildNode struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Images      []string `json:"images,omitempty"`
	Palette     []string `json:"palette,omitempty"`
	EntityIDs   []string `json:"entityIds,omitempty"`
	SortOrder   int      `json:"sortOrder"`
}

// Store mirrors the remote hierarchy for one (project, space) pair at a time.
// It is mutated only from subscription callbacks; readers get copies.
type Store struct {
	queries live.Querier
	logf    func(format string, args ...any)

	mu         sync.Mutex
	sess       *session
	categories []Category
	onChange   func([]Category)
}

// session owns one full fan-out of subscription handles. Teardown is a
// post-order traversal: child node handles first, then node handles, then the
// category handle.
type session struct {
	projectID string
	space     string
	root      live.Handle
	cats      map[string]*catWatch
}

type catWatch struct {
	handle live.Handle
	nodes  map[string]live.Handle
}

func NewStore(queries live.Querier) *Store {
	return &Store{queries: queries, logf: log.Printf}
}

// OnChange registers a callback invoked with a copy of the tree after every
// applied snapshot. Set before Subscribe.
func (s *Store) OnChange(fn func([]Category)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Subscribe establishes the fan-out for (projectID, space). Any previous
// fan-out is torn down completely first, so snapshots from the old pair can
// never land in the new tree.
func (s *Store) Subscribe(ctx context.Context, projectID, space string) {
	s.Unsubscribe()

	sess := &session{projectID: projectID, space: space, cats: make(map[string]*catWatch)}

	s.mu.Lock()
	s.sess = sess
	s.categories = nil
	s.mu.Unlock()

	sess.root = s.queries.Listen(ctx, live.SpacePath(projectID, space), func(snap live.Snapshot) {
		s.applyCategories(ctx, sess, snap)
	})
}

// Unsubscribe cancels the whole fan-out transitively; no handle survives.
func (s *Store) Unsubscribe() {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()

	if sess == nil {
		return
	}
	for _, cat := range sess.cats {
		for _, nodeHandle := range cat.nodes {
			nodeHandle.Cancel()
		}
		cat.handle.Cancel()
	}
	if sess.root != nil {
		sess.root.Cancel()
	}
}

// Categories returns a deep copy of the current tree.
func (s *Store) Categories() []Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyTree(s.categories)
}

func (s *Store) applyCategories(ctx context.Context, sess *session, snap live.Snapshot) {
	if snap.Err != nil {
		// Transient query error: keep the current tree, siblings stay live.
		s.logf("tree: category query for %s/%s: %v", sess.projectID, sess.space, snap.Err)
		return
	}

	var stale []live.Handle

	s.mu.Lock()
	if s.sess != sess {
		s.mu.Unlock()
		return
	}

	existing := make(map[string]*Category, len(s.categories))
	for i := range s.categories {
		existing[s.categories[i].ID] = &s.categories[i]
	}

	merged := make([]Category, 0, len(snap.Docs))
	seen := make(map[string]bool, len(snap.Docs))
	for _, doc := range snap.Docs {
		var category Category
		if err := json.Unmarshal(doc.Data, &category); err != nil {
			s.logf("tree: decode category %s: %v", doc.ID, err)
			continue
		}
		// A category update replaces its own fields but must not revert
		// already-fetched children while deeper queries are in flight.
		if old, ok := existing[category.ID]; ok {
			category.Nodes = old.Nodes
		}
		merged = append(merged, category)
		seen[category.ID] = true
	}
	s.categories = merged

	for id, watch := range sess.cats {
		if !seen[id] {
			for _, nodeHandle := range watch.nodes {
				stale = append(stale, nodeHandle)
			}
			stale = append(stale, watch.handle)
			delete(sess.cats, id)
		}
	}
	for id := range seen {
		if _, ok := sess.cats[id]; ok {
			continue
		}
		categoryID := id
		watch := &catWatch{nodes: make(map[string]live.Handle)}
		sess.cats[categoryID] = watch
		watch.handle = s.queries.Listen(ctx, live.NodesPath(sess.projectID, sess.space, categoryID), func(snap live.Snapshot) {
			s.applyNodes(ctx, sess, categoryID, snap)
		})
	}
	s.mu.Unlock()

	// Cancel outside the lock: a cancelled subscription's callback may be
	// blocked on the same mutex.
	for _, h := range stale {
		h.Cancel()
	}
	s.notify()
}

func (s *Store) applyNodes(ctx context.Context, sess *session, categoryID string, snap live.Snapshot) {
	if snap.Err != nil {
		s.logf("tree: node query for category %s: %v", categoryID, snap.Err)
		return
	}

	var stale []live.Handle

	s.mu.Lock()
	if s.sess != sess {
		s.mu.Unlock()
		return
	}
	watch, ok := sess.cats[categoryID]
	if !ok {
		s.mu.Unlock()
		return
	}

	category := s.findCategory(categoryID)
	if category == nil {
		// Node snapshot beat the category snapshot; park it until the owning
		// category appears by leaving the subscription untouched. The next
		// invalidation re-delivers.
		s.mu.Unlock()
		return
	}

	existing := make(map[string]*Node, len(category.Nodes))
	for i := range category.Nodes {
		existing[category.Nodes[i].ID] = &category.Nodes[i]
	}

	merged := make([]Node, 0, len(snap.Docs))
	seen := make(map[string]bool, len(snap.Docs))
	for _, doc := range snap.Docs {
		var node Node
		if err := json.Unmarshal(doc.Data, &node); err != nil {
			s.logf("tree: decode node %s: %v", doc.ID, err)
			continue
		}
		if old, ok := existing[node.ID]; ok {
			node.ChildNodes = old.ChildNodes
		}
		merged = append(merged, node)
		seen[node.ID] = true
	}
	// Only this category's node list changes; sibling categories untouched.
	category.Nodes = merged

	for id, nodeHandle := range watch.nodes {
		if !seen[id] {
			stale = append(stale, nodeHandle)
			delete(watch.nodes, id)
		}
	}
	for id := range seen {
		if _, ok := watch.nodes[id]; ok {
			continue
		}
		nodeID := id
		watch.nodes[nodeID] = s.queries.Listen(ctx, live.ChildNodesPath(sess.projectID, sess.space, categoryID, nodeID), func(snap live.Snapshot) {
			s.applyChildNodes(sess, categoryID, nodeID, snap)
		})
	}
	s.mu.Unlock()

	for _, h := range stale {
		h.Cancel()
	}
	s.notify()
}

func (s *Store) applyChildNodes(sess *session, categoryID, nodeID string, snap live.Snapshot) {
	if snap.Err != nil {
		s.logf("tree: child node query for node %s: %v", nodeID, snap.Err)
		return
	}

	s.mu.Lock()
	if s.sess != sess {
		s.mu.Unlock()
		return
	}

	node := s.findNode(categoryID, nodeID)
	if node == nil {
		s.mu.Unlock()
		return
	}

	merged := make([]ChildNode, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		var child ChildNode
		if err := json.Unmarshal(doc.Data, &child); err != nil {
			s.logf("tree: decode child node %s: %v", doc.ID, err)
			continue
		}
		merged = append(merged, child)
	}
	node.ChildNodes = merged
	s.mu.Unlock()

	s.notify()
}

func (s *Store) findCategory(categoryID string) *Category {
	for i := range s.categories {
		if s.categories[i].ID == categoryID {
			return &s.categories[i]
		}
	}
	return nil
}

func (s *Store) findNode(categoryID, nodeID string) *Node {
	category := s.findCategory(categoryID)
	if category == nil {
		return nil
	}
	for i := range category.Nodes {
		if category.Nodes[i].ID == nodeID {
			return &category.Nodes[i]
		}
	}
	return nil
}

func (s *Store) notify() {
	s.mu.Lock()
	fn := s.onChange
	snapshot := copyTree(s.categories)
	s.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}

func copyTree(categories []Category) []Category {
	out := make([]Category, len(categories))
	for i, category := range categories {
		category.Nodes = append([]Node(nil), category.Nodes...)
		for j, node := range category.Nodes {
			node.ChildNodes = append([]ChildNode(nil), node.ChildNodes...)
			category.Nodes[j] = node
		}
		out[i] = category
	}
	return out
}
