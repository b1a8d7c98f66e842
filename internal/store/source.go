package store

import (
	"context"
	"encoding/json"
	"fmt"

	"trellis/api/internal/live"
)

// SnapshotReader is the read surface the live layer snapshots from.
type SnapshotReader interface {
	GetProject(ctx context.Context, projectID string) (Project, error)
	ListChatMessages(ctx context.Context, projectID string) ([]ChatMessage, error)
	ListCategories(ctx context.Context, projectID, space string) ([]Category, error)
	ListNodes(ctx context.Context, categoryID string) ([]Node, error)
	ListChildNodes(ctx context.Context, nodeID string) ([]ChildNode, error)
	GetEntity(ctx context.Context, projectID, entityID string) (Entity, error)
	GetImage(ctx context.Context, projectID, imageID string) (Image, error)
}

// SnapshotSource resolves live-query paths against the store. It is the
// server-side half of the live primitive: the bus says "changed", this says
// "changed to what".
type SnapshotSource struct {
	store SnapshotReader
}

func NewSnapshotSource(store SnapshotReader) *SnapshotSource {
	return &SnapshotSource{store: store}
}

func (s *SnapshotSource) Fetch(ctx context.Context, path string) ([]live.Document, error) {
	parts := live.SplitPath(path)
	if len(parts) < 2 || parts[0] != "projects" {
		return nil, fmt.Errorf("unknown live path %q", path)
	}
	projectID := parts[1]

	switch {
	case len(parts) == 2:
		project, err := s.store.GetProject(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("fetch project: %w", err)
		}
		return marshalDocs([]Project{project}, func(p Project) string { return p.ID })

	case len(parts) == 3 && parts[2] == "chat":
		messages, err := s.store.ListChatMessages(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("fetch chat: %w", err)
		}
		return marshalDocs(messages, func(m ChatMessage) string { return m.ID })

	case len(parts) == 3 && ValidSpace(parts[2]):
		categories, err := s.store.ListCategories(ctx, projectID, parts[2])
		if err != nil {
			return nil, fmt.Errorf("fetch categories: %w", err)
		}
		return marshalDocs(categories, func(c Category) string { return c.ID })

	case len(parts) == 5 && ValidSpace(parts[2]) && parts[4] == "nodes":
		nodes, err := s.store.ListNodes(ctx, parts[3])
		if err != nil {
			return nil, fmt.Errorf("fetch nodes: %w", err)
		}
		return marshalDocs(nodes, func(n Node) string { return n.ID })

	case len(parts) == 7 && ValidSpace(parts[2]) && parts[4] == "nodes" && parts[6] == "childNodes":
		children, err := s.store.ListChildNodes(ctx, parts[5])
		if err != nil {
			return nil, fmt.Errorf("fetch child nodes: %w", err)
		}
		return marshalDocs(children, func(c ChildNode) string { return c.ID })

	case len(parts) == 4 && parts[2] == "entities":
		entity, err := s.store.GetEntity(ctx, projectID, parts[3])
		if IsNotFound(err) {
			// Dangling reference: degrade, never fail the snapshot.
			entity = PlaceholderEntity(parts[3])
		} else if err != nil {
			return nil, fmt.Errorf("fetch entity: %w", err)
		}
		return marshalDocs([]Entity{entity}, func(e Entity) string { return e.ID })

	case len(parts) == 4 && parts[2] == "images":
		image, err := s.store.GetImage(ctx, projectID, parts[3])
		if err != nil {
			return nil, fmt.Errorf("fetch image: %w", err)
		}
		return marshalDocs([]Image{image}, func(i Image) string { return i.ID })
	}

	return nil, fmt.Errorf("unknown live path %q", path)
}

func marshalDocs[T any](items []T, id func(T) string) ([]live.Document, error) {
	docs := make([]live.Document, 0, len(items))
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("marshal snapshot doc: %w", err)
		}
		docs = append(docs, live.Document{ID: id(item), Data: data})
	}
	return docs, nil
}
