// Package suggest turns "like" clicks on assistant suggestions into outbound
// mutation requests, with an optimistic time-boxed animation and an
// idempotent-click guard.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"trellis/api/internal/anim"
	"trellis/api/internal/client"
	"trellis/api/internal/live"
)

// Kind is the discriminated action tag of a suggestion; dispatch switches on
// it, never on payload shape.
type Kind string

const (
	KindNodes    Kind = "nodes"
	KindImages   Kind = "images"
	KindEntities Kind = "entities"
)

// State is the per-suggestion like lifecycle. Pending exists so the guard
// against double clicks is real state, not a UI side effect: the control is
// dead from the first click, before the server answers.
type State int

const (
	StateUnliked State = iota
	StatePending
	StateLiked
)

type Suggestion struct {
	Kind        Kind   `json:"kind"`
	Space       string `json:"space,omitempty"`
	MessageID   string `json:"messageId"`
	Index       int    `json:"index"`
	Title       string `json:"title"`
	Description string `json:"description"`
	// Node suggestions carry the proposed node and, when the category does
	// not exist yet, the category to create alongside it.
	NodeID              string `json:"nodeId,omitempty"`
	CategoryID          string `json:"categoryId,omitempty"`
	CategoryTitle       string `json:"categoryTitle,omitempty"`
	CategoryDescription string `json:"categoryDescription,omitempty"`
	// Image suggestions carry the rendered image location.
	URL string `json:"url,omitempty"`
	// Entity suggestions reference a stored entity.
	EntityID string `json:"entityId,omitempty"`
}

// API is the outbound request surface, satisfied by *client.Client.
type API interface {
	LikeSuggestion(ctx context.Context, req client.LikeSuggestionRequest) error
	LikeImage(ctx context.Context, req client.LikeImageRequest) error
	LikeEntity(ctx context.Context, projectID, entityID, messageID string) error
}

type stateKey struct {
	messageID string
	index     int
	kind      Kind
}

// Dispatcher tracks like state per suggestion and issues exactly one request
// per like.
type Dispatcher struct {
	api   API
	anims *anim.Queue
	logf  func(format string, args ...any)

	mu     sync.Mutex
	states map[stateKey]State
}

func NewDispatcher(api API, anims *anim.Queue) *Dispatcher {
	return &Dispatcher{
		api:    api,
		anims:  anims,
		logf:   log.Printf,
		states: make(map[stateKey]State),
	}
}

// State reports the like lifecycle for a suggestion.
func (d *Dispatcher) State(s Suggestion) State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.states[stateKey{s.MessageID, s.Index, s.Kind}]
}

// Like dispatches one outbound request for the suggestion. A suggestion that
// is already pending or liked is a no-op, however many times it is clicked.
// The animation plays unconditionally on dispatch; a failed request is logged
// and returns the suggestion to unliked, but the animation is not retracted.
func (d *Dispatcher) Like(ctx context.Context, projectID string, s Suggestion, zone anim.Zone, x, y float64) error {
	key := stateKey{s.MessageID, s.Index, s.Kind}

	d.mu.Lock()
	if d.states[key] != StateUnliked {
		d.mu.Unlock()
		return nil
	}
	d.states[key] = StatePending
	d.mu.Unlock()

	if d.anims != nil {
		d.anims.Emit(s.Title, zone, x, y)
	}

	err := d.dispatch(ctx, projectID, s)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.logf("suggest: like %s %s[%d]: %v", s.Kind, s.MessageID, s.Index, err)
		d.states[key] = StateUnliked
		return err
	}
	d.states[key] = StateLiked
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, projectID string, s Suggestion) error {
	switch s.Kind {
	case KindNodes:
		return d.api.LikeSuggestion(ctx, client.LikeSuggestionRequest{
			ProjectID:           projectID,
			Space:               s.Space,
			MessageID:           s.MessageID,
			SuggestionIndex:     s.Index,
			Type:                string(s.Kind),
			NodeID:              s.NodeID,
			CategoryID:          s.CategoryID,
			Title:               s.Title,
			Description:         s.Description,
			CategoryTitle:       s.CategoryTitle,
			CategoryDescription: s.CategoryDescription,
		})
	case KindImages:
		return d.api.LikeImage(ctx, client.LikeImageRequest{
			ProjectID:       projectID,
			MessageID:       s.MessageID,
			SuggestionIndex: s.Index,
			Title:           s.Title,
			Description:     s.Description,
			URL:             s.URL,
		})
	case KindEntities:
		return d.api.LikeEntity(ctx, projectID, s.EntityID, s.MessageID)
	default:
		return fmt.Errorf("unknown suggestion kind %q", s.Kind)
	}
}

// Entity is the resolved view of a referenced entity.
type Entity struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Liked       bool   `json:"liked"`
}

// ResolveEntities loads the entities referenced by a suggestion list. An id
// with no backing document resolves to the placeholder, never an error; the
// panel renders what it can.
func ResolveEntities(ctx context.Context, src live.Source, projectID string, ids []string) []Entity {
	out := make([]Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, resolveEntity(ctx, src, projectID, id))
	}
	return out
}

func resolveEntity(ctx context.Context, src live.Source, projectID, id string) Entity {
	placeholder := Entity{ID: id, Title: "Unknown Entity", Description: ""}
	docs, err := src.Fetch(ctx, live.EntityPath(projectID, id))
	if err != nil || len(docs) == 0 {
		return placeholder
	}
	var entity Entity
	if err := json.Unmarshal(docs[0].Data, &entity); err != nil {
		return placeholder
	}
	if entity.Title == "" {
		entity.Title = placeholder.Title
	}
	return entity
}
