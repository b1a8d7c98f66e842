package store

import (
	"encoding/json"
	"time"
)

// Spaces are the two parallel taxonomies every project carries.
const (
	SpaceMaterial   = "material"
	SpaceConceptual = "conceptual"
)

func ValidSpace(space string) bool {
	return space == SpaceMaterial || space == SpaceConceptual
}

// Node payload types.
const (
	NodeTypeText    = "text"
	NodeTypeImage   = "image"
	NodeTypePalette = "palette"
)

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Category struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Space       string    `json:"space"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	SortOrder   int       `json:"sortOrder"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Node struct {
	ID          string    `json:"id"`
	CategoryID  string    `json:"categoryId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	Images      []string  `json:"images,omitempty"`
	Palette     []string  `json:"palette,omitempty"`
	EntityIDs   []string  `json:"entityIds,omitempty"`
	SortOrder   int       `json:"sortOrder"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ChildNode has the node shape one level down; the tree is exactly three
// levels deep, so child nodes carry no nested children of their own.
type ChildNode struct {
	ID          string    `json:"id"`
	NodeID      string    `json:"nodeId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	Images      []string  `json:"images,omitempty"`
	Palette     []string  `json:"palette,omitempty"`
	EntityIDs   []string  `json:"entityIds,omitempty"`
	SortOrder   int       `json:"sortOrder"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Entity struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Liked       bool      `json:"liked"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PlaceholderEntity stands in for a referenced entity id with no backing row.
// A dangling reference degrades to this value, it never propagates as an error.
func PlaceholderEntity(id string) Entity {
	return Entity{ID: id, Title: "Unknown Entity", Description: ""}
}

type Image struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"projectId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Liked       bool      `json:"liked"`
	CreatedAt   time.Time `json:"createdAt"`
}

type ChatMessage struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"projectId"`
	Role        string          `json:"role"`
	Body        string          `json:"body"`
	Hierarchy   json.RawMessage `json:"hierarchy,omitempty"`
	Suggestions json.RawMessage `json:"suggestions,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// SuggestionLike records that one suggestion inside a chat message was liked.
// Kind matches the dispatch action tag: nodes, images or entities.
type SuggestionLike struct {
	MessageID string    `json:"messageId"`
	Index     int       `json:"index"`
	Kind      string    `json:"kind"`
	LikedAt   time.Time `json:"likedAt"`
}
