// Package hierarchy defines the selection path through the three-level tree
// (category, node, child node) within one space.
package hierarchy

// Space is one of the two parallel taxonomies of a project.
type Space string

const (
	SpaceMaterial   Space = "material"
	SpaceConceptual Space = "conceptual"
)

// Ref identifies one tree item at any level.
type Ref struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Value is a selection path. Non-nil fields form a contiguous prefix: a node
// requires a category, a child node requires a node. Values are constructed
// fresh on every click and replaced wholesale, never mutated in place.
type Value struct {
	Space     Space `json:"space"`
	Category  *Ref  `json:"category"`
	Node      *Ref  `json:"node"`
	ChildNode *Ref  `json:"childNode"`
}

// AddKind is the kind of item the current selection depth would add next.
type AddKind int

const (
	AddCategory AddKind = iota
	AddNode
	AddEntity
	// AddNone means the path is fully populated; nothing further attaches.
	AddNone
)

func (k AddKind) String() string {
	switch k {
	case AddCategory:
		return "category"
	case AddNode:
		return "node"
	case AddEntity:
		return "entity"
	default:
		return "none"
	}
}

// Construct builds the selection for a click at any tree depth. clicked is
// the item the user clicked; parent and grandparent are its ancestor chain,
// nil when absent. The deepest non-nil field of the result is always the
// clicked item:
//
//	category click:   (clicked, nil, nil)      -> {clicked, nil, nil}
//	node click:       (clicked, cat, nil)      -> {cat, clicked, nil}
//	child node click: (clicked, node, cat)     -> {cat, node, clicked}
func Construct(space Space, clicked, parent, grandparent *Ref) Value {
	v := Value{Space: space}
	switch {
	case grandparent != nil:
		v.Category = grandparent
		v.Node = parent
		v.ChildNode = clicked
	case parent != nil:
		v.Category = parent
		v.Node = clicked
	default:
		v.Category = clicked
	}
	return v
}

// Valid reports whether the non-nil fields form a contiguous prefix.
func (v Value) Valid() bool {
	if v.Node != nil && v.Category == nil {
		return false
	}
	if v.ChildNode != nil && v.Node == nil {
		return false
	}
	return true
}

// ToAdd derives what the next addition at this selection depth creates.
func (v Value) ToAdd() AddKind {
	switch {
	case v.Category == nil:
		return AddCategory
	case v.Node == nil:
		return AddNode
	case v.ChildNode == nil:
		return AddEntity
	default:
		return AddNone
	}
}

// Deepest returns the deepest non-nil ref, or nil for an empty selection.
func (v Value) Deepest() *Ref {
	switch {
	case v.ChildNode != nil:
		return v.ChildNode
	case v.Node != nil:
		return v.Node
	default:
		return v.Category
	}
}
