// Package selection coordinates the single active hierarchy selection
// between tree clicks, the chat attachment and the overlay dialogs.
package selection

import (
	"sync"

	"trellis/api/internal/hierarchy"
)

// Coordinator holds at most one active hierarchy value. Selecting a new one
// discards the old one; there is no stack and no multi-select. Construct one
// per view session and pass it to consumers, selection state lives nowhere
// else.
type Coordinator struct {
	mu        sync.Mutex
	active    *hierarchy.Value
	listeners []func(*hierarchy.Value)
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// OnChange registers a consumer notified with the new selection on every
// Select and Clear. The callback receives nil on deselect.
func (c *Coordinator) OnChange(fn func(*hierarchy.Value)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Select replaces the active selection. Invalid values (broken prefix) are
// ignored rather than propagated; a click can never install a node without
// its category.
func (c *Coordinator) Select(v hierarchy.Value) bool {
	if !v.Valid() {
		return false
	}
	c.notify(&v)
	return true
}

// Clear drops the active selection. Used both for explicit deselect and for
// the post-submit reset; the effect is identical.
func (c *Coordinator) Clear() {
	c.notify(nil)
}

// Active returns the current selection, nil when nothing is selected.
func (c *Coordinator) Active() *hierarchy.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil
	}
	v := *c.active
	return &v
}

func (c *Coordinator) notify(v *hierarchy.Value) {
	c.mu.Lock()
	c.active = v
	listeners := append([]func(*hierarchy.Value){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		if v == nil {
			fn(nil)
			continue
		}
		copied := *v
		fn(&copied)
	}
}
