// Package overlay drives the manual-add dialog: a small state machine from
// Closed through Open and Submitting and back.
package overlay

import (
	"context"
	"strings"
	"sync"

	"trellis/api/internal/hierarchy"
	"trellis/api/internal/selection"
)

type Phase int

const (
	PhaseClosed Phase = iota
	PhaseOpen
	PhaseSubmitting
)

type Form struct {
	Name        string
	Description string
}

// Submitter issues the single outbound create request for a submission.
type Submitter interface {
	Create(ctx context.Context, projectID string, attached hierarchy.Value, name, description string) error
}

// Overlay owns the add-entity dialog state. The form type is derived from
// the attached hierarchy with the same prefix rule as the selection itself:
// no category selected adds a category, category-only adds a node, deeper
// adds an entity. The overlay never mutates the tree locally; after a
// successful submit the tree catches up through its own live query.
type Overlay struct {
	submitter Submitter
	selection *selection.Coordinator

	mu        sync.Mutex
	phase     Phase
	projectID string
	attached  hierarchy.Value
	form      Form
	errMsg    string
}

func New(submitter Submitter, sel *selection.Coordinator) *Overlay {
	return &Overlay{submitter: submitter, selection: sel}
}

// Open shows the dialog pre-filled from the current selection. A nil
// selection opens the category form for the given space.
func (o *Overlay) Open(projectID string, space hierarchy.Space, attached *hierarchy.Value) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.phase = PhaseOpen
	o.projectID = projectID
	if attached != nil {
		o.attached = *attached
	} else {
		o.attached = hierarchy.Value{Space: space}
	}
	o.form = Form{}
	o.errMsg = ""
}

// Close dismisses the dialog and drops its state.
func (o *Overlay) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phase = PhaseClosed
	o.form = Form{}
	o.errMsg = ""
}

// SetForm records user input. Input survives a failed submit.
func (o *Overlay) SetForm(name, description string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.form.Name = name
	o.form.Description = description
}

// FormType is what submitting would create at the current selection depth. A
// fully populated selection still offers the entity form; the entity attaches
// to the child node instead of deepening the tree.
func (o *Overlay) FormType() hierarchy.AddKind {
	o.mu.Lock()
	defer o.mu.Unlock()
	kind := o.attached.ToAdd()
	if kind == hierarchy.AddNone {
		kind = hierarchy.AddEntity
	}
	return kind
}

func (o *Overlay) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Overlay) Form() Form {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.form
}

// Err returns the current validation or server error, empty when none.
func (o *Overlay) Err() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.errMsg
}

// Submit validates locally, then issues exactly one create request. An empty
// name or description blocks the request and surfaces a validation error with
// the dialog still open. A server failure reopens the dialog with the
// server's message verbatim and the form intact. Success closes the dialog
// and clears the active selection.
func (o *Overlay) Submit(ctx context.Context) error {
	o.mu.Lock()
	if o.phase != PhaseOpen {
		o.mu.Unlock()
		return nil
	}
	if strings.TrimSpace(o.form.Name) == "" || strings.TrimSpace(o.form.Description) == "" {
		o.errMsg = "name and description are required"
		o.mu.Unlock()
		return nil
	}
	o.phase = PhaseSubmitting
	o.errMsg = ""
	projectID := o.projectID
	attached := o.attached
	form := o.form
	o.mu.Unlock()

	err := o.submitter.Create(ctx, projectID, attached, form.Name, form.Description)

	o.mu.Lock()
	if err != nil {
		o.phase = PhaseOpen
		o.errMsg = err.Error()
		o.mu.Unlock()
		return err
	}
	o.phase = PhaseClosed
	o.form = Form{}
	o.mu.Unlock()

	// Clear outside the lock; selection listeners may read overlay state.
	if o.selection != nil {
		o.selection.Clear()
	}
	return nil
}
