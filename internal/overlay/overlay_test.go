package overlay

import (
	"context"
	"errors"
	"testing"

	"trellis/api/internal/hierarchy"
	"trellis/api/internal/selection"
)

type fakeSubmitter struct {
	calls int
	err   error

	gotProjectID   string
	gotAttached    hierarchy.Value
	gotName        string
	gotDescription string
}

func (f *fakeSubmitter) Create(_ context.Context, projectID string, attached hierarchy.Value, name, description string) error {
	f.calls++
	f.gotProjectID = projectID
	f.gotAttached = attached
	f.gotName = name
	f.gotDescription = description
	return f.err
}

func catSelection() *hierarchy.Value {
	v := hierarchy.Construct(hierarchy.SpaceMaterial, &hierarchy.Ref{ID: "cat1", Title: "Places"}, nil, nil)
	return &v
}

func TestFormTypeFollowsSelectionDepth(t *testing.T) {
	o := New(&fakeSubmitter{}, nil)

	o.Open("p1", hierarchy.SpaceMaterial, nil)
	if got := o.FormType(); got != hierarchy.AddCategory {
		t.Errorf("empty selection FormType = %v, want category", got)
	}

	o.Open("p1", hierarchy.SpaceMaterial, catSelection())
	if got := o.FormType(); got != hierarchy.AddNode {
		t.Errorf("category selection FormType = %v, want node", got)
	}
}

func TestSubmitBlocksOnEmptyDescription(t *testing.T) {
	sub := &fakeSubmitter{}
	o := New(sub, nil)
	o.Open("p1", hierarchy.SpaceMaterial, catSelection())
	o.SetForm("A name", "   ")

	if err := o.Submit(context.Background()); err != nil {
		t.Fatalf("local validation must not return an error: %v", err)
	}
	if sub.calls != 0 {
		t.Fatal("validation failure still sent a request")
	}
	if o.Phase() != PhaseOpen {
		t.Fatal("dialog closed on validation failure")
	}
	if o.Err() == "" {
		t.Fatal("no validation message surfaced")
	}
}

func TestSubmitSuccessClosesAndClearsSelection(t *testing.T) {
	sel := selection.NewCoordinator()
	sel.Select(*catSelection())

	sub := &fakeSubmitter{}
	o := New(sub, sel)
	o.Open("p1", hierarchy.SpaceMaterial, catSelection())
	o.SetForm("Harbor", "Where the ships dock")

	if err := o.Submit(context.Background()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if sub.calls != 1 {
		t.Fatalf("calls = %d, want exactly one request", sub.calls)
	}
	if sub.gotProjectID != "p1" || sub.gotName != "Harbor" || sub.gotDescription != "Where the ships dock" {
		t.Fatalf("request fields wrong: %+v", sub)
	}
	if sub.gotAttached.Category == nil || sub.gotAttached.Category.ID != "cat1" {
		t.Fatalf("attached hierarchy wrong: %+v", sub.gotAttached)
	}
	if o.Phase() != PhaseClosed {
		t.Fatal("dialog still open after success")
	}
	if sel.Active() != nil {
		t.Fatal("selection survived a successful submit")
	}
}

func TestSelectionListenerMayReadOverlayDuringClear(t *testing.T) {
	sel := selection.NewCoordinator()
	sel.Select(*catSelection())

	o := New(&fakeSubmitter{}, sel)

	var seen []Phase
	sel.OnChange(func(v *hierarchy.Value) {
		if v == nil {
			seen = append(seen, o.Phase())
		}
	})

	o.Open("p1", hierarchy.SpaceMaterial, catSelection())
	o.SetForm("Harbor", "Where the ships dock")
	if err := o.Submit(context.Background()); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if len(seen) != 1 {
		t.Fatalf("deselect notifications = %d, want 1", len(seen))
	}
	if seen[0] != PhaseClosed {
		t.Fatalf("listener saw phase %v, want closed", seen[0])
	}
}

func TestSubmitFailureKeepsInputAndVerbatimError(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("a node with this title already exists")}
	o := New(sub, nil)
	o.Open("p1", hierarchy.SpaceMaterial, catSelection())
	o.SetForm("Harbor", "Where the ships dock")

	if err := o.Submit(context.Background()); err == nil {
		t.Fatal("expected server error to propagate")
	}
	if o.Phase() != PhaseOpen {
		t.Fatal("dialog must reopen after a server failure")
	}
	if got := o.Err(); got != "a node with this title already exists" {
		t.Fatalf("error must be verbatim, got %q", got)
	}
	if form := o.Form(); form.Name != "Harbor" || form.Description != "Where the ships dock" {
		t.Fatalf("form input lost: %+v", form)
	}

	// Retry works without re-entry.
	sub.err = nil
	if err := o.Submit(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if sub.calls != 2 || o.Phase() != PhaseClosed {
		t.Fatalf("retry did not complete: calls=%d phase=%v", sub.calls, o.Phase())
	}
}

func TestSubmitWhenClosedIsNoOp(t *testing.T) {
	sub := &fakeSubmitter{}
	o := New(sub, nil)
	if err := o.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sub.calls != 0 {
		t.Fatal("closed dialog must not submit")
	}
}

func TestCloseDropsState(t *testing.T) {
	o := New(&fakeSubmitter{}, nil)
	o.Open("p1", hierarchy.SpaceMaterial, nil)
	o.SetForm("Harbor", "docks")
	o.Close()

	if o.Phase() != PhaseClosed {
		t.Fatal("phase not closed")
	}
	if form := o.Form(); form.Name != "" || form.Description != "" {
		t.Fatalf("form survived Close: %+v", form)
	}
}
