package selection

import (
	"testing"

	"trellis/api/internal/hierarchy"
)

func refTo(id string) *hierarchy.Ref {
	return &hierarchy.Ref{ID: id, Title: "title-" + id}
}

func TestSelectReplacesActive(t *testing.T) {
	c := NewCoordinator()

	first := hierarchy.Construct(hierarchy.SpaceMaterial, refTo("cat1"), nil, nil)
	second := hierarchy.Construct(hierarchy.SpaceMaterial, refTo("n1"), refTo("cat2"), nil)

	if !c.Select(first) || !c.Select(second) {
		t.Fatal("valid selections rejected")
	}

	active := c.Active()
	if active == nil || active.Category.ID != "cat2" || active.Node.ID != "n1" {
		t.Fatalf("active = %+v, want the second selection", active)
	}
}

func TestSelectRejectsBrokenPrefix(t *testing.T) {
	c := NewCoordinator()
	c.Select(hierarchy.Construct(hierarchy.SpaceMaterial, refTo("cat1"), nil, nil))

	bad := hierarchy.Value{Space: hierarchy.SpaceMaterial, Node: refTo("orphan")}
	if c.Select(bad) {
		t.Fatal("selection without a category must be rejected")
	}
	if active := c.Active(); active == nil || active.Category.ID != "cat1" {
		t.Fatalf("rejected select clobbered the active value: %+v", active)
	}
}

func TestClearNotifiesWithNil(t *testing.T) {
	c := NewCoordinator()

	var calls []*hierarchy.Value
	c.OnChange(func(v *hierarchy.Value) { calls = append(calls, v) })

	c.Select(hierarchy.Construct(hierarchy.SpaceConceptual, refTo("cat1"), nil, nil))
	c.Clear()

	if len(calls) != 2 {
		t.Fatalf("got %d notifications, want 2", len(calls))
	}
	if calls[0] == nil || calls[1] != nil {
		t.Fatalf("notifications wrong: %+v", calls)
	}
	if c.Active() != nil {
		t.Fatal("active survived Clear")
	}
}

func TestListenersGetCopies(t *testing.T) {
	c := NewCoordinator()

	var seen *hierarchy.Value
	c.OnChange(func(v *hierarchy.Value) { seen = v })

	c.Select(hierarchy.Construct(hierarchy.SpaceMaterial, refTo("cat1"), nil, nil))
	seen.Category = refTo("hijacked")

	if c.Active().Category.ID != "cat1" {
		t.Fatal("listener mutation reached the coordinator")
	}
}
