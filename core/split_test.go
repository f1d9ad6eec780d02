package core

import (
	"testing"

	"pgregory.net/rapid"
	"pkt.systems/webmux/schema"
)

func TestClassifyDropZone(t *testing.T) {
	cases := []struct {
		name string
		x, y float64
		want DropZone
	}{
		{"left band", 2, 50, DropLeft},
		{"right band", 98, 50, DropRight},
		{"top band", 50, 5, DropTop},
		{"bottom band", 50, 97, DropBottom},
		{"dead center", 50, 50, DropCenterAfter},
		{"center left half", 40, 50, DropCenterBefore},
		{"corner prefers vertical", 5, 5, DropTop},
		{"bottom corner prefers vertical", 95, 95, DropBottom},
		{"threshold boundary is edge", schema.DropEdgeThresholdPercent, 50, DropLeft},
		{"just inside center", schema.DropEdgeThresholdPercent + 0.1, 50, DropCenterBefore},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyDropZone(tc.x, tc.y); got != tc.want {
				t.Fatalf("(%v,%v): expected %q, got %q", tc.x, tc.y, tc.want, got)
			}
		})
	}
}

func newTestEngine(t *testing.T) (*Engine, *Store) {
	t.Helper()
	store, _ := newTestStore(t)
	return NewEngine(store, nil), store
}

func TestMergeCreatesReadingOrderSplit(t *testing.T) {
	engine, store := newTestEngine(t)
	addRecord(t, store, "src")
	addRecord(t, store, "dst")

	if err := engine.Merge("src", "dst", DropRight); err != nil {
		t.Fatalf("merge: %v", err)
	}
	target, _ := store.Get("dst")
	if target.SplitLayout.Type != schema.SplitVertical {
		t.Fatalf("expected vertical split, got %q", target.SplitLayout.Type)
	}
	panes := target.SplitLayout.Panes
	if len(panes) != 2 {
		t.Fatalf("expected 2 panes, got %d", len(panes))
	}
	// Drop on the right edge puts the source on the right; reading order
	// still lists left before right.
	if panes[0].TerminalID != "dst" || panes[0].Position != schema.PaneLeft {
		t.Fatalf("unexpected first pane %+v", panes[0])
	}
	if panes[1].TerminalID != "src" || panes[1].Position != schema.PaneRight {
		t.Fatalf("unexpected second pane %+v", panes[1])
	}
	source, _ := store.Get("src")
	if !source.IsHidden {
		t.Fatalf("expected merged source hidden from the tab strip")
	}
	if store.Active() != "dst" {
		t.Fatalf("expected container active")
	}
	if store.Focused() != "src" {
		t.Fatalf("expected dragged terminal focused")
	}
}

func TestMergeRejectsCenterZone(t *testing.T) {
	engine, store := newTestEngine(t)
	addRecord(t, store, "src")
	addRecord(t, store, "dst")
	if err := engine.Merge("src", "dst", DropCenterAfter); err != schema.ErrSplitRejected {
		t.Fatalf("expected ErrSplitRejected, got %v", err)
	}
}

func TestMergeRejectsNesting(t *testing.T) {
	engine, store := newTestEngine(t)
	addRecord(t, store, "a")
	addRecord(t, store, "b")
	addRecord(t, store, "c")
	if err := engine.Merge("a", "b", DropLeft); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	// The container must not become a pane, and a pane must not host a split.
	if err := engine.Merge("c", "b", DropTop); err != schema.ErrSplitRejected {
		t.Fatalf("expected split container rejected as target, got %v", err)
	}
	if err := engine.Merge("c", "a", DropTop); err != schema.ErrSplitRejected {
		t.Fatalf("expected pane rejected as target, got %v", err)
	}
	if err := engine.Merge("a", "c", DropTop); err != schema.ErrSplitRejected {
		t.Fatalf("expected pane rejected as source, got %v", err)
	}
	// The rejected merges must not have mutated anything.
	c, _ := store.Get("c")
	if c.IsSplit() || c.IsHidden {
		t.Fatalf("rejected merge mutated record: %+v", c)
	}
}

func TestMergeRejectsSelf(t *testing.T) {
	engine, store := newTestEngine(t)
	addRecord(t, store, "a")
	if err := engine.Merge("a", "a", DropLeft); err != schema.ErrSplitRejected {
		t.Fatalf("expected ErrSplitRejected, got %v", err)
	}
}

func TestUnsplitCollapsesToSurvivor(t *testing.T) {
	engine, store := newTestEngine(t)
	addRecord(t, store, "a")
	addRecord(t, store, "b")
	if err := engine.Merge("a", "b", DropLeft); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := engine.Unsplit("a"); err != nil {
		t.Fatalf("unsplit: %v", err)
	}
	container, _ := store.Get("b")
	if container.IsSplit() {
		t.Fatalf("expected container collapsed, got %+v", container.SplitLayout)
	}
	a, _ := store.Get("a")
	if a.IsHidden {
		t.Fatalf("expected released pane visible")
	}
	if store.Active() != "b" {
		t.Fatalf("expected survivor active")
	}
}

func TestUnsplitSurvivorIsContainerItself(t *testing.T) {
	engine, store := newTestEngine(t)
	addRecord(t, store, "a")
	addRecord(t, store, "b")
	if err := engine.Merge("a", "b", DropLeft); err != nil {
		t.Fatalf("merge: %v", err)
	}
	// Removing the container's own pane leaves the dragged terminal.
	if err := engine.Unsplit("b"); err != nil {
		t.Fatalf("unsplit: %v", err)
	}
	container, _ := store.Get("b")
	if container.IsSplit() {
		t.Fatalf("expected container collapsed")
	}
	a, _ := store.Get("a")
	if a.IsHidden {
		t.Fatalf("expected survivor unhidden")
	}
	if store.Active() != "a" {
		t.Fatalf("expected survivor active, got %q", store.Active())
	}
}

func TestRepairAfterRemovalUnsplitsContainer(t *testing.T) {
	engine, store := newTestEngine(t)
	addRecord(t, store, "a")
	addRecord(t, store, "b")
	if err := engine.Merge("a", "b", DropLeft); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := store.Remove("a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	engine.RepairAfterRemoval("a")
	container, _ := store.Get("b")
	if container.IsSplit() {
		t.Fatalf("expected dangling pane repaired, got %+v", container.SplitLayout)
	}
}

func TestRepairAfterRemovalReleasesOrphanedPanes(t *testing.T) {
	engine, store := newTestEngine(t)
	addRecord(t, store, "a")
	addRecord(t, store, "b")
	if err := engine.Merge("a", "b", DropLeft); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := store.Remove("b"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	engine.RepairAfterRemoval("b")
	a, _ := store.Get("a")
	if a.IsHidden {
		t.Fatalf("expected orphaned pane unhidden")
	}
}

func TestReorderMovesVisibleTabs(t *testing.T) {
	engine, store := newTestEngine(t)
	addRecord(t, store, "a")
	addRecord(t, store, "b")
	addRecord(t, store, "c")

	if err := engine.Reorder("c", "a", true); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	records := store.List()
	want := []schema.SessionID{"c", "a", "b"}
	for i := range want {
		if records[i].ID != want[i] {
			t.Fatalf("expected order %v, got %+v", want, records)
		}
	}

	if err := engine.Reorder("c", "b", false); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	records = store.List()
	want = []schema.SessionID{"a", "b", "c"}
	for i := range want {
		if records[i].ID != want[i] {
			t.Fatalf("expected order %v, got %+v", want, records)
		}
	}
}

func TestReorderRejectsHiddenParticipants(t *testing.T) {
	engine, store := newTestEngine(t)
	addRecord(t, store, "a")
	addRecord(t, store, "b")
	addRecord(t, store, "c")
	if err := engine.Merge("a", "b", DropLeft); err != nil {
		t.Fatalf("merge: %v", err)
	}
	// The hidden pane is not part of the reorderable sequence.
	if err := engine.Reorder("a", "c", true); err != schema.ErrSplitRejected {
		t.Fatalf("expected ErrSplitRejected, got %v", err)
	}
}

func TestHandleDropRoutes(t *testing.T) {
	engine, store := newTestEngine(t)
	addRecord(t, store, "src")
	addRecord(t, store, "dst")
	// Center drop reorders, leaving both records unsplit.
	if err := engine.HandleDrop("src", "dst", 50, 50); err != nil {
		t.Fatalf("center drop: %v", err)
	}
	dst, _ := store.Get("dst")
	if dst.IsSplit() {
		t.Fatalf("center drop must not split")
	}
	// Edge drop merges.
	if err := engine.HandleDrop("src", "dst", 2, 50); err != nil {
		t.Fatalf("edge drop: %v", err)
	}
	dst, _ = store.Get("dst")
	if !dst.IsSplit() {
		t.Fatalf("edge drop must split")
	}
}

func TestClassifyDropZoneProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.Float64Range(0, 100).Draw(t, "x")
		y := rapid.Float64Range(0, 100).Draw(t, "y")
		zone := ClassifyDropZone(x, y)
		const threshold = schema.DropEdgeThresholdPercent
		inBand := x <= threshold || x >= 100-threshold || y <= threshold || y >= 100-threshold
		if inBand != zone.IsEdge() {
			t.Fatalf("(%v,%v): band=%v but zone %q edge=%v", x, y, inBand, zone, zone.IsEdge())
		}
	})
}

func TestMergeProperties(t *testing.T) {
	zones := []DropZone{DropLeft, DropRight, DropTop, DropBottom}
	rapid.Check(t, func(t *rapid.T) {
		zone := rapid.SampledFrom(zones).Draw(t, "zone")
		sink := &captureSink{}
		cfg, err := schema.NormalizeWorkspaceConfig(schema.WorkspaceConfig{})
		if err != nil {
			t.Fatalf("normalize: %v", err)
		}
		store := NewStore(cfg, StoreDeps{Sink: sink})
		engine := NewEngine(store, nil)
		for _, id := range []schema.SessionID{"src", "dst"} {
			store.Add(schema.SessionRecord{
				ID:          id,
				WindowID:    schema.MainWindow,
				Status:      schema.StatusActive,
				SplitLayout: schema.SingleLayout(),
			})
		}
		if err := engine.Merge("src", "dst", zone); err != nil {
			t.Fatalf("merge: %v", err)
		}
		target, _ := store.Get("dst")
		layout := target.SplitLayout
		if err := schema.ValidateSplitLayout(layout); err != nil {
			t.Fatalf("invalid layout %+v: %v", layout, err)
		}
		if len(layout.Panes) != 2 {
			t.Fatalf("expected exactly 2 panes, got %d", len(layout.Panes))
		}
		total := 0.0
		for _, pane := range layout.Panes {
			total += pane.Size
		}
		if total != 100 {
			t.Fatalf("pane sizes must sum to 100, got %v", total)
		}
		first := layout.Panes[0].Position
		if first != schema.PaneLeft && first != schema.PaneTop {
			t.Fatalf("reading order violated: first pane at %q", first)
		}
	})
}
