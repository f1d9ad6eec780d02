package core

import (
	"sync"
	"testing"
	"time"

	"pkt.systems/webmux/internal/persist"
	"pkt.systems/webmux/schema"
)

type captureSink struct {
	mu      sync.Mutex
	events  []schema.SessionEvent
	outputs []schema.OutputEvent
}

func (c *captureSink) OnSessionEvent(event schema.SessionEvent) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func (c *captureSink) OnOutput(event schema.OutputEvent) {
	c.mu.Lock()
	c.outputs = append(c.outputs, event)
	c.mu.Unlock()
}

func (c *captureSink) sessionEvents() []schema.SessionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]schema.SessionEvent(nil), c.events...)
}

func (c *captureSink) outputEvents() []schema.OutputEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]schema.OutputEvent(nil), c.outputs...)
}

func testConfig(t *testing.T, window schema.WindowID) schema.WorkspaceConfig {
	t.Helper()
	cfg, err := schema.NormalizeWorkspaceConfig(schema.WorkspaceConfig{WindowID: window})
	if err != nil {
		t.Fatalf("normalize config: %v", err)
	}
	return cfg
}

func newTestStore(t *testing.T) (*Store, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	store := NewStore(testConfig(t, schema.MainWindow), StoreDeps{Sink: sink})
	return store, sink
}

func addRecord(t *testing.T, store *Store, id schema.SessionID, mutate ...func(*schema.SessionRecord)) {
	t.Helper()
	record := schema.SessionRecord{
		ID:          id,
		WindowID:    schema.MainWindow,
		Status:      schema.StatusActive,
		SplitLayout: schema.SingleLayout(),
	}
	for _, m := range mutate {
		m(&record)
	}
	store.Add(record)
}

func TestStoreAddUpdateRemove(t *testing.T) {
	store, sink := newTestStore(t)
	addRecord(t, store, "term-1")

	if err := store.Update("term-1", func(r *schema.SessionRecord) {
		r.Status = schema.StatusDetached
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, ok := store.Get("term-1")
	if !ok || got.Status != schema.StatusDetached {
		t.Fatalf("expected detached record, got %+v ok=%v", got, ok)
	}

	if err := store.Remove("term-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := store.Get("term-1"); ok {
		t.Fatalf("expected record gone")
	}

	events := sink.sessionEvents()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	wantTypes := []schema.SessionEventType{
		schema.SessionEventAdded,
		schema.SessionEventUpdated,
		schema.SessionEventRemoved,
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Fatalf("event %d: expected %q, got %q", i, want, events[i].Type)
		}
	}
}

func TestStoreUpdateUnknown(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.Update("ghost", func(*schema.SessionRecord) {})
	if err != schema.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestStoreGetReturnsSnapshot(t *testing.T) {
	store, _ := newTestStore(t)
	addRecord(t, store, "term-1")
	snapshot, _ := store.Get("term-1")
	snapshot.Status = schema.StatusError
	fresh, _ := store.Get("term-1")
	if fresh.Status != schema.StatusActive {
		t.Fatalf("snapshot mutation leaked into store")
	}
}

func TestStoreReorder(t *testing.T) {
	store, sink := newTestStore(t)
	addRecord(t, store, "a")
	addRecord(t, store, "b")
	addRecord(t, store, "c")

	// Unknown ids are dropped, duplicates collapse, missing ids keep their
	// position at the end.
	store.Reorder([]schema.SessionID{"c", "ghost", "a", "c"})

	records := store.List()
	got := make([]schema.SessionID, 0, len(records))
	for _, record := range records {
		got = append(got, record.ID)
	}
	want := []schema.SessionID{"c", "a", "b"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	events := sink.sessionEvents()
	last := events[len(events)-1]
	if last.Type != schema.SessionEventReordered {
		t.Fatalf("expected reordered event, got %q", last.Type)
	}
}

func TestStoreSetActive(t *testing.T) {
	store, _ := newTestStore(t)
	addRecord(t, store, "term-1")
	if err := store.SetActive("ghost"); err != schema.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := store.SetActive("term-1"); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if store.Active() != "term-1" {
		t.Fatalf("expected term-1 active")
	}
	if err := store.SetActive(""); err != nil {
		t.Fatalf("clear active: %v", err)
	}
	if store.Active() != "" {
		t.Fatalf("expected cleared active")
	}
}

func TestStoreRemoveClearsActiveAndFocus(t *testing.T) {
	store, _ := newTestStore(t)
	addRecord(t, store, "term-1")
	_ = store.SetActive("term-1")
	store.SetFocused("term-1")
	if err := store.Remove("term-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if store.Active() != "" || store.Focused() != "" {
		t.Fatalf("expected active and focus cleared")
	}
}

func TestStoreWindowFilter(t *testing.T) {
	store, _ := newTestStore(t)
	addRecord(t, store, "mine")
	addRecord(t, store, "theirs", func(r *schema.SessionRecord) {
		r.WindowID = "win-2"
	})
	records := store.Window(schema.MainWindow)
	if len(records) != 1 || records[0].ID != "mine" {
		t.Fatalf("expected only own-window records, got %+v", records)
	}
}

func TestStoreDebouncedPersist(t *testing.T) {
	dir := t.TempDir()
	blob, err := persist.NewStore(dir)
	if err != nil {
		t.Fatalf("new persist store: %v", err)
	}
	cfg := testConfig(t, schema.MainWindow)
	cfg.PersistDebounce = 20 * time.Millisecond
	cfg.SettleDelay = 50 * time.Millisecond
	store := NewStore(cfg, StoreDeps{Persist: blob})

	addRecord(t, store, "a")
	addRecord(t, store, "b")

	if _, ok, _ := blob.Load(cfg.Profile); ok {
		t.Fatalf("expected no write before debounce elapses")
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		loaded, ok, err := blob.Load(cfg.Profile)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if ok {
			if len(loaded.Sessions) != 2 {
				t.Fatalf("expected 2 persisted sessions, got %d", len(loaded.Sessions))
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for debounced persist")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStoreFlushBypassesDebounce(t *testing.T) {
	blob, err := persist.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new persist store: %v", err)
	}
	cfg := testConfig(t, schema.MainWindow)
	store := NewStore(cfg, StoreDeps{Persist: blob})
	addRecord(t, store, "a")
	_ = store.SetActive("a")
	if err := store.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	loaded, ok, err := blob.Load(cfg.Profile)
	if err != nil || !ok {
		t.Fatalf("expected persisted blob, ok=%v err=%v", ok, err)
	}
	if len(loaded.Sessions) != 1 || loaded.ActiveSessionID != "a" {
		t.Fatalf("unexpected blob %+v", loaded)
	}
}

func TestStoreLoadPersistedSeeds(t *testing.T) {
	blob, err := persist.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new persist store: %v", err)
	}
	cfg := testConfig(t, schema.MainWindow)
	if err := blob.Save(cfg.Profile, persist.Blob{
		Sessions: []schema.SessionRecord{
			{ID: "term-1", SessionName: "work", WindowID: schema.MainWindow, Status: schema.StatusActive},
		},
		ActiveSessionID: "term-1",
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	store := NewStore(cfg, StoreDeps{Persist: blob})
	if err := store.LoadPersisted(); err != nil {
		t.Fatalf("load persisted: %v", err)
	}
	record, ok := store.Get("term-1")
	if !ok {
		t.Fatalf("expected seeded record")
	}
	if record.SplitLayout.Type != schema.SplitSingle {
		t.Fatalf("expected missing layout normalized to single, got %q", record.SplitLayout.Type)
	}
	if store.Active() != "term-1" {
		t.Fatalf("expected active restored")
	}
}

func TestStoreReloadAdoptsForeignWindowChanges(t *testing.T) {
	blob, err := persist.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new persist store: %v", err)
	}
	cfg := testConfig(t, schema.MainWindow)
	sink := &captureSink{}
	store := NewStore(cfg, StoreDeps{Persist: blob, Sink: sink})
	addRecord(t, store, "mine")
	if err := store.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	// A sibling window writes the shared blob: it adds its own record,
	// rewrites ours with stale data, and knows nothing about removals yet.
	mine, _ := store.Get("mine")
	stale := mine.Clone()
	stale.Status = schema.StatusError
	if err := blob.Save(cfg.Profile, persist.Blob{
		Sessions: []schema.SessionRecord{
			stale,
			{ID: "theirs", WindowID: "win-2", Status: schema.StatusActive},
		},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := store.Get("theirs"); !ok {
		t.Fatalf("expected foreign record adopted")
	}
	got, _ := store.Get("mine")
	if got.Status != schema.StatusActive {
		t.Fatalf("own-window record must stay authoritative, got status %q", got.Status)
	}
}

func TestStoreReloadDropsVanishedForeignRecords(t *testing.T) {
	blob, err := persist.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new persist store: %v", err)
	}
	cfg := testConfig(t, schema.MainWindow)
	store := NewStore(cfg, StoreDeps{Persist: blob})
	addRecord(t, store, "mine")
	addRecord(t, store, "theirs", func(r *schema.SessionRecord) {
		r.WindowID = "win-2"
	})

	if err := blob.Save(cfg.Profile, persist.Blob{
		Sessions: []schema.SessionRecord{},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := store.Get("theirs"); ok {
		t.Fatalf("expected foreign record dropped")
	}
	if _, ok := store.Get("mine"); !ok {
		t.Fatalf("own-window record must survive a reload")
	}
}
