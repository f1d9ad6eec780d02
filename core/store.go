package core

import (
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/webmux/internal/logx"
	"pkt.systems/webmux/internal/persist"
	"pkt.systems/webmux/schema"
)

// Store is the single source of truth for session records in one window.
// Mutations are synchronous and immediately visible to the event sink;
// persistence to the shared profile blob is debounced. The store performs no
// partial-update validation: invariant enforcement belongs to the callers
// (split engine, pop-out coordinator).
type Store struct {
	cfg  schema.WorkspaceConfig
	blob *persist.Store
	sink EventSink
	log  pslog.Logger

	mu           sync.Mutex
	records      map[schema.SessionID]*schema.SessionRecord
	order        []schema.SessionID
	active       schema.SessionID
	focused      schema.SessionID
	persistTimer *time.Timer
	closed       bool
}

// StoreDeps captures the store's optional collaborators.
type StoreDeps struct {
	Persist *persist.Store
	Sink    EventSink
	Logger  pslog.Logger
}

// NewStore constructs a session store for one window.
func NewStore(cfg schema.WorkspaceConfig, deps StoreDeps) *Store {
	logger := deps.Logger
	if logger != nil {
		logger = logx.WithWindow(logger, cfg.WindowID)
	}
	return &Store{
		cfg:     cfg,
		blob:    deps.Persist,
		sink:    deps.Sink,
		log:     logger,
		records: make(map[schema.SessionID]*schema.SessionRecord),
	}
}

// LoadPersisted seeds the store from the shared profile blob.
func (s *Store) LoadPersisted() error {
	if s.blob == nil {
		return nil
	}
	blob, ok, err := s.blob.Load(s.cfg.Profile)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	s.mu.Lock()
	for i := range blob.Sessions {
		record := blob.Sessions[i].Clone()
		if record.SplitLayout.Type == "" {
			record.SplitLayout = schema.SingleLayout()
		}
		s.records[record.ID] = &record
		s.order = append(s.order, record.ID)
	}
	if _, ok := s.records[blob.ActiveSessionID]; ok {
		s.active = blob.ActiveSessionID
	}
	count := len(s.order)
	s.mu.Unlock()
	if s.log != nil {
		s.log.Debug("store seeded", "sessions", count)
	}
	return nil
}

// Add inserts a record and notifies subscribers.
func (s *Store) Add(record schema.SessionRecord) {
	if record.WindowID == "" {
		record.WindowID = s.cfg.WindowID
	}
	if record.SplitLayout.Type == "" {
		record.SplitLayout = schema.SingleLayout()
	}
	s.mu.Lock()
	clone := record.Clone()
	s.records[clone.ID] = &clone
	s.order = append(s.order, clone.ID)
	s.markDirtyLocked()
	event := schema.SessionEvent{
		Type:     schema.SessionEventAdded,
		WindowID: clone.WindowID,
		Session:  clone.Clone(),
		Active:   s.active,
	}
	s.mu.Unlock()
	s.emit(event)
}

// Update applies mutate to the record and notifies subscribers. The mutate
// callback runs under the store lock and must not call back into the store.
func (s *Store) Update(id schema.SessionID, mutate func(*schema.SessionRecord)) error {
	s.mu.Lock()
	record := s.records[id]
	if record == nil {
		s.mu.Unlock()
		return schema.ErrSessionNotFound
	}
	mutate(record)
	s.markDirtyLocked()
	event := schema.SessionEvent{
		Type:     schema.SessionEventUpdated,
		WindowID: record.WindowID,
		Session:  record.Clone(),
		Active:   s.active,
	}
	s.mu.Unlock()
	s.emit(event)
	return nil
}

// Remove deletes a record and notifies subscribers. Removal is a transition
// out of the model; the caller is responsible for split repair.
func (s *Store) Remove(id schema.SessionID) error {
	s.mu.Lock()
	record := s.records[id]
	if record == nil {
		s.mu.Unlock()
		return schema.ErrSessionNotFound
	}
	snapshot := record.Clone()
	delete(s.records, id)
	s.order = removeSessionID(s.order, id)
	if s.active == id {
		s.active = ""
	}
	if s.focused == id {
		s.focused = ""
	}
	s.markDirtyLocked()
	event := schema.SessionEvent{
		Type:     schema.SessionEventRemoved,
		WindowID: snapshot.WindowID,
		Session:  snapshot,
		Active:   s.active,
	}
	s.mu.Unlock()
	s.emit(event)
	return nil
}

// Reorder replaces the tab-strip order. Unknown ids are dropped; records
// missing from newOrder keep their relative position at the end.
func (s *Store) Reorder(newOrder []schema.SessionID) {
	s.mu.Lock()
	seen := make(map[schema.SessionID]bool, len(newOrder))
	order := make([]schema.SessionID, 0, len(s.order))
	for _, id := range newOrder {
		if s.records[id] == nil || seen[id] {
			continue
		}
		seen[id] = true
		order = append(order, id)
	}
	for _, id := range s.order {
		if !seen[id] {
			order = append(order, id)
		}
	}
	s.order = order
	s.markDirtyLocked()
	event := schema.SessionEvent{
		Type:     schema.SessionEventReordered,
		WindowID: s.cfg.WindowID,
		Active:   s.active,
		Order:    append([]schema.SessionID(nil), order...),
	}
	s.mu.Unlock()
	s.emit(event)
}

// SetActive changes the active selection. An empty id clears it.
func (s *Store) SetActive(id schema.SessionID) error {
	s.mu.Lock()
	if id != "" && s.records[id] == nil {
		s.mu.Unlock()
		return schema.ErrSessionNotFound
	}
	s.active = id
	s.markDirtyLocked()
	event := schema.SessionEvent{
		Type:     schema.SessionEventActivated,
		WindowID: s.cfg.WindowID,
		Active:   id,
	}
	s.mu.Unlock()
	s.emit(event)
	return nil
}

// SetFocused records which pane holds keyboard focus. Focus is window-local
// presentation state and is not persisted.
func (s *Store) SetFocused(id schema.SessionID) {
	s.mu.Lock()
	s.focused = id
	s.mu.Unlock()
}

// Active returns the active selection, or empty.
func (s *Store) Active() schema.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Focused returns the focused pane, or empty.
func (s *Store) Focused() schema.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

// Get returns a snapshot of one record.
func (s *Store) Get(id schema.SessionID) (schema.SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.records[id]
	if record == nil {
		return schema.SessionRecord{}, false
	}
	return record.Clone(), true
}

// List returns snapshots of every record in tab-strip order.
func (s *Store) List() []schema.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked()
}

// Window returns snapshots of the records owned by windowID, in order.
func (s *Store) Window(windowID schema.WindowID) []schema.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.SessionRecord, 0, len(s.order))
	for _, id := range s.order {
		record := s.records[id]
		if record == nil || record.WindowID != windowID {
			continue
		}
		out = append(out, record.Clone())
	}
	return out
}

// Flush persists the current state immediately, bypassing the debounce.
func (s *Store) Flush() error {
	s.mu.Lock()
	if s.persistTimer != nil {
		s.persistTimer.Stop()
		s.persistTimer = nil
	}
	blob, target := s.snapshotLocked()
	s.mu.Unlock()
	if target == nil {
		return nil
	}
	return target.Save(s.cfg.Profile, blob)
}

// Reload re-reads the shared blob and adopts changes made by sibling
// windows. Records owned by this window are left untouched: within the
// debounce window the local copy is authoritative for its own partition.
func (s *Store) Reload() error {
	if s.blob == nil {
		return nil
	}
	blob, ok, err := s.blob.Load(s.cfg.Profile)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	incoming := make(map[schema.SessionID]schema.SessionRecord, len(blob.Sessions))
	for _, record := range blob.Sessions {
		incoming[record.ID] = record
	}

	var events []schema.SessionEvent
	s.mu.Lock()
	for _, record := range blob.Sessions {
		local := s.records[record.ID]
		if local == nil {
			clone := record.Clone()
			if clone.SplitLayout.Type == "" {
				clone.SplitLayout = schema.SingleLayout()
			}
			s.records[clone.ID] = &clone
			s.order = append(s.order, clone.ID)
			events = append(events, schema.SessionEvent{
				Type:     schema.SessionEventAdded,
				WindowID: clone.WindowID,
				Session:  clone.Clone(),
				Active:   s.active,
			})
			continue
		}
		if local.WindowID == s.cfg.WindowID && record.WindowID == s.cfg.WindowID {
			continue
		}
		clone := record.Clone()
		*local = clone
		events = append(events, schema.SessionEvent{
			Type:     schema.SessionEventUpdated,
			WindowID: clone.WindowID,
			Session:  clone.Clone(),
			Active:   s.active,
		})
	}
	for _, id := range append([]schema.SessionID(nil), s.order...) {
		local := s.records[id]
		if local == nil || local.WindowID == s.cfg.WindowID {
			continue
		}
		if _, present := incoming[id]; present {
			continue
		}
		snapshot := local.Clone()
		delete(s.records, id)
		s.order = removeSessionID(s.order, id)
		events = append(events, schema.SessionEvent{
			Type:     schema.SessionEventRemoved,
			WindowID: snapshot.WindowID,
			Session:  snapshot,
			Active:   s.active,
		})
	}
	s.mu.Unlock()
	for _, event := range events {
		s.emit(event)
	}
	return nil
}

// Close flushes pending state and stops the debounce timer.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.Flush()
}

func (s *Store) listLocked() []schema.SessionRecord {
	out := make([]schema.SessionRecord, 0, len(s.order))
	for _, id := range s.order {
		if record := s.records[id]; record != nil {
			out = append(out, record.Clone())
		}
	}
	return out
}

func (s *Store) snapshotLocked() (persist.Blob, *persist.Store) {
	if s.blob == nil {
		return persist.Blob{}, nil
	}
	return persist.Blob{
		Sessions:        s.listLocked(),
		ActiveSessionID: s.active,
	}, s.blob
}

func (s *Store) markDirtyLocked() {
	if s.blob == nil || s.closed {
		return
	}
	if s.persistTimer != nil {
		s.persistTimer.Reset(s.cfg.PersistDebounce)
		return
	}
	s.persistTimer = time.AfterFunc(s.cfg.PersistDebounce, func() {
		s.mu.Lock()
		s.persistTimer = nil
		blob, target := s.snapshotLocked()
		closed := s.closed
		s.mu.Unlock()
		if target == nil || closed {
			return
		}
		if err := target.Save(s.cfg.Profile, blob); err != nil && s.log != nil {
			s.log.Warn("store persist failed", "err", err)
		}
	})
}

func (s *Store) emit(event schema.SessionEvent) {
	if s.sink != nil {
		s.sink.OnSessionEvent(event)
	}
}

func removeSessionID(order []schema.SessionID, id schema.SessionID) []schema.SessionID {
	out := order[:0]
	for _, existing := range order {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
