package core

import (
	"sync"

	"pkt.systems/webmux/schema"
)

// registry is the correlation map from an outbound request token to the
// placeholder record it will resolve. Entries are written synchronously
// before the request is sent, so an entry exists by the time any reply,
// however fast, can arrive. Entries are deleted on match or abandoned;
// nothing expires them. A stale entry simply never matches again once its
// record leaves the spawning state.
type registry struct {
	mu      sync.Mutex
	entries map[schema.RequestID]schema.SessionID
}

func newRegistry() *registry {
	return &registry{entries: make(map[schema.RequestID]schema.SessionID)}
}

// put records the placeholder for requestID. Must happen before the request
// is put on the wire.
func (r *registry) put(requestID schema.RequestID, sessionID schema.SessionID) {
	if requestID == "" {
		return
	}
	r.mu.Lock()
	r.entries[requestID] = sessionID
	r.mu.Unlock()
}

// take resolves and deletes an entry.
func (r *registry) take(requestID schema.RequestID) (schema.SessionID, bool) {
	if requestID == "" {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sessionID, ok := r.entries[requestID]
	if ok {
		delete(r.entries, requestID)
	}
	return sessionID, ok
}

// drop abandons an entry without resolving it.
func (r *registry) drop(requestID schema.RequestID) {
	if requestID == "" {
		return
	}
	r.mu.Lock()
	delete(r.entries, requestID)
	r.mu.Unlock()
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
