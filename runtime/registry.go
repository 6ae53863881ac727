// Package runtime holds the live-connection machinery: the session registry
// and the broadcast dispatcher. It contains no domain rules.
package runtime

import (
	"bandmate/contract"
	"sync"
)

// Registry tracks currently-open sessions per user. A user may hold several
// concurrent sessions (multiple tabs or devices); each session belongs to
// exactly one user for its lifetime. All state is in-memory and process
// local, rebuilt from nothing on restart.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]contract.MessageSink // userID -> sessionID -> sink
	owner  map[string]string                          // sessionID -> userID
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]contract.MessageSink),
		owner:  make(map[string]string),
	}
}

// Register adds a live session for the user. Re-registering the same session
// id replaces its sink.
func (r *Registry) Register(userID string, sessionID string, sink contract.MessageSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUser[userID]; !ok {
		r.byUser[userID] = make(map[string]contract.MessageSink)
	}
	r.byUser[userID][sessionID] = sink
	r.owner[sessionID] = userID
}

// Unregister removes a session. Unknown ids are a no-op, so disconnect paths
// may call it more than once.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owner[sessionID]
	if !ok {
		return
	}
	delete(r.owner, sessionID)

	sessions := r.byUser[userID]
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(r.byUser, userID)
	}
}

// SessionsFor returns the sinks of every live session of the user. The slice
// is a snapshot; delivery happens outside the lock.
func (r *Registry) SessionsFor(userID string) []contract.MessageSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	sinks := make([]contract.MessageSink, 0, len(sessions))
	for _, sink := range sessions {
		sinks = append(sinks, sink)
	}
	return sinks
}
