package session

import (
	"errors"
	"sync"
)

// ErrSessionRunning indicates a create request for a user whose session is
// still running.
var ErrSessionRunning = errors.New("session already running")

// Registry is the process-wide map from user ID to session. It is shared
// between API handlers, workers, and stream readers; the registry lock only
// guards the map itself, each session guards its own fields.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers a fresh idle session for uid. If an entry already exists
// it is reinitialized, unless it is still running, in which case
// ErrSessionRunning is returned and the existing session is left untouched.
func (r *Registry) Create(uid, liveURL string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[uid]; ok && existing.Status() == StatusRunning {
		return nil, ErrSessionRunning
	}

	sess := &Session{
		uid:     uid,
		liveURL: liveURL,
		status:  StatusIdle,
	}
	r.sessions[uid] = sess
	return sess, nil
}

// Get returns the session for uid, if any. Absence is a normal outcome.
func (r *Registry) Get(uid string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[uid]
	return sess, ok
}

// Remove deletes the entry for uid.
func (r *Registry) Remove(uid string) {
	r.mu.Lock()
	delete(r.sessions, uid)
	r.mu.Unlock()
}

// Running returns the number of sessions currently in StatusRunning.
func (r *Registry) Running() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, sess := range r.sessions {
		if sess.Status() == StatusRunning {
			count++
		}
	}
	return count
}

// All returns a snapshot of every registered session.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	return out
}
