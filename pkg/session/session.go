// Package session holds the in-memory registry of per-user scraping sessions.
package session

import (
	"sync"
	"time"
)

// Status represents the lifecycle state of a scraping session.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusFailed  Status = "failed"
)

// Record is one discovered number with its provenance. Records are immutable
// once appended; their order within a session is discovery order.
type Record struct {
	Number    string    `json:"number"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Session tracks one user's scraping job. All fields are guarded by mu; the
// owning worker mutates status, records, and the error, the control API only
// requests a stop via SetStatus.
type Session struct {
	mu sync.RWMutex

	uid     string
	liveURL string
	status  Status
	records []Record
	lastErr string
}

// UID returns the owning user ID.
func (s *Session) UID() string { return s.uid }

// LiveURL returns the source page URL the session was started with.
func (s *Session) LiveURL() string { return s.liveURL }

// Status returns the current lifecycle status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus transitions the session to the given status.
func (s *Session) SetStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Fail marks the session failed and records the error text.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	s.status = StatusFailed
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()
}

// LastError returns the recorded error text, empty if the session never failed.
func (s *Session) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Append adds a record to the session's discovery sequence.
func (s *Session) Append(rec Record) {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
}

// Len returns the current record count.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// RecordsFrom returns a copy of the records at index from onward. Callers can
// iterate the returned slice without holding the session lock; records
// appended after the snapshot are not included.
func (s *Session) RecordsFrom(from int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if from < 0 {
		from = 0
	}
	if from >= len(s.records) {
		return nil
	}
	out := make([]Record, len(s.records)-from)
	copy(out, s.records[from:])
	return out
}
