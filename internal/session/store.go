package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/five82/pikiosk/internal/picker"
)

var (
	// ErrNotFound is returned for session ids the store never issued.
	ErrNotFound = errors.New("session not found")
	// ErrDuplicate is returned when a session id is inserted twice.
	ErrDuplicate = errors.New("session already exists")
)

// State is the lifecycle position of a picker session.
type State string

const (
	StatePending  State = "PENDING"
	StateComplete State = "COMPLETE"
	StateError    State = "ERROR"
	StateTimeout  State = "TIMEOUT"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError || s == StateTimeout
}

// ErrorInfo describes why a session settled in ERROR.
type ErrorInfo struct {
	Message    string `json:"message"`
	Status     string `json:"status,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// Snapshot is a point-in-time copy of one session.
type Snapshot struct {
	SessionID       string
	PickerURI       string
	RequestID       string
	State           State
	Remote          picker.Session
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastPolledAt    time.Time
	CompletedAt     time.Time
	Deadline        time.Time
	PollInterval    time.Duration
	MediaItems      []picker.MediaItem
	Error           *ErrorInfo
	DownloadedFiles []string
}

type entry struct {
	snap   Snapshot
	cancel context.CancelFunc
}

// Store coordinates concurrent access to sessions. Pollers write, HTTP
// handlers read; every read returns a deep copy.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	now      func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*entry), now: time.Now}
}

// Insert adds a new session. Ids are never reused.
func (s *Store) Insert(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[snap.SessionID]; ok {
		return ErrDuplicate
	}
	now := s.now()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = now
	}
	snap.UpdatedAt = now
	if snap.State == "" {
		snap.State = StatePending
	}
	s.sessions[snap.SessionID] = &entry{snap: cloneSnapshot(snap)}
	return nil
}

// Get returns a copy of the session.
func (s *Store) Get(id string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return cloneSnapshot(e.snap), nil
}

// Len returns the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RecordPoll stores the remote view observed by a poll. Terminal sessions are left untouched.
func (s *Store) RecordPoll(id string, remote picker.Session) bool {
	return s.mutate(id, func(snap *Snapshot, now time.Time) bool {
		if snap.State.Terminal() {
			return false
		}
		snap.Remote = remote
		snap.LastPolledAt = now
		return true
	})
}

// Complete moves a pending session to COMPLETE with its media items.
func (s *Store) Complete(id string, items []picker.MediaItem) bool {
	return s.transition(id, StateComplete, func(snap *Snapshot, now time.Time) {
		snap.MediaItems = cloneItems(items)
		snap.CompletedAt = now
	})
}

// Fail moves a pending session to ERROR.
func (s *Store) Fail(id string, info ErrorInfo) bool {
	return s.transition(id, StateError, func(snap *Snapshot, _ time.Time) {
		snap.Error = &info
	})
}

// Expire moves a pending session to TIMEOUT.
func (s *Store) Expire(id string) bool {
	return s.transition(id, StateTimeout, nil)
}

// SetDownloaded records the files written for a completed session.
func (s *Store) SetDownloaded(id string, files []string) bool {
	return s.mutate(id, func(snap *Snapshot, _ time.Time) bool {
		snap.DownloadedFiles = append([]string(nil), files...)
		return true
	})
}

// Delete removes the session and cancels its poller.
func (s *Store) Delete(id string) (Snapshot, error) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if e.cancel != nil {
		e.cancel()
	}
	return cloneSnapshot(e.snap), nil
}

// CancelAll stops every running poller.
func (s *Store) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.sessions {
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
	}
}

// attachPoller claims the single polling slot of a pending session.
func (s *Store) attachPoller(id string, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok || e.cancel != nil || e.snap.State.Terminal() {
		return false
	}
	e.cancel = cancel
	return true
}

func (s *Store) detachPoller(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok {
		e.cancel = nil
	}
}

func (s *Store) polling(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	return ok && e.cancel != nil
}

func (s *Store) transition(id string, to State, apply func(*Snapshot, time.Time)) bool {
	return s.mutate(id, func(snap *Snapshot, now time.Time) bool {
		if snap.State != StatePending {
			return false
		}
		snap.State = to
		if apply != nil {
			apply(snap, now)
		}
		return true
	})
}

func (s *Store) mutate(id string, fn func(*Snapshot, time.Time) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return false
	}
	now := s.now()
	if !fn(&e.snap, now) {
		return false
	}
	e.snap.UpdatedAt = now
	return true
}

func cloneSnapshot(snap Snapshot) Snapshot {
	dup := snap
	dup.MediaItems = cloneItems(snap.MediaItems)
	if snap.Error != nil {
		info := *snap.Error
		dup.Error = &info
	}
	if snap.DownloadedFiles != nil {
		dup.DownloadedFiles = append([]string(nil), snap.DownloadedFiles...)
	}
	return dup
}

func cloneItems(items []picker.MediaItem) []picker.MediaItem {
	if len(items) == 0 {
		return nil
	}
	dup := make([]picker.MediaItem, len(items))
	copy(dup, items)
	for i := range dup {
		if items[i].MediaFile.MediaFileMetadata != nil {
			dup[i].MediaFile.MediaFileMetadata = append([]byte(nil), items[i].MediaFile.MediaFileMetadata...)
		}
	}
	return dup
}
