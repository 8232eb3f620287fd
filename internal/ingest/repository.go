package ingest

import (
	"bytes"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrSessionExists is returned when starting a session with an id that
	// is already taken.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound is returned for operations on an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionNotLive is returned when chunks are pushed to a session
	// that has already ended. A closed session cannot be resumed.
	ErrSessionNotLive = errors.New("session is not live")
)

// Repository is the concurrency-safe session lifecycle layer over a Store.
//
// Repository.mu guards map membership (create, delete, iteration, whole-store
// snapshots); each Session carries its own mutex for field mutation, so
// operations on different sessions proceed concurrently while everything
// touching one session is mutually exclusive.
type Repository struct {
	mu          sync.RWMutex
	store       Store
	segmentSize int
}

// NewRepository constructs a repository with a default in-memory store.
func NewRepository(segmentSize int) *Repository {
	return NewRepositoryWithStore(NewInMemoryStore(), segmentSize)
}

// NewRepositoryWithStore constructs a repository over the given Store.
// Useful for tests or alternative Store implementations.
func NewRepositoryWithStore(store Store, segmentSize int) *Repository {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	return &Repository{store: store, segmentSize: segmentSize}
}

// Create registers a new live session. It fails with ErrSessionExists when
// the id is taken. Liveness per user is last-writer-wins: every other live
// session of the same user is force-ended as a side effect.
func (r *Repository) Create(id SessionID, userID UserID, now time.Time) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.store.Get(id); ok {
		return nil, ErrSessionExists
	}

	for _, sid := range r.store.List() {
		other, ok := r.store.Get(sid)
		if !ok {
			continue
		}
		other.mu.Lock()
		if other.UserID == userID && other.Live {
			other.endLocked(now)
		}
		other.mu.Unlock()
	}

	s := &Session{
		ID:           id,
		UserID:       userID,
		StartTime:    now,
		LastActivity: now,
		Live:         true,
	}
	r.store.Set(s)
	return s, nil
}

// Get returns the live pointer for a session, or ErrSessionNotFound.
// Callers must take the session's own lock before reading or writing fields.
func (r *Repository) Get(id SessionID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.store.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Status returns a snapshot of the session. A status check on a live session
// counts as broadcaster activity and refreshes LastActivity; on an ended
// session it is a pure read.
func (r *Repository) Status(id SessionID, now time.Time) (SessionStatus, error) {
	s, err := r.Get(id)
	if err != nil {
		return SessionStatus{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Live {
		s.LastActivity = now
	}
	return s.statusLocked(now, r.segmentSize), nil
}

// Heartbeat refreshes LastActivity while the session is live and reports
// current liveness. A heartbeat on an ended session is acknowledged without
// side effects.
func (r *Repository) Heartbeat(id SessionID, now time.Time) (bool, error) {
	s, err := r.Get(id)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Live {
		s.LastActivity = now
	}
	return s.Live, nil
}

// End transitions the session to not-live and returns its final snapshot.
// Idempotent: ending an already-ended session returns the original EndTime
// with no further side effects.
func (r *Repository) End(id SessionID, now time.Time) (SessionStatus, error) {
	s, err := r.Get(id)
	if err != nil {
		return SessionStatus{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked(now)
	return s.statusLocked(now, r.segmentSize), nil
}

// ListActive returns snapshots of all sessions that are live and have no
// end time, in session-id order.
func (r *Repository) ListActive(now time.Time) []SessionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SessionStatus, 0)
	for _, id := range r.sortedIDsLocked() {
		s, ok := r.store.Get(id)
		if !ok {
			continue
		}
		s.mu.Lock()
		if s.Live && s.EndTime == nil {
			out = append(out, s.statusLocked(now, r.segmentSize))
		}
		s.mu.Unlock()
	}
	return out
}

// Sweep is the eviction pass and the only code path that deletes sessions.
// Live sessions idle longer than idleTimeout are force-ended; sessions that
// ended more than retention ago are deleted outright.
func (r *Repository) Sweep(now time.Time, idleTimeout, retention time.Duration) (ended, deleted int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.store.List() {
		s, ok := r.store.Get(id)
		if !ok {
			continue
		}
		s.mu.Lock()
		switch {
		case s.Live && now.Sub(s.LastActivity) > idleTimeout:
			s.endLocked(now)
			ended++
		case !s.Live && s.EndTime != nil && now.Sub(*s.EndTime) > retention:
			s.mu.Unlock()
			r.store.Delete(id)
			deleted++
			continue
		}
		s.mu.Unlock()
	}
	return ended, deleted
}

// Export produces a serializable deep copy of every session, including raw
// chunk buffers. It holds the repository read lock for the whole pass so an
// export never races a sweep deletion.
func (r *Repository) Export(now time.Time) Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{SavedAt: now}
	for _, id := range r.sortedIDsLocked() {
		s, ok := r.store.Get(id)
		if !ok {
			continue
		}
		s.mu.Lock()
		rec := SessionRecord{
			SessionID:        string(s.ID),
			UserID:           string(s.UserID),
			StreamID:         s.StreamID,
			UploadID:         s.UploadID,
			StorageKey:       s.StorageKey,
			StartTime:        s.StartTime,
			LastActivity:     s.LastActivity,
			IsLive:           s.Live,
			UploadedSegments: s.UploadedSegments,
			Chunks:           make([]ChunkRecord, 0, len(s.Chunks)),
		}
		if s.EndTime != nil {
			t := *s.EndTime
			rec.EndTime = &t
		}
		for _, c := range s.Chunks {
			rec.Chunks = append(rec.Chunks, ChunkRecord{
				Index:     c.Index,
				Timestamp: c.Timestamp,
				Size:      c.Size,
				Buffer:    bytes.Clone(c.Buffer),
				URL:       c.URL,
			})
		}
		s.mu.Unlock()
		snap.Sessions = append(snap.Sessions, rec)
	}
	return snap
}

// Restore replaces the whole store with the sessions from a snapshot.
// Intended for process start, before any traffic is served.
func (r *Repository) Restore(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.store.List() {
		r.store.Delete(id)
	}
	for _, rec := range snap.Sessions {
		s := &Session{
			ID:               SessionID(rec.SessionID),
			UserID:           UserID(rec.UserID),
			StreamID:         rec.StreamID,
			UploadID:         rec.UploadID,
			StorageKey:       rec.StorageKey,
			StartTime:        rec.StartTime,
			LastActivity:     rec.LastActivity,
			Live:             rec.IsLive,
			UploadedSegments: rec.UploadedSegments,
			Chunks:           make([]Chunk, 0, len(rec.Chunks)),
		}
		if rec.EndTime != nil {
			t := *rec.EndTime
			s.EndTime = &t
		}
		for _, c := range rec.Chunks {
			s.Chunks = append(s.Chunks, Chunk{
				Index:     c.Index,
				Timestamp: c.Timestamp,
				Size:      c.Size,
				Buffer:    bytes.Clone(c.Buffer),
				URL:       c.URL,
			})
		}
		r.store.Set(s)
	}
}

// Count returns the number of sessions currently held, live or not.
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.store.List())
}

// ActiveCount returns the number of live sessions. Used for metrics.
func (r *Repository) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.store.List() {
		s, ok := r.store.Get(id)
		if !ok {
			continue
		}
		s.mu.Lock()
		if s.Live {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// sortedIDsLocked returns session ids in stable order. Caller must hold r.mu.
func (r *Repository) sortedIDsLocked() []SessionID {
	ids := r.store.List()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
