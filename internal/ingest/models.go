package ingest

import (
	"sync"
	"time"
)

// SessionID uniquely identifies one broadcast attempt. It is chosen by the
// broadcasting client and never reused while the session exists.
type SessionID string

// UserID identifies the broadcaster. It is opaque to this service; no
// verification is performed here.
type UserID string

const (
	// DefaultSegmentSize is the number of chunks grouped into one playable segment.
	DefaultSegmentSize = 50

	// ChunkDuration is the playback time covered by a single chunk.
	ChunkDuration = 100 * time.Millisecond

	// DefaultPersistEvery bounds persistence I/O: the store is snapshotted
	// roughly once per this many ingested chunks.
	DefaultPersistEvery = 10

	// DefaultSweepInterval is how often the eviction sweeper runs.
	DefaultSweepInterval = time.Minute

	// DefaultLiveIdleTimeout is how long a live session may go without
	// activity before the sweeper force-ends it.
	DefaultLiveIdleTimeout = 2 * time.Minute

	// DefaultEndedRetention is how long an ended session stays queryable
	// before the sweeper deletes it.
	DefaultEndedRetention = 10 * time.Minute
)

// Chunk is one small binary media fragment pushed by the broadcaster.
type Chunk struct {
	Index     int       // position within the session, assigned at append time
	Timestamp time.Time // client capture time, or ingestion time if absent
	Size      int       // byte length of the raw payload
	Buffer    []byte    // raw payload; released once the chunk's segment commits
	URL       string    // per-segment fetch URL; empty until the segment commits
}

// Session is the full in-memory state of one broadcast attempt.
//
// All fields are guarded by mu. Lock order is Repository.mu before
// Session.mu; code holding only Session.mu must not take Repository.mu.
type Session struct {
	mu sync.Mutex

	ID     SessionID
	UserID UserID

	// StreamID and the storage-provider identifiers are assigned at start
	// and returned to the broadcaster for the (mocked) CDN handshake.
	StreamID   string
	UploadID   string
	StorageKey string

	StartTime    time.Time
	LastActivity time.Time
	Live         bool
	EndTime      *time.Time // set exactly once, when Live becomes false

	Chunks           []Chunk
	UploadedSegments int
}

// endLocked transitions the session to not-live. Idempotent: a session that
// already ended keeps its original EndTime. Caller must hold s.mu.
func (s *Session) endLocked(now time.Time) {
	if !s.Live {
		return
	}
	s.Live = false
	t := now
	s.EndTime = &t
}

// statusLocked builds a read-only snapshot. Caller must hold s.mu.
func (s *Session) statusLocked(now time.Time, segmentSize int) SessionStatus {
	until := now
	if s.EndTime != nil {
		until = *s.EndTime
	}
	return SessionStatus{
		SessionID:        string(s.ID),
		UserID:           string(s.UserID),
		StreamID:         s.StreamID,
		IsLive:           s.Live,
		TotalChunks:      len(s.Chunks),
		BufferSize:       len(s.Chunks) % segmentSize,
		UploadedSegments: s.UploadedSegments,
		StartTime:        s.StartTime,
		LastActivity:     s.LastActivity,
		EndTime:          s.EndTime,
		Duration:         until.Sub(s.StartTime).Seconds(),
	}
}

// SessionStatus is the snapshot returned by status and listing queries.
type SessionStatus struct {
	SessionID        string     `json:"sessionId"`
	UserID           string     `json:"userId"`
	StreamID         string     `json:"streamId"`
	IsLive           bool       `json:"isLive"`
	TotalChunks      int        `json:"totalChunks"`
	BufferSize       int        `json:"bufferSize"`
	UploadedSegments int        `json:"uploadedSegments"`
	StartTime        time.Time  `json:"startTime"`
	LastActivity     time.Time  `json:"lastActivity"`
	EndTime          *time.Time `json:"endTime,omitempty"`
	Duration         float64    `json:"duration"` // seconds
}

// Snapshot is the serialized form of the whole session store, written and
// read by the Persister. Chunk buffers round-trip byte for byte.
type Snapshot struct {
	SavedAt  time.Time       `json:"savedAt"`
	Sessions []SessionRecord `json:"sessions"`
}

// SessionRecord mirrors Session for serialization.
type SessionRecord struct {
	SessionID        string        `json:"sessionId"`
	UserID           string        `json:"userId"`
	StreamID         string        `json:"streamId"`
	UploadID         string        `json:"uploadId"`
	StorageKey       string        `json:"storageKey"`
	StartTime        time.Time     `json:"startTime"`
	LastActivity     time.Time     `json:"lastActivity"`
	IsLive           bool          `json:"isLive"`
	EndTime          *time.Time    `json:"endTime,omitempty"`
	UploadedSegments int           `json:"uploadedSegments"`
	Chunks           []ChunkRecord `json:"chunks"`
}

// ChunkRecord mirrors Chunk for serialization. Buffer is null for chunks
// whose segment already committed.
type ChunkRecord struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Size      int       `json:"size"`
	Buffer    []byte    `json:"buffer,omitempty"`
	URL       string    `json:"url,omitempty"`
}
