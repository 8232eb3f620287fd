package ingest

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Nocena/app.nocena-sub001/internal/platform/metrics"
)

// Config holds the tuning knobs of the ingestion service. Zero values fall
// back to the reference defaults.
type Config struct {
	SegmentSize     int           // chunks per playable segment
	PersistEvery    int           // snapshot the store every N chunks
	LiveIdleTimeout time.Duration // sweeper: idle live sessions end after this
	EndedRetention  time.Duration // sweeper: ended sessions delete after this
}

func (c Config) withDefaults() Config {
	if c.SegmentSize <= 0 {
		c.SegmentSize = DefaultSegmentSize
	}
	if c.PersistEvery <= 0 {
		c.PersistEvery = DefaultPersistEvery
	}
	if c.LiveIdleTimeout <= 0 {
		c.LiveIdleTimeout = DefaultLiveIdleTimeout
	}
	if c.EndedRetention <= 0 {
		c.EndedRetention = DefaultEndedRetention
	}
	return c
}

// Service wires the repository, segment assembler, upload sink and
// persistence adapter into the operations the HTTP layer exposes.
type Service struct {
	repo      *Repository
	assembler *Assembler
	persister Persister
	cfg       Config
	log       *slog.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time
}

// NewService constructs the ingestion service. Metrics may be nil to disable
// metric recording (e.g. in tests).
func NewService(repo *Repository, sink Sink, persister Persister, log *slog.Logger, m *metrics.Metrics, cfg Config) *Service {
	cfg = cfg.withDefaults()
	if persister == nil {
		persister = NopPersister{}
	}
	return &Service{
		repo:      repo,
		assembler: NewAssembler(sink, cfg.SegmentSize, log, m),
		persister: persister,
		cfg:       cfg,
		log:       log,
		metrics:   m,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Repo exposes the underlying repository, e.g. for metrics gauges.
func (s *Service) Repo() *Repository { return s.repo }

// StartResult is the response to a start call: the identifiers the
// broadcaster needs for the (mocked) storage-provider handshake.
type StartResult struct {
	StreamID   string `json:"streamId"`
	SessionID  string `json:"sessionId"`
	UploadID   string `json:"uploadId"`
	StorageKey string `json:"storageKey"`
}

// Start registers a new live broadcast session. Any other live session of
// the same user is ended as a side effect (last-writer-wins liveness).
func (s *Service) Start(id SessionID, userID UserID) (StartResult, error) {
	now := s.clock()
	sess, err := s.repo.Create(id, userID, now)
	if err != nil {
		return StartResult{}, err
	}

	sess.mu.Lock()
	sess.StreamID = uuid.NewString()
	sess.UploadID = uuid.NewString()
	sess.StorageKey = fmt.Sprintf("streams/%s/%s", userID, id)
	res := StartResult{
		StreamID:   sess.StreamID,
		SessionID:  string(sess.ID),
		UploadID:   sess.UploadID,
		StorageKey: sess.StorageKey,
	}
	sess.mu.Unlock()

	s.log.Info("session started",
		slog.String("session_id", string(id)),
		slog.String("user_id", string(userID)),
		slog.String("stream_id", res.StreamID))
	if s.metrics != nil {
		s.metrics.IncSessionsStarted()
	}
	s.persist()
	return res, nil
}

// IngestResult is the response to a chunk push. BufferFill is the number of
// chunks accumulated past the last segment boundary.
type IngestResult struct {
	ChunkIndex       int
	TotalChunks      int
	BufferFill       int
	StreamDuration   time.Duration
	UploadedSegments int
}

// Ingest validates and appends one chunk. When the append crosses a segment
// boundary the assembler commits synchronously before returning, so the
// result always reflects the true uploaded-segment count. The store is
// snapshotted roughly every PersistEvery chunks; persistence failures never
// fail the push.
func (s *Service) Ingest(id SessionID, raw []byte, clientTimestamp time.Time) (IngestResult, error) {
	sess, err := s.repo.Get(id)
	if err != nil {
		return IngestResult{}, err
	}

	now := s.clock()
	ts := clientTimestamp
	if ts.IsZero() {
		ts = now
	}

	sess.mu.Lock()
	if !sess.Live {
		sess.mu.Unlock()
		return IngestResult{}, ErrSessionNotLive
	}

	c := Chunk{
		Index:     len(sess.Chunks),
		Timestamp: ts,
		Size:      len(raw),
		Buffer:    raw,
	}
	sess.Chunks = append(sess.Chunks, c)
	sess.LastActivity = now

	total := len(sess.Chunks)
	fill := total % s.cfg.SegmentSize
	if fill == 0 {
		s.assembler.Commit(sess)
	}
	res := IngestResult{
		ChunkIndex:       c.Index,
		TotalChunks:      total,
		BufferFill:       fill,
		StreamDuration:   now.Sub(sess.StartTime),
		UploadedSegments: sess.UploadedSegments,
	}
	sess.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IncChunksIngested()
	}
	if total%s.cfg.PersistEvery == 0 {
		s.persist()
	}
	return res, nil
}

// Status returns the session snapshot; on a live session it also counts as
// broadcaster activity.
func (s *Service) Status(id SessionID) (SessionStatus, error) {
	return s.repo.Status(id, s.clock())
}

// Heartbeat refreshes liveness for a live session and reports whether the
// session is still live.
func (s *Service) Heartbeat(id SessionID) (bool, error) {
	return s.repo.Heartbeat(id, s.clock())
}

// End closes the session and returns its final snapshot. Idempotent; the
// trailing partial segment, if any, stays uncommitted and invisible to
// viewers.
func (s *Service) End(id SessionID) (SessionStatus, error) {
	st, err := s.repo.End(id, s.clock())
	if err != nil {
		return SessionStatus{}, err
	}

	s.log.Info("session ended",
		slog.String("session_id", string(id)),
		slog.Int("total_chunks", st.TotalChunks),
		slog.Int("uploaded_segments", st.UploadedSegments))
	if s.metrics != nil {
		s.metrics.IncSessionsEnded()
	}
	s.persist()
	return st, nil
}

// ListActive returns snapshots of all live, un-ended sessions.
func (s *Service) ListActive() []SessionStatus {
	return s.repo.ListActive(s.clock())
}

// Manifest renders the HLS playlist of the session's committed segments.
// Pure read: it never mutates session state.
func (s *Service) Manifest(id SessionID) (string, error) {
	sess, err := s.repo.Get(id)
	if err != nil {
		return "", err
	}

	sess.mu.Lock()
	entries := committedSegmentsLocked(sess, s.cfg.SegmentSize)
	live := sess.Live
	sess.mu.Unlock()

	return buildPlaylist(entries, live, s.cfg.SegmentSize)
}

// Sweep runs one eviction pass: idle live sessions are force-ended, long-ended
// sessions deleted. A pass that changed anything snapshots the store.
func (s *Service) Sweep(now time.Time) (ended, deleted int) {
	ended, deleted = s.repo.Sweep(now, s.cfg.LiveIdleTimeout, s.cfg.EndedRetention)
	if ended > 0 || deleted > 0 {
		s.log.Info("sweep reclaimed sessions",
			slog.Int("ended", ended),
			slog.Int("deleted", deleted))
		if s.metrics != nil {
			s.metrics.AddSessionsSwept(ended)
			s.metrics.AddSessionsDeleted(deleted)
		}
		s.persist()
	}
	return ended, deleted
}

// Restore loads the persisted snapshot into the repository. Missing or
// corrupt state falls back to an empty store; a cold start loses in-flight
// sessions but never errors out.
func (s *Service) Restore() {
	snap, err := s.persister.Load()
	if err != nil {
		s.log.Warn("persisted state unreadable, starting cold", slog.String("error", err.Error()))
		return
	}
	if len(snap.Sessions) == 0 {
		return
	}
	s.repo.Restore(snap)
	s.log.Info("sessions restored", slog.Int("count", len(snap.Sessions)))
}

// Persist forces a snapshot write, e.g. on shutdown.
func (s *Service) Persist() {
	s.persist()
}

// persist saves a full-store snapshot. Best-effort: failures are logged and
// counted, never propagated.
func (s *Service) persist() {
	if err := s.persister.Save(s.repo.Export(s.clock())); err != nil {
		s.log.Error("persistence write failed", slog.String("error", err.Error()))
		if s.metrics != nil {
			s.metrics.IncPersistFailures()
		}
	}
}
