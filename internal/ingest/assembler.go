package ingest

import (
	"fmt"
	"log/slog"

	"github.com/Nocena/app.nocena-sub001/internal/platform/metrics"
)

// Sink is the external upload collaborator: raw segment bytes in, fetchable
// URL out. Implementations live in internal/upload.
type Sink interface {
	Upload(data []byte, key string) (string, error)
}

// Assembler turns complete groups of segmentSize chunks into committed,
// independently fetchable segments.
type Assembler struct {
	sink        Sink
	segmentSize int
	log         *slog.Logger
	metrics     *metrics.Metrics
}

// NewAssembler returns an Assembler that uploads through sink. Metrics may
// be nil to disable metric recording.
func NewAssembler(sink Sink, segmentSize int, log *slog.Logger, m *metrics.Metrics) *Assembler {
	if segmentSize <= 0 {
		segmentSize = DefaultSegmentSize
	}
	return &Assembler{sink: sink, segmentSize: segmentSize, log: log, metrics: m}
}

// Commit uploads every complete, uncommitted group of chunks in index order.
// On success the group's URL is written onto each of its chunks, the buffers
// are released, and UploadedSegments advances. On sink failure the group and
// everything after it stay pending; the next boundary re-attempts them. The
// assembler itself never retries and never commits a partial group.
//
// Caller must hold s.mu, which serializes commits per session.
func (a *Assembler) Commit(s *Session) {
	for {
		start := s.UploadedSegments * a.segmentSize
		end := start + a.segmentSize
		if end > len(s.Chunks) {
			return
		}

		size := 0
		for i := start; i < end; i++ {
			size += len(s.Chunks[i].Buffer)
		}
		payload := make([]byte, 0, size)
		for i := start; i < end; i++ {
			payload = append(payload, s.Chunks[i].Buffer...)
		}

		key := fmt.Sprintf("%s/%05d.ts", s.StorageKey, s.UploadedSegments)
		url, err := a.sink.Upload(payload, key)
		if err != nil {
			a.log.Error("segment upload failed, leaving group pending",
				slog.String("session_id", string(s.ID)),
				slog.Int("segment", s.UploadedSegments),
				slog.String("error", err.Error()))
			if a.metrics != nil {
				a.metrics.IncUploadFailures()
			}
			return
		}

		for i := start; i < end; i++ {
			s.Chunks[i].URL = url
			s.Chunks[i].Buffer = nil
		}
		s.UploadedSegments++

		a.log.Debug("segment committed",
			slog.String("session_id", string(s.ID)),
			slog.Int("segment", s.UploadedSegments-1),
			slog.String("url", url))
		if a.metrics != nil {
			a.metrics.IncSegmentsCommitted()
		}
	}
}
