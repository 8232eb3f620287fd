package ingest

import (
	"fmt"
	"time"

	"github.com/grafov/m3u8"
)

// PlaylistContentType is the media type for HLS playlists.
const PlaylistContentType = "application/vnd.apple.mpegurl"

// segmentEntry is one committed segment as it appears in the playlist.
type segmentEntry struct {
	url      string
	duration float64 // seconds
}

// committedSegmentsLocked regroups the session's chunks that carry a URL
// into segment entries of segmentSize, in chunk-index order. The grouping is
// recomputed from state on every call so it always reflects the latest
// commits. Caller must hold s.mu.
func committedSegmentsLocked(s *Session, segmentSize int) []segmentEntry {
	var entries []segmentEntry
	count := 0
	url := ""
	for _, c := range s.Chunks {
		if c.URL == "" {
			continue
		}
		if count == 0 {
			url = c.URL
		}
		count++
		if count == segmentSize {
			entries = append(entries, segmentEntry{
				url:      url,
				duration: float64(count) * ChunkDuration.Seconds(),
			})
			count = 0
		}
	}
	return entries
}

// buildPlaylist renders an HLS media playlist for the given segments. A live
// session yields an open-ended playlist that players keep polling; an ended
// one carries the end-of-stream marker. Zero segments produce a well-formed
// header-only playlist.
func buildPlaylist(entries []segmentEntry, live bool, segmentSize int) (string, error) {
	pl, err := m3u8.NewMediaPlaylist(0, uint(len(entries)+1))
	if err != nil {
		return "", fmt.Errorf("create media playlist: %w", err)
	}
	pl.TargetDuration = (ChunkDuration * time.Duration(segmentSize)).Seconds()

	for _, e := range entries {
		if err := pl.Append(e.url, e.duration, ""); err != nil {
			return "", fmt.Errorf("append segment to playlist: %w", err)
		}
	}
	if !live {
		pl.Close()
	}
	return pl.String(), nil
}
