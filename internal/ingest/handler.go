package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// maxChunkMemory caps the in-memory part of a multipart chunk upload.
const maxChunkMemory = 32 << 20

// Handler exposes the stream ingestion HTTP endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler over the given Service.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Register mounts all stream routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/stream", func(r chi.Router) {
		r.Post("/start", h.Start)
		r.Post("/chunk", h.Chunk)
		r.Post("/status", h.Status)
		r.Post("/heartbeat", h.Heartbeat)
		r.Post("/end", h.End)
		r.Get("/sessions", h.ListActive)
		r.Get("/manifest", h.Manifest)
		r.Post("/manifest", h.Manifest)
	})
}

// Start handles POST /api/stream/start. Form: sessionId, userId.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PostFormValue("sessionId")
	userID := r.PostFormValue("userId")
	if sessionID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "sessionId and userId are required")
		return
	}

	res, err := h.svc.Start(SessionID(sessionID), UserID(userID))
	if err != nil {
		if errors.Is(err, ErrSessionExists) {
			writeError(w, http.StatusConflict, "session already exists")
			return
		}
		h.log.Error("start failed", slog.String("session_id", sessionID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Chunk handles POST /api/stream/chunk. Multipart form: sessionId, optional
// timestamp (unix milliseconds), and the binary payload in the "chunk" part.
func (h *Handler) Chunk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxChunkMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "malformed form body")
		return
	}

	sessionID := r.PostFormValue("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	raw, ok := readChunkPayload(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "chunk payload is required")
		return
	}

	res, err := h.svc.Ingest(SessionID(sessionID), raw, parseClientTimestamp(r.PostFormValue("timestamp")))
	if err != nil {
		// A dead session is indistinguishable from a missing one for the caller.
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionNotLive) {
			writeError(w, http.StatusNotFound, "session not found or not live")
			return
		}
		h.log.Error("chunk ingest failed", slog.String("session_id", sessionID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"chunkIndex":        res.ChunkIndex,
		"totalChunks":       res.TotalChunks,
		"bufferSize":        res.BufferFill,
		"streamDuration":    res.StreamDuration.Seconds(),
		"uploadedSegments":  res.UploadedSegments,
		"completedSegments": res.UploadedSegments,
	})
}

// Status handles POST /api/stream/status. Form: sessionId.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PostFormValue("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	st, err := h.svc.Status(SessionID(sessionID))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Heartbeat handles POST /api/stream/heartbeat. Form: sessionId.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PostFormValue("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	live, err := h.svc.Heartbeat(SessionID(sessionID))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"isLive":    live,
	})
}

// End handles POST /api/stream/end. Form: sessionId. Idempotent.
func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PostFormValue("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	st, err := h.svc.End(SessionID(sessionID))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalChunks":      st.TotalChunks,
		"uploadedSegments": st.UploadedSegments,
		"duration":         st.Duration,
		"endTime":          st.EndTime,
	})
}

// ListActive handles GET /api/stream/sessions.
func (h *Handler) ListActive(w http.ResponseWriter, r *http.Request) {
	sessions := h.svc.ListActive()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// Manifest handles GET and POST /api/stream/manifest. The session id comes
// from the query string on GET and the form on POST.
func (h *Handler) Manifest(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = r.PostFormValue("sessionId")
	}
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	playlist, err := h.svc.Manifest(SessionID(sessionID))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	w.Header().Set("Content-Type", PlaylistContentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(playlist))
}

// readChunkPayload extracts the binary chunk from a multipart file part,
// falling back to a plain form field for non-multipart clients.
func readChunkPayload(r *http.Request) ([]byte, bool) {
	if file, _, err := r.FormFile("chunk"); err == nil {
		defer file.Close()
		raw, err := io.ReadAll(file)
		if err != nil || len(raw) == 0 {
			return nil, false
		}
		return raw, true
	}
	if v := r.PostFormValue("chunk"); v != "" {
		return []byte(v), true
	}
	return nil, false
}

// parseClientTimestamp interprets the form timestamp as unix milliseconds.
// Absent or invalid values yield the zero time, which the service replaces
// with ingestion time.
func parseClientTimestamp(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
