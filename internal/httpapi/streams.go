package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/streambench/internal/session"
)

func (s *Server) handleListStreams(w http.ResponseWriter, _ *http.Request) {
	streams := s.sessions.List()
	respondJSON(w, http.StatusOK, map[string]any{
		"streams": streams,
		"active":  len(streams),
	})
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// handleCancelStream flags a live stream; its loop stops before the next
// token and the connection is closed without the done sentinel.
func (s *Server) handleCancelStream(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_stream_id", "missing stream id")
		return
	}
	sess, err := s.sessions.Cancel(id)
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	s.metrics.StreamEvents.WithLabelValues("cancel_requested").Inc()
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) respondSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNotFound) {
		respondError(w, http.StatusNotFound, "stream_not_found", err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, "internal", err.Error())
}
