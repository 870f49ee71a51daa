package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Query limits for GET /messages.
const (
	defaultMessageLimit = 100
	maxMessageLimit     = 1000
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(s.accessLog)
	r.Use(s.recoverPanics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)

			r.Get("/status", s.handleStatus)
			r.Get("/messages", s.handleMessages)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

// statusResponse is the body of GET /status. Recorded and Archived are
// omitted when there is no recorder or archive.
type statusResponse struct {
	Version       string    `json:"version"`
	Session       string    `json:"session"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Recorded      *int64    `json:"recorded,omitempty"`
	Archived      *int64    `json:"archived,omitempty"`
	Feed          feedStats `json:"feed"`
}

type feedStats struct {
	Clients int   `json:"clients"`
	Dropped int64 `json:"dropped"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:       s.version,
		Session:       s.session.State().String(),
		StartedAt:     s.started.UTC(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Feed: feedStats{
			Clients: s.hub.ClientCount(),
			Dropped: s.hub.Dropped(),
		},
	}

	if s.recorder != nil {
		n := s.recorder.Count()
		resp.Recorded = &n
	}
	if s.archive != nil {
		if n, err := s.archive.Count(r.Context()); err != nil {
			s.logger.Warn("archive count failed", "error", err)
		} else {
			resp.Archived = &n
		}
	}

	respond(w, http.StatusOK, resp)
}

// handleMessages lists archived messages newest first.
// Query: topic (MQTT pattern, default all), limit (1..1000, default 100).
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		fail(w, http.StatusNotFound, codeNotFound, "archive is not enabled")
		return
	}

	q := r.URL.Query()
	limit := defaultMessageLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxMessageLimit {
			fail(w, http.StatusBadRequest, codeBadRequest, "limit must be an integer between 1 and 1000")
			return
		}
		limit = n
	}

	pattern := q.Get("topic")
	msgs, err := s.archive.Recent(r.Context(), pattern, limit)
	if err != nil {
		s.logger.Error("archive query failed", "topic", pattern, "error", err)
		fail(w, http.StatusInternalServerError, codeInternal, "archive query failed")
		return
	}

	respond(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"count":    len(msgs),
	})
}
