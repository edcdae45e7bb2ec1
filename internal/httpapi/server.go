package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/streambench/internal/config"
	"github.com/ent0n29/streambench/internal/logging"
	"github.com/ent0n29/streambench/internal/observability"
	"github.com/ent0n29/streambench/internal/session"
)

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	metrics  *observability.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, metrics *observability.Metrics, logger *zap.Logger) *Server {
	if metrics == nil {
		metrics = observability.NewMetrics("streambench")
	}
	if sessions == nil {
		sessions = session.NewManager(cfg.MaxActiveStreams, cfg.StreamIdleTimeout)
	}
	if cfg.DefaultWords <= 0 {
		cfg.DefaultWords = 100
	}
	if cfg.DefaultDelayMS <= 0 {
		cfg.DefaultDelayMS = 50
	}
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		metrics:  metrics,
		logger:   logging.OrNop(logger).With(zap.String("component", "httpapi")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		Recovery(s.logger),
		RequestLogger(s.logger),
		RequestMetrics(s.metrics),
	)
	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleNotFound)

	r.Get("/stream", s.handleStream)
	r.Options("/stream", handleStreamPreflight)
	r.Get("/stream/ws", s.handleStreamWS)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)

	r.Get("/v1/streams", s.handleListStreams)
	r.Get("/v1/streams/{id}", s.handleGetStream)
	r.Post("/v1/streams/{id}/cancel", s.handleCancelStream)
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Delete("/v1/perf/latency", s.handleResetPerfLatency)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"active_streams": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	active := s.sessions.ActiveCount()
	if s.cfg.MaxActiveStreams > 0 && active >= s.cfg.MaxActiveStreams {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":         "saturated",
			"active_streams": active,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"active_streams": active,
	})
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	respondError(w, http.StatusNotFound, "not_found", "not found")
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
