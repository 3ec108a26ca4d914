// Package api serves the watchdog's machine-facing surface: current loop
// state, the event journal, a live event stream, the rotated log and the
// Prometheus registry. It is read-mostly; the single write operation
// queues a maintenance reconnect for the loop to pick up.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/history"
	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/logging"
	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/metrics"
	"github.com/didac-crst/fritzbox-ipv4-watchdog/internal/watchdog"
)

// Loop is the slice of the watchdog the API reaches into.
type Loop interface {
	Snapshot() watchdog.Snapshot
	RequestReconnect(source string)
}

// Config carries the server's address, optional basic-auth credentials
// and the log file it exposes.
type Config struct {
	Addr     string
	AuthUser string
	// AuthHash is a bcrypt hash of the service account password. Auth is
	// enforced only when both AuthUser and AuthHash are set.
	AuthHash string
	LogPath  string
}

// Server is the HTTP status server.
type Server struct {
	log   *slog.Logger
	cfg   Config
	loop  Loop
	hist  *history.Store
	hub   *hub
	srv   *http.Server
	unsub func()
}

// New assembles the server and subscribes its event stream hub to the
// history store. Call Start to begin listening.
func New(cfg Config, loop Loop, hist *history.Store, log *slog.Logger) *Server {
	s := &Server{
		log:  log,
		cfg:  cfg,
		loop: loop,
		hist: hist,
		hub:  newHub(log),
	}
	s.unsub = hist.Subscribe(s.hub.broadcast)
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	// Probes and scrapers stay outside auth.
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.AuthUser != "" && s.cfg.AuthHash != "" {
			r.Use(RequireBasicAuth(s.cfg.AuthUser, s.cfg.AuthHash))
		}

		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)
		r.Get("/events/stream", s.handleEventStream)
		r.Post("/reconnect", s.handleReconnect)
		r.Get("/log", s.handleLogTail)
		r.Delete("/log", s.handleLogClear)
	})
	return r
}

// Start begins serving in the background. Listener failures are logged,
// not fatal: the supervision loop must outlive a broken status port.
func (s *Server) Start() {
	go func() {
		s.log.Info("status API listening", "addr", s.cfg.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("status API server failed", "error", err)
		}
	}()
}

// Shutdown stops the listener and drops all event stream subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.unsub != nil {
		s.unsub()
	}
	s.hub.closeAll()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.loop.Snapshot()

	status := "healthy"
	channel := "connected"
	if !snap.Connected {
		// The channel is expected to drop during a router reboot; the
		// daemon itself is still fine.
		status = "degraded"
		channel = "disconnected"
	}
	storage := "memory"
	if s.hist.Persistent() {
		storage = "sqlite"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":          status,
		"control_channel": channel,
		"history":         storage,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.loop.Snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 1 || v > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = v
	}

	events := s.hist.Recent(limit)
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	s.loop.RequestReconnect("api:" + r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleLogTail(w http.ResponseWriter, r *http.Request) {
	n := 200
	if q := r.URL.Query().Get("tail"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil || v < 1 || v > 10000 {
			writeError(w, http.StatusBadRequest, "tail must be between 1 and 10000")
			return
		}
		n = v
	}

	content, err := logging.ReadTail(s.cfg.LogPath, n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read log")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(content))
}

func (s *Server) handleLogClear(w http.ResponseWriter, r *http.Request) {
	if err := logging.Clear(s.cfg.LogPath); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clear log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
