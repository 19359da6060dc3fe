// Package dashboard serves a read-only JSON API over the session
// manager and the play history.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/quaverbot/quaver/internal/app/voice"
	"github.com/quaverbot/quaver/internal/infra/history"
)

// Server is the dashboard HTTP server.
type Server struct {
	manager *voice.Manager
	history *history.Store
	httpSrv *http.Server
	log     zerolog.Logger
}

// New creates a dashboard server. The history store may be nil when
// history is disabled.
func New(addr string, manager *voice.Manager, store *history.Store) *Server {
	s := &Server{
		manager: manager,
		history: store,
		log:     zlog.With().Str("component", "dashboard").Logger(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", s.handleSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{guild}", s.handleSession).Methods(http.MethodGet)
	r.HandleFunc("/api/history/{guild}", s.handleHistory).Methods(http.MethodGet)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Msgf("dashboard listening on %s", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Snapshots())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guild"]
	session, ok := s.manager.Peek(guildID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no session for guild")
		return
	}
	s.writeJSON(w, http.StatusOK, voice.SnapshotOf(guildID, session.State()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), mux.Vars(r)["guild"], limit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to query history")
		s.writeError(w, http.StatusInternalServerError, "failed to query history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}
