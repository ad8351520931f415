// Package api implements APIFrontEnd: a single HTTP server exposing
// REST session CRUD/control, a WebSocket broadcaster at the root path,
// and the /event hook-intake pipeline, generalizing grovetools-core's
// daemon HTTP server (http.NewServeMux, one handler method per route)
// to this service's REST+WS surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentbridge/supervisor/internal/adapter"
	"github.com/agentbridge/supervisor/internal/hookdecoder"
	"github.com/agentbridge/supervisor/internal/logging"
	"github.com/agentbridge/supervisor/internal/supervisor"
	"github.com/agentbridge/supervisor/internal/terminalbridge"
)

var log = logging.For("api")

const maxBodyBytes = 10 << 20 // 10 MiB

// Server is APIFrontEnd: it owns the HTTP listener, the WebSocket hub,
// and the hook-decode pipeline shared with any LineTailer-fed intake.
type Server struct {
	Supervisor  *supervisor.SessionSupervisor
	Decoder     *hookdecoder.Decoder
	Adapters    *adapter.Registry
	Terminals   *terminalbridge.Manager
	CORSOrigins []string
	// Token, when non-empty, is required as a Bearer credential on
	// every mutating REST route. Left empty the API stays
	// unauthenticated, matching spec.md's REST surface by default.
	Token string
	// TmuxConnected reports live tmux connectivity for GET /health,
	// mirroring the teacher's `status` subcommand's own tmux check.
	// Left nil, health omits the field rather than claiming a false
	// negative.
	TmuxConnected func() bool

	hub        *Hub
	channels   *channelOwners
	httpServer *http.Server
	startedAt  time.Time
}

func New(sup *supervisor.SessionSupervisor, decoder *hookdecoder.Decoder, adapters *adapter.Registry, terminals *terminalbridge.Manager, corsOrigins []string) *Server {
	s := &Server{
		Supervisor:  sup,
		Decoder:     decoder,
		Adapters:    adapters,
		Terminals:   terminals,
		CORSOrigins: corsOrigins,
		hub:         NewHub(corsOrigins),
		channels:    newChannelOwners(),
		startedAt:   time.Now(),
	}
	s.hub.SetMessageHandler(s.handleWSMessage)
	terminals.SetOutputHandler(s.handleTerminalOutput)
	terminals.SetStatusHandler(s.handleTerminalStatus)
	return s
}

// PumpSignals forwards SessionSupervisor signals onto the WebSocket
// hub; run this in its own goroutine after Start.
func (s *Server) PumpSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-s.Supervisor.Signals:
			if !ok {
				return
			}
			s.hub.Broadcast(string(sig.Kind), sig.Session)
		}
	}
}

// PumpMessages forwards TranscriptReader-derived assistant messages
// onto the WebSocket hub as assistant_message events.
func (s *Server) PumpMessages(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.Supervisor.Messages:
			if !ok {
				return
			}
			s.hub.Broadcast("event", map[string]any{
				"type":      "assistant_message",
				"sessionId": msg.SessionID,
				"content":   msg.Message.Content,
				"requestId": msg.Message.RequestID,
				"isPreamble": msg.Message.IsPreamble,
			})
		}
	}
}

func (s *Server) mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", promhttp.Handler().ServeHTTP)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("POST /sessions", s.withAuth(s.handleCreateSession))
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("PATCH /sessions/{id}", s.withAuth(s.handleUpdateSession))
	mux.HandleFunc("DELETE /sessions/{id}", s.withAuth(s.handleDeleteSession))
	mux.HandleFunc("POST /sessions/{id}/prompt", s.withAuth(s.handleSendPrompt))
	mux.HandleFunc("POST /sessions/{id}/cancel", s.withAuth(s.handleCancel))
	mux.HandleFunc("POST /sessions/{id}/restart", s.withAuth(s.handleRestart))
	mux.HandleFunc("POST /event", s.handleEvent)
	mux.HandleFunc("/", s.handleRootOrNotFound)

	return s.withCORS(s.withBodyLimit(mux))
}

// withAuth guards a mutating route with the bearer token from
// SUPERVISOR_API_TOKEN/api.token when one is configured. With Token
// empty the route is left open, matching spec.md's default.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.Token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		auth := r.Header.Get("Authorization")
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix || auth[len(prefix):] != s.Token {
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next(w, r)
	}
}

// handleRootOrNotFound upgrades WebSocket connections at "/" and
// returns the taxonomy's 404 shape for anything else unmatched.
func (s *Server) handleRootOrNotFound(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" && r.Header.Get("Upgrade") == "websocket" {
		s.hub.Upgrade(w, r, map[string]any{"sessions": s.Supervisor.List(supervisor.ListFilter{})})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origin, s.CORSOrigins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withBodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe blocks serving on addr until the context is
// cancelled or the server errors.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.mux()}

	go s.PumpSignals(ctx)
	go s.PumpMessages(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("api server listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
