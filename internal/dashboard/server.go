// Package dashboard serves the local status dashboard.
//
// The dashboard is a read-only surface over the appliance's persisted state:
// it never writes the documents it reports on. Access is restricted by a
// simple IP allow-list; loopback is always permitted.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Config holds dashboard construction options.
type Config struct {
	Port       int
	AllowedIPs []string

	// Paths of the documents the dashboard reports on.
	StatusPath       string
	HeartbeatPath    string
	LKGPath          string
	UpdateStatePath  string
	ControlTokenPath string

	Log zerolog.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	cfg        Config
	httpServer *http.Server
	log        zerolog.Logger
}

// New creates the dashboard server.
func New(cfg Config) *Server {
	s := &Server{
		cfg: cfg,
		log: cfg.Log.With().Str("component", "dashboard").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))
	r.Use(s.allowListMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/stream", s.handleStream)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
	return s
}

// Start serves until Shutdown. Blocks.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Dashboard listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// allowListMiddleware rejects clients outside the allow-list. Loopback is
// always allowed so local tooling keeps working with an empty list.
func (s *Server) allowListMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		if !s.allowed(host) {
			s.log.Warn().Str("remote", host).Msg("Dashboard access denied")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowed(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil && ip.IsLoopback() {
		return true
	}
	for _, allowed := range s.cfg.AllowedIPs {
		if host == allowed {
			return true
		}
	}
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"pid":    os.Getpid(),
		"time":   time.Now().UTC(),
	})
}

// statusSnapshot aggregates every persisted document into one response.
// Documents that are missing or unreadable appear as null rather than
// failing the whole response: a partially-booted appliance is still
// observable.
type statusSnapshot struct {
	LED          json.RawMessage `json:"led"`
	Heartbeat    json.RawMessage `json:"heartbeat"`
	LastDecision json.RawMessage `json:"last_decision"`
	ControlToken string          `json:"control_token,omitempty"`
	Deployed     string          `json:"deployed_commit,omitempty"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

func (s *Server) snapshot() statusSnapshot {
	snap := statusSnapshot{GeneratedAt: time.Now().UTC()}
	snap.LED = readJSON(s.cfg.StatusPath)
	snap.Heartbeat = readJSON(s.cfg.HeartbeatPath)
	snap.LastDecision = readJSON(s.cfg.LKGPath)

	if data, err := os.ReadFile(s.cfg.ControlTokenPath); err == nil {
		snap.ControlToken = strings.TrimSpace(string(data))
	}
	if data, err := os.ReadFile(s.cfg.UpdateStatePath); err == nil {
		snap.Deployed = strings.TrimSpace(string(data))
	}
	return snap
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode status response")
	}
}

// readJSON loads a document, returning nil (encoded as JSON null) when it is
// missing or not valid JSON.
func readJSON(path string) json.RawMessage {
	data, err := os.ReadFile(path)
	if err != nil || !json.Valid(data) {
		return nil
	}
	return data
}
