// ABOUTME: Scope daemon orchestrator that wires the mirror, ingest, and read API.
// ABOUTME: Manages the HTTP server lifecycle and health endpoints.

package scope

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/coven-scope/internal/config"
	"github.com/2389/coven-scope/internal/dedupe"
	"github.com/2389/coven-scope/internal/mirror"
	"github.com/2389/coven-scope/internal/protocol"
)

// Scope hosts the runtime mirror behind an HTTP surface: ingest endpoints
// that feed it payload frames and a read API that inspection clients consume.
type Scope struct {
	config     *config.Config
	core       *mirror.Core
	httpServer *http.Server
	logger     *slog.Logger

	// serverID identifies this scope instance
	serverID string

	// dedupe drops redelivered ingest frames
	dedupe *dedupe.Cache
}

// New creates a Scope instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Scope {
	s := &Scope{
		config:   cfg,
		core:     mirror.NewCore(logger),
		logger:   logger.With("component", "scope"),
		serverID: generateServerID(),
		dedupe:   dedupe.New(cfg.Ingest.DedupeTTL, cfg.Ingest.DedupeMaxEntries),
	}

	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleReady)

	// Ingest endpoints - the transport feeds payload frames here
	mux.HandleFunc("/ingest", s.handleIngest)
	if cfg.Ingest.AllowWebSocket {
		mux.HandleFunc("/ingest/ws", s.handleIngestWS)
	}

	// Read API - inspection surfaces consume the mirror here
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/context", s.handleContext)
	mux.HandleFunc("/api/tools", s.handleTools)
	mux.HandleFunc("/api/agents", s.handleListAgents)
	mux.HandleFunc("/api/agents/", s.handleAgentRoutes)
	mux.HandleFunc("/api/watch", s.handleWatch)

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Core exposes the mirror for tests and embedding callers.
func (s *Scope) Core() *mirror.Core {
	return s.core
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Scope) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the run context is already
// canceled.
func (s *Scope) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (s *Scope) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down scope")

	err := s.httpServer.Shutdown(ctx)
	s.dedupe.Close()

	if err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (s *Scope) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the mirror has heard from its source:
// either a non-disconnected status or at least one mirrored agent.
func (s *Scope) handleReady(w http.ResponseWriter, r *http.Request) {
	agents := s.core.Agents()
	if s.core.Status() == protocol.StatusDisconnected && len(agents) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no runtime mirrored"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%s, %d agents)", s.core.Status(), len(agents))
}

// generateServerID creates a unique identifier for this scope instance.
func generateServerID() string {
	return fmt.Sprintf("coven-scope-%d", time.Now().UnixNano()%1000000)
}
