// Package server implements the HTTP front-end for the replica builder.
// It exposes REST endpoints for dispatching site builds, checking subdomain
// availability and listing deployed sites, plus a Server-Sent Events (SSE)
// endpoint that streams workflow run status to clients while a build runs.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xiyo/replica-builder/internal/cloudflare"
	"github.com/xiyo/replica-builder/internal/config"
	"github.com/xiyo/replica-builder/internal/github"
	"github.com/xiyo/replica-builder/internal/logger"
)

// Common errors returned by the server
var (
	// ErrServerRunning is returned when attempting to start an already running server
	ErrServerRunning = errors.New("server is already running")
)

// Server represents the replica builder HTTP server. It holds the GitHub
// client used for workflow dispatch and status streaming, and an optional
// Cloudflare client used for subdomain availability checks.
type Server struct {
	cfg        *config.Config
	gh         *github.Client
	dns        *cloudflare.Client // nil when Cloudflare credentials are absent
	port       int
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	running    bool
}

// New creates a server from the given configuration. GitHub settings are
// required; Cloudflare settings are optional and only gate the subdomain
// availability endpoint.
func New(cfg *config.Config) (*Server, error) {
	if err := cfg.ValidateGitHub(); err != nil {
		return nil, err
	}

	gh, err := github.NewClient(github.Config{
		Token:      cfg.GitHub.Token,
		Owner:      cfg.GitHub.Owner,
		Repo:       cfg.GitHub.Repo,
		WorkflowID: cfg.GitHub.WorkflowID,
		Ref:        cfg.GitHub.Ref,
	})
	if err != nil {
		return nil, err
	}

	var dns *cloudflare.Client
	if err := cfg.ValidateCloudflare(); err == nil {
		var cfErr error
		dns, cfErr = cloudflare.NewClient(cloudflare.Config{
			APIKey: cfg.Cloudflare.APIKey,
			Email:  cfg.Cloudflare.Email,
			ZoneID: cfg.Cloudflare.ZoneID,
		})
		if cfErr != nil {
			return nil, cfErr
		}
	} else {
		logger.WithError(err).Info("Cloudflare not configured, subdomain checks disabled")
	}

	return newWithClients(cfg, gh, dns), nil
}

// newWithClients wires a server around pre-built clients. Tests use this to
// point the server at stub upstreams.
func newWithClients(cfg *config.Config, gh *github.Client, dns *cloudflare.Client) *Server {
	logger.WithField("port", cfg.Server.Port).Debug("Creating new server")
	return &Server{
		cfg:  cfg,
		gh:   gh,
		dns:  dns,
		port: cfg.Server.Port,
	}
}

// Start begins listening for HTTP requests on the configured port.
// The server runs until the provided context is canceled.
// Returns http.ErrServerClosed on graceful shutdown, or any other error if startup fails.
func (s *Server) Start(ctx context.Context) error {
	logger.WithField("port", s.port).Info("Starting HTTP server")

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Warn("Attempted to start already running server")
		return ErrServerRunning
	}
	s.running = true
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logger.Info("Server start canceled due to context cancellation")
		return ctx.Err()
	default:
	}

	addr := fmt.Sprintf("0.0.0.0:%d", s.port)
	if s.port == 0 {
		addr = "localhost:0" // Let OS assign port
		logger.Debug("Using dynamic port assignment")
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		logger.WithFields(map[string]interface{}{
			"error":   err.Error(),
			"address": addr,
		}).Error("Failed to create listener")
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	logger.WithField("address", listener.Addr().String()).Info("Server listening")

	s.httpServer = &http.Server{
		Handler: s.routes(),
	}

	// Handle shutdown when context is canceled
	go func() {
		<-ctx.Done()
		logger.Info("Server shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithField("error", err.Error()).Error("Error during server shutdown")
		}
	}()

	logger.Info("Server starting to accept connections")
	err = s.httpServer.Serve(listener)

	s.mu.Lock()
	s.running = false
	s.listener = nil
	s.mu.Unlock()

	// http.ErrServerClosed is expected when shutting down gracefully
	if err == http.ErrServerClosed {
		logger.Info("Server shut down gracefully")
		return err
	}

	if err != nil {
		logger.WithField("error", err.Error()).Error("Server error")
	}
	return err
}

// routes builds the request mux with logging middleware applied.
func (s *Server) routes() http.Handler {
	log := logger.GetLogger()
	middleware := logger.HTTPMiddleware(log)
	sse := logger.SSEMiddleware(log)

	mux := http.NewServeMux()
	mux.Handle("POST /api/builds", middleware(http.HandlerFunc(s.buildHandler)))
	mux.Handle("GET /api/workflow-status/{subdomain}", sse(http.HandlerFunc(s.workflowStatusHandler)))
	mux.Handle("GET /api/workflow-status/{subdomain}/poll", middleware(http.HandlerFunc(s.workflowStatusPollHandler)))
	mux.Handle("GET /api/check-subdomain/{subdomain}", middleware(http.HandlerFunc(s.checkSubdomainHandler)))
	mux.Handle("GET /api/sites", middleware(http.HandlerFunc(s.sitesHandler)))
	mux.Handle("GET /api/templates", middleware(http.HandlerFunc(s.templatesHandler)))
	mux.Handle("GET /api/templates/{id}/schema", middleware(http.HandlerFunc(s.templateSchemaHandler)))
	mux.Handle("GET /health", middleware(http.HandlerFunc(s.healthHandler)))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Address returns the actual address the server is listening on.
// Returns empty string if the server is not running.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
