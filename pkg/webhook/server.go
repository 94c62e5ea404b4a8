package webhook

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Server receives Telegram updates over HTTPS-terminated HTTP
type Server struct {
	options        ServerOptions
	server         *http.Server
	handler        UpdateHandler
	rateLimiter    *RateLimiter
	metricsTracker *MetricsTracker
	recorder       Recorder
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a new webhook server
func NewServer(options ServerOptions, handler UpdateHandler, logger zerolog.Logger) (*Server, error) {
	// Set defaults
	if options.Port == 0 {
		options.Port = 10000
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.Path == "" {
		options.Path = "/webhook"
	}
	if options.MaxBodyBytes <= 0 {
		options.MaxBodyBytes = 1 << 20
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 30 * time.Second
	}
	if options.ReadHeaderTimeout == 0 {
		options.ReadHeaderTimeout = 10 * time.Second
	}

	if handler == nil {
		return nil, fmt.Errorf("update handler is required")
	}
	if !strings.HasPrefix(options.Path, "/") {
		return nil, fmt.Errorf("webhook path must start with /, got %q", options.Path)
	}

	s := &Server{
		options:        options,
		handler:        handler,
		metricsTracker: NewMetricsTracker(),
		recorder:       options.Recorder,
		logger:         logger.With().Str("component", "webhook").Logger(),
		startTime:      time.Now(),
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if options.RateLimitPerMinute > 0 {
		s.rateLimiter = NewRateLimiter(options.RateLimitPerMinute)
	}

	s.server = &http.Server{
		Addr:              net.JoinHostPort(options.Host, fmt.Sprintf("%d", options.Port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: options.ReadHeaderTimeout,
	}

	return s, nil
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", s.handleHealth)

	if s.options.MetricsHandler != nil {
		mux.Handle("/metrics", s.options.MetricsHandler)
	}

	mux.HandleFunc(s.options.Path, s.handleUpdate)

	return mux
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Str("path", s.options.Path).
		Msg("Starting webhook server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start webhook server: %w", err)
	}

	return nil
}

// Serve serves on an existing listener until Stop is called
func (s *Server) Serve(l net.Listener) error {
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webhook server failed: %w", err)
	}
	return nil
}

// Stop refuses new updates, waits for in-flight requests up to the shutdown
// timeout or ctx, then shuts the HTTP server down
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down webhook server")

	// Wait for in-flight requests with timeout
	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.options.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-timer.C:
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown cancelled, forcing close")
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown webhook server: %w", err)
	}

	s.logger.Info().Msg("Webhook server stopped")
	return nil
}

// IsShuttingDown reports whether Stop was called
func (s *Server) IsShuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

// GetMetrics returns the request counters
func (s *Server) GetMetrics() RequestStats {
	return s.metricsTracker.Snapshot()
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.server.Addr
}

// getClientIP extracts the client IP from the request
func (s *Server) getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Use RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
