package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/harun/tagrelay/internal/tracing"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := "ok"
	code := http.StatusOK
	if s.IsShuttingDown() {
		status = "shutting_down"
		code = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Uptime:    time.Since(s.startTime).Seconds(),
		Timestamp: time.Now().UnixMilli(),
		Requests:  s.metricsTracker.Snapshot(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(response)
}

// handleUpdate accepts one Telegram update and hands it on without waiting
// for processing
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	// Check if shutting down
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		s.reject(w, startTime, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	// Track in-flight request while holding the lock so Stop cannot miss it
	s.inFlightReqs.Add(1)
	s.shutdownMu.RUnlock()
	defer s.inFlightReqs.Done()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.reject(w, startTime, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ip := s.getClientIP(r)

	if s.rateLimiter != nil && !s.rateLimiter.CheckLimit(ip) {
		retryAfter := s.rateLimiter.GetRetryAfter(ip)
		s.logger.Warn().
			Str("ip", ip).
			Int("retryAfter", retryAfter).
			Msg("Rate limit exceeded")

		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		s.reject(w, startTime, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	if !verifySecretToken(r.Header.Get(SecretTokenHeader), s.options.SecretToken) {
		s.logger.Warn().Str("ip", ip).Msg("Invalid webhook secret token")
		s.reject(w, startTime, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.options.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(w, startTime, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		s.logger.Error().Err(err).Msg("Failed to read request body")
		s.reject(w, startTime, "Bad Request", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		s.reject(w, startTime, "Bad Request", http.StatusBadRequest)
		return
	}

	ctx := tracing.NewRequestContext(r.Context())
	if err := s.handler.HandleUpdate(ctx, body); err != nil {
		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Warn().
			Err(err).
			Str("ip", ip).
			Msg("Rejected update")
		s.reject(w, startTime, "Bad Request", http.StatusBadRequest)
		return
	}

	s.finish(startTime, true, http.StatusOK)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) reject(w http.ResponseWriter, startTime time.Time, msg string, code int) {
	s.finish(startTime, false, code)
	http.Error(w, msg, code)
}

func (s *Server) finish(startTime time.Time, accepted bool, code int) {
	s.metricsTracker.Track(accepted, float64(time.Since(startTime).Microseconds())/1000)
	s.recorder.WebhookRequest(code)
}
