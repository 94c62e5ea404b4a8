package webhook

import (
	"context"
	"net/http"
	"time"
)

// SecretTokenHeader carries the secret registered with setWebhook
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateHandler receives the raw body of every accepted update. It must not
// block on processing; the request context ends when the response is sent.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, data []byte) error
}

// Recorder receives one call per answered update request
type Recorder interface {
	WebhookRequest(code int)
}

type nopRecorder struct{}

func (nopRecorder) WebhookRequest(int) {}

// ServerOptions configures the webhook server
type ServerOptions struct {
	Port               int           // Server port (default: 10000)
	Host               string        // Server host (default: "0.0.0.0")
	Path               string        // Update path (default: "/webhook")
	SecretToken        string        // Expected secret header, empty disables the check
	MaxBodyBytes       int64         // Update body limit (default: 1 MiB)
	RateLimitPerMinute int           // Requests per minute per IP, 0 disables
	ShutdownTimeout    time.Duration // Wait for in-flight requests (default: 30s)
	ReadHeaderTimeout  time.Duration // Default: 10s
	MetricsHandler     http.Handler  // Served at /metrics when set
	Recorder           Recorder      // Receives response codes
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string       `json:"status"`
	Uptime    float64      `json:"uptime"`
	Timestamp int64        `json:"timestamp"`
	Requests  RequestStats `json:"requests"`
}

// RequestStats summarises update requests since start
type RequestStats struct {
	Total               int64   `json:"total"`
	Accepted            int64   `json:"accepted"`
	Rejected            int64   `json:"rejected"`
	AverageResponseTime float64 `json:"averageResponseTime"` // milliseconds
	LastRequestAt       int64   `json:"lastRequestAt,omitempty"`
}
