package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/harun/tagrelay/pkg/commandqueue"
	"github.com/harun/tagrelay/pkg/tagging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tagrelay"

var (
	_ tagging.Recorder      = (*Metrics)(nil)
	_ commandqueue.Recorder = (*Metrics)(nil)
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	ActiveSessions       prometheus.Gauge
	SessionsCreatedTotal prometheus.Counter
	UploadsTotal         *prometheus.CounterVec
	TogglesTotal         *prometheus.CounterVec
	ConfirmsTotal        *prometheus.CounterVec

	// Dispatch metrics
	DeliveriesTotal  *prometheus.CounterVec
	DeliveryDuration prometheus.Histogram
	FanoutDuration   prometheus.Histogram

	// Queue metrics
	QueueEnqueueTotal *prometheus.CounterVec
	QueueSize         *prometheus.GaugeVec
	QueueTaskDuration *prometheus.HistogramVec

	// Telegram metrics
	TelegramUpdatesTotal  *prometheus.CounterVec
	TelegramRequestsTotal *prometheus.CounterVec
	TelegramErrorsTotal   prometheus.Counter

	// Webhook metrics
	WebhookRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Session metrics
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of tagging sessions awaiting confirmation",
			},
		),
		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_created_total",
				Help:      "Total number of tagging sessions started",
			},
		),
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Total number of audio uploads by result",
			},
			[]string{"result"},
		),
		TogglesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "toggles_total",
				Help:      "Total number of tag toggles by result",
			},
			[]string{"result"},
		),
		ConfirmsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "confirms_total",
				Help:      "Total number of confirmations by result",
			},
			[]string{"result"},
		),

		// Dispatch metrics
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deliveries_total",
				Help:      "Total number of audio deliveries by status",
			},
			[]string{"status"},
		),
		DeliveryDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "delivery_duration_seconds",
				Help:      "Duration of single audio deliveries in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		FanoutDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fanout_duration_seconds",
				Help:      "Duration of a full fan-out until every delivery resolved",
				Buckets:   prometheus.DefBuckets,
			},
		),

		// Queue metrics
		QueueEnqueueTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_enqueue_total",
				Help:      "Total enqueue operations by lane class",
			},
			[]string{"lane"},
		),
		QueueSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_size",
				Help:      "Queue size of the most recently active lane by lane class",
			},
			[]string{"lane"},
		),
		QueueTaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "queue_task_duration_seconds",
				Help:      "Task execution duration in seconds by lane class and status",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"lane", "status"},
		),

		// Telegram metrics
		TelegramUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "telegram_updates_total",
				Help:      "Total number of Telegram updates received by kind",
			},
			[]string{"kind"},
		),
		TelegramRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "telegram_requests_total",
				Help:      "Total number of Bot API requests by method",
			},
			[]string{"method"},
		),
		TelegramErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "telegram_errors_total",
				Help:      "Total number of failed Bot API requests",
			},
		),

		// Webhook metrics
		WebhookRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_requests_total",
				Help:      "Total number of webhook requests by HTTP status code",
			},
			[]string{"code"},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Session metrics
	m.registry.MustRegister(m.ActiveSessions)
	m.registry.MustRegister(m.SessionsCreatedTotal)
	m.registry.MustRegister(m.UploadsTotal)
	m.registry.MustRegister(m.TogglesTotal)
	m.registry.MustRegister(m.ConfirmsTotal)

	// Dispatch metrics
	m.registry.MustRegister(m.DeliveriesTotal)
	m.registry.MustRegister(m.DeliveryDuration)
	m.registry.MustRegister(m.FanoutDuration)

	// Queue metrics
	m.registry.MustRegister(m.QueueEnqueueTotal)
	m.registry.MustRegister(m.QueueSize)
	m.registry.MustRegister(m.QueueTaskDuration)

	// Telegram metrics
	m.registry.MustRegister(m.TelegramUpdatesTotal)
	m.registry.MustRegister(m.TelegramRequestsTotal)
	m.registry.MustRegister(m.TelegramErrorsTotal)

	// Webhook metrics
	m.registry.MustRegister(m.WebhookRequestsTotal)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// UploadHandled records an upload outcome
func (m *Metrics) UploadHandled(result string) {
	m.UploadsTotal.WithLabelValues(result).Inc()
	if result == tagging.ResultOK {
		m.SessionsCreatedTotal.Inc()
	}
}

// ToggleHandled records a toggle outcome
func (m *Metrics) ToggleHandled(result string) {
	m.TogglesTotal.WithLabelValues(result).Inc()
}

// ConfirmHandled records a confirm outcome
func (m *Metrics) ConfirmHandled(result string) {
	m.ConfirmsTotal.WithLabelValues(result).Inc()
}

// DeliveryFinished records one delivery
func (m *Metrics) DeliveryFinished(status string, duration time.Duration) {
	m.DeliveriesTotal.WithLabelValues(status).Inc()
	m.DeliveryDuration.Observe(duration.Seconds())
}

// FanoutFinished records a completed fan-out
func (m *Metrics) FanoutFinished(deliveries, failed int, duration time.Duration) {
	m.FanoutDuration.Observe(duration.Seconds())
}

// SessionsActive sets the active session gauge
func (m *Metrics) SessionsActive(n int) {
	m.ActiveSessions.Set(float64(n))
}

// QueueEnqueued records a task entering a lane
func (m *Metrics) QueueEnqueued(lane string, queueSize int) {
	class := commandqueue.LaneClass(lane)
	m.QueueEnqueueTotal.WithLabelValues(class).Inc()
	m.QueueSize.WithLabelValues(class).Set(float64(queueSize))
}

// QueueCompleted records a finished lane task
func (m *Metrics) QueueCompleted(lane string, duration time.Duration, success bool, queueSize int) {
	class := commandqueue.LaneClass(lane)
	status := "success"
	if !success {
		status = "error"
	}
	m.QueueTaskDuration.WithLabelValues(class, status).Observe(duration.Seconds())
	m.QueueSize.WithLabelValues(class).Set(float64(queueSize))
}

// UpdateReceived records an inbound Telegram update
func (m *Metrics) UpdateReceived(kind string) {
	m.TelegramUpdatesTotal.WithLabelValues(kind).Inc()
}

// RequestSent records an outbound Bot API call
func (m *Metrics) RequestSent(method string, err error) {
	m.TelegramRequestsTotal.WithLabelValues(method).Inc()
	if err != nil {
		m.TelegramErrorsTotal.Inc()
	}
}

// WebhookRequest records a webhook HTTP response code
func (m *Metrics) WebhookRequest(code int) {
	m.WebhookRequestsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}
