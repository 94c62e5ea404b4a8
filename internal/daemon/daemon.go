package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/harun/tagrelay/internal/config"
	"github.com/harun/tagrelay/internal/logger"
	"github.com/harun/tagrelay/internal/metrics"
	"github.com/harun/tagrelay/internal/telegram"
	"github.com/harun/tagrelay/internal/tracing"
	"github.com/harun/tagrelay/pkg/commandqueue"
	"github.com/harun/tagrelay/pkg/registry"
	"github.com/harun/tagrelay/pkg/session"
	"github.com/harun/tagrelay/pkg/tagging"
	"github.com/harun/tagrelay/pkg/webhook"
)

const (
	helpText = "Send an audio file to the chat, tick the playlists it belongs to, then press Done. " +
		"The track is forwarded to every ticked playlist and to the shared one."

	queueWarnAfter = 10 * time.Second
	stopWaitLimit  = 5 * time.Second
)

// Daemon wires the tagging pipeline and owns its lifecycle
type Daemon struct {
	config  *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics

	// Core modules
	registry   *registry.Registry
	store      *session.MemoryStore
	queue      *commandqueue.CommandQueue
	controller *tagging.Controller

	// Telegram
	bot        *telegram.Bot
	commands   *telegram.Commands
	dispatcher *telegram.Dispatcher

	// Services
	webhookServer *webhook.Server
	webhookAddr   string
	maintenance   *Maintenance
	lifecycle     *LifecycleManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// Status describes a running daemon
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Mode      string
	Sessions  int
	Lanes     int
}

// New creates a daemon and authenticates the bot against Telegram
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	bot, err := telegram.New(&cfg.Telegram, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return NewWithBot(cfg, log, bot)
}

// NewWithBot creates a daemon around an existing bot
func NewWithBot(cfg *config.Config, log *logger.Logger, bot *telegram.Bot) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if bot == nil {
		return nil, fmt.Errorf("telegram bot is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		config:  cfg,
		logger:  log,
		metrics: metrics.NewMetrics(),
		bot:     bot,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := d.initializeCoreModules(); err != nil {
		cancel()
		return nil, err
	}

	if err := d.initializeServices(); err != nil {
		cancel()
		d.queue.Close()
		return nil, err
	}

	d.lifecycle = NewLifecycleManager(cfg.DataDir, log.Component("lifecycle"))

	return d, nil
}

func (d *Daemon) initializeCoreModules() error {
	reg, err := d.config.Registry()
	if err != nil {
		return fmt.Errorf("failed to build topic registry: %w", err)
	}
	d.registry = reg

	d.store = session.NewMemoryStore(reg)

	d.queue = commandqueue.NewWithOptions(commandqueue.Options{
		Recorder: d.metrics,
		DedupTTL: time.Duration(d.config.Telegram.DedupeTTLSeconds) * time.Second,
	})

	taggingLogger := d.logger.GetZerolog()
	d.controller, err = tagging.New(tagging.Config{
		Registry:  reg,
		Store:     d.store,
		Messenger: d.bot,
		Messages:  d.config.Messages,
		Fanout:    d.config.FanoutOptions(),
		Recorder:  d.metrics,
		Logger:    &taggingLogger,
	})
	if err != nil {
		d.queue.Close()
		return fmt.Errorf("failed to create tagging controller: %w", err)
	}

	return nil
}

func (d *Daemon) initializeServices() error {
	d.bot.SetRecorder(d.metrics)

	d.commands = telegram.NewCommands(d.bot)
	d.commands.RegisterDefaults(helpText, d.registry.Tags)

	dispatcher, err := telegram.NewDispatcher(telegram.DispatcherConfig{
		Handler:     d.controller,
		Commands:    d.commands,
		Queue:       d.queue,
		Recorder:    d.metrics,
		Logger:      d.logger.Component("dispatcher"),
		BaseContext: d.ctx,
		WarnAfter:   queueWarnAfter,
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	d.dispatcher = dispatcher

	if d.config.Telegram.Mode == config.ModeWebhook {
		server, err := webhook.NewServer(webhook.ServerOptions{
			Port:            d.config.Webhook.Port,
			Host:            d.config.Webhook.Host,
			Path:            d.config.Webhook.Path,
			SecretToken:     d.config.Webhook.SecretToken,
			MaxBodyBytes:    d.config.Webhook.MaxBodyBytes,
			ShutdownTimeout: time.Duration(d.config.Webhook.ShutdownTimeout) * time.Second,
			MetricsHandler:  d.metrics.Handler(),
			Recorder:        d.metrics,
		}, d.dispatcher, d.logger.Component("webhook"))
		if err != nil {
			return fmt.Errorf("failed to create webhook server: %w", err)
		}
		d.webhookServer = server
	}

	maintenance, err := NewMaintenance(
		d.config.Maintenance.Schedule,
		time.Duration(d.config.Maintenance.LaneIdleMinutes)*time.Minute,
		d.store,
		d.metrics,
		d.queue,
		d.logger.GetZerolog(),
	)
	if err != nil {
		return err
	}
	d.maintenance = maintenance

	return nil
}

// Start writes the PID file and begins receiving updates in the configured
// mode
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().
		Str("mode", d.config.Telegram.Mode).
		Int("topics", d.registry.Len()).
		Msg("Starting tagrelay daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	ctx := tracing.WithTraceID(d.ctx, traceID)
	if err := d.commands.SyncMenu(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish command menu")
	}

	if d.webhookServer != nil {
		if err := d.startWebhook(ctx); err != nil {
			_ = d.lifecycle.Stop()
			d.setStopped()
			return err
		}
		logger.Info().Str("addr", d.webhookAddr).Msg("Webhook server started")
	} else {
		if err := d.bot.Start(d.ctx, d.dispatcher); err != nil {
			_ = d.lifecycle.Stop()
			d.setStopped()
			return fmt.Errorf("failed to start telegram bot: %w", err)
		}
		logger.Info().Msg("Telegram polling started")
	}

	d.maintenance.Start()

	logger.Info().Msg("Daemon started successfully")

	return nil
}

// startWebhook binds the listener synchronously so address errors surface
// here, then registers the public URL with Telegram
func (d *Daemon) startWebhook(ctx context.Context) error {
	addr := net.JoinHostPort(d.config.Webhook.Host, strconv.Itoa(d.config.Webhook.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	d.webhookAddr = listener.Addr().String()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.webhookServer.Serve(listener); err != nil {
			d.logger.Error().Err(err).Msg("Webhook server stopped unexpectedly")
		}
	}()

	if err := d.bot.SetWebhook(ctx, d.config.WebhookURL(), d.config.Webhook.SecretToken); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopWaitLimit)
		defer cancel()
		_ = d.webhookServer.Stop(stopCtx)
		return fmt.Errorf("failed to register webhook: %w", err)
	}

	return nil
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Stop stops receiving updates, drains queued work and removes the PID file
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Stopping tagrelay daemon")

	// Stop intake first so nothing new reaches the queue
	if d.webhookServer != nil {
		deleteCtx, cancel := context.WithTimeout(context.Background(), stopWaitLimit)
		if err := d.bot.DeleteWebhook(deleteCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to delete webhook")
		}
		cancel()

		timeout := time.Duration(d.config.Webhook.ShutdownTimeout) * time.Second
		if timeout <= 0 {
			timeout = stopWaitLimit
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := d.webhookServer.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop webhook server")
		}
		cancel()
	} else {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopWaitLimit)
		if err := d.bot.Stop(stopCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop telegram bot")
		}
		cancel()
	}

	d.maintenance.Stop()

	if !d.queue.WaitForActive(stopWaitLimit) {
		logger.Warn().Msg("Timeout waiting for queued updates")
	}
	if err := d.queue.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close command queue")
	}
	logger.Info().Msg("Command queue stopped")

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-time.After(stopWaitLimit):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	logger.Info().Int("open_sessions", d.store.Len()).Msg("Daemon stopped successfully")

	return nil
}

// Run starts the daemon and blocks until ctx ends or SIGINT/SIGTERM arrives
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		d.logger.Info().Str("signal", sig.String()).Msg("Received signal")
	case <-ctx.Done():
		d.logger.Info().Msg("Context cancelled")
	}

	return d.Stop()
}

// Status returns the current daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:  d.running,
		Mode:     d.config.Telegram.Mode,
		Sessions: d.store.Len(),
		Lanes:    d.queue.LaneCount(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetRegistry returns the topic registry
func (d *Daemon) GetRegistry() *registry.Registry {
	return d.registry
}

// GetSessionStore returns the session store
func (d *Daemon) GetSessionStore() *session.MemoryStore {
	return d.store
}

// GetQueue returns the command queue
func (d *Daemon) GetQueue() *commandqueue.CommandQueue {
	return d.queue
}

// GetDispatcher returns the update dispatcher
func (d *Daemon) GetDispatcher() *telegram.Dispatcher {
	return d.dispatcher
}

// GetMetrics returns the metrics collector
func (d *Daemon) GetMetrics() *metrics.Metrics {
	return d.metrics
}

// GetWebhookServer returns the webhook server, nil in polling mode
func (d *Daemon) GetWebhookServer() *webhook.Server {
	return d.webhookServer
}

// WebhookAddr returns the bound webhook listener address once started
func (d *Daemon) WebhookAddr() string {
	return d.webhookAddr
}

// GetLifecycle returns the lifecycle manager
func (d *Daemon) GetLifecycle() *LifecycleManager {
	return d.lifecycle
}
