package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/tagrelay/internal/tracing"
	"github.com/harun/tagrelay/pkg/commandqueue"
	"github.com/harun/tagrelay/pkg/tagging"
)

// EventHandler consumes decoded events
type EventHandler interface {
	HandleUpload(ctx context.Context, ev tagging.AudioUploaded) error
	HandleToggle(ctx context.Context, ev tagging.ToggleRequested) error
	HandleConfirm(ctx context.Context, ev tagging.ConfirmRequested) error
}

// CommandHandler consumes bot commands
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd CommandContext) error
}

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	Handler  EventHandler
	Commands CommandHandler
	Queue    *commandqueue.CommandQueue
	Recorder Recorder
	Logger   zerolog.Logger

	// BaseContext outlives single requests; queued work derives from it
	BaseContext context.Context

	// WarnAfter logs a warning when an update waits longer in its lane
	WarnAfter time.Duration
}

// Dispatcher decodes raw updates and runs them on the sender's lane, so
// updates of one user are handled one at a time and in arrival order
type Dispatcher struct {
	handler   EventHandler
	commands  CommandHandler
	queue     *commandqueue.CommandQueue
	metrics   Recorder
	logger    zerolog.Logger
	base      context.Context
	warnAfter time.Duration
}

// NewDispatcher creates a dispatcher
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Handler == nil {
		return nil, fmt.Errorf("event handler is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("command queue is required")
	}

	d := &Dispatcher{
		handler:   cfg.Handler,
		commands:  cfg.Commands,
		queue:     cfg.Queue,
		metrics:   cfg.Recorder,
		logger:    cfg.Logger.With().Str("module", "dispatcher").Logger(),
		base:      cfg.BaseContext,
		warnAfter: cfg.WarnAfter,
	}
	if d.metrics == nil {
		d.metrics = nopRecorder{}
	}
	if d.base == nil {
		d.base = context.Background()
	}

	return d, nil
}

// HandleUpdate decodes one raw update and queues it. It returns once the
// update is queued; redelivered update ids are dropped.
func (d *Dispatcher) HandleUpdate(ctx context.Context, data []byte) error {
	update, err := DecodeUpdate(data)
	if err != nil {
		return err
	}

	ev := update.Event()
	d.metrics.UpdateReceived(ev.Kind)

	if ev.Kind == KindIgnored {
		d.logger.Debug().Int("update_id", update.UpdateID).Msg("Update ignored")
		return nil
	}

	// The webhook request ends before the task runs
	taskCtx := tracing.Detach(d.base, ctx)
	if tracing.GetTraceID(taskCtx) == "" {
		taskCtx = tracing.NewRequestContext(taskCtx)
	}
	taskCtx = tracing.WithUpdateID(taskCtx, update.UpdateID)
	taskCtx = tracing.WithUserID(taskCtx, ev.UserID)

	lane := commandqueue.UserLane(ev.UserID)
	key := fmt.Sprintf("update:%d", update.UpdateID)

	var opts *commandqueue.TaskOptions
	if d.warnAfter > 0 {
		opts = &commandqueue.TaskOptions{WarnAfterMs: int(d.warnAfter.Milliseconds())}
	}

	_, queued := d.queue.SubmitOnce(taskCtx, lane, key, func(ctx context.Context) (interface{}, error) {
		err := d.Dispatch(ctx, ev)
		if err != nil {
			logger := tracing.LoggerFromContext(ctx, d.logger)
			logger.Error().
				Err(err).
				Str("kind", ev.Kind).
				Msg("Failed to handle event")
		}
		return nil, err
	}, opts)

	if !queued {
		d.logger.Debug().Int("update_id", update.UpdateID).Msg("Duplicate update dropped")
	}

	return nil
}

// Dispatch routes one event to the handler synchronously
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case KindAudio:
		return d.handler.HandleUpload(ctx, *ev.Upload)
	case KindToggle:
		return d.handler.HandleToggle(ctx, *ev.Toggle)
	case KindConfirm:
		return d.handler.HandleConfirm(ctx, *ev.Confirm)
	case KindCommand:
		if d.commands != nil {
			return d.commands.HandleCommand(ctx, *ev.Command)
		}
	}
	return nil
}
