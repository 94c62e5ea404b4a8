package tagging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/tagrelay/internal/tracing"
	"github.com/harun/tagrelay/pkg/fanout"
	"github.com/harun/tagrelay/pkg/registry"
	"github.com/harun/tagrelay/pkg/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config wires a Controller
type Config struct {
	Registry  *registry.Registry
	Store     session.Store
	Messenger Messenger
	Messages  Messages
	Fanout    fanout.Options
	Recorder  Recorder
	Logger    *zerolog.Logger
}

// Controller implements the upload, toggle and confirm transitions
type Controller struct {
	registry  *registry.Registry
	store     session.Store
	messenger Messenger
	messages  Messages
	fanout    fanout.Options
	recorder  Recorder
	logger    zerolog.Logger
}

// New creates a Controller
func New(cfg Config) (*Controller, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Messenger == nil {
		return nil, fmt.Errorf("messenger is required")
	}

	c := &Controller{
		registry:  cfg.Registry,
		store:     cfg.Store,
		messenger: cfg.Messenger,
		messages:  cfg.Messages.withDefaults(),
		fanout:    cfg.Fanout,
		recorder:  cfg.Recorder,
		logger:    log.Logger.With().Str("component", "tagging").Logger(),
	}
	if cfg.Logger != nil {
		c.logger = cfg.Logger.With().Str("component", "tagging").Logger()
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}

	return c, nil
}

// HandleUpload opens a fresh session for the uploader and replies with the
// selection prompt. Any previous session of the user is discarded.
func (c *Controller) HandleUpload(ctx context.Context, ev AudioUploaded) error {
	logger := tracing.LoggerFromContext(ctx, c.logger)

	if !ev.TopLevel {
		logger.Debug().Int64("user_id", ev.UserID).Msg("Ignoring audio posted inside a topic")
		c.recorder.UploadHandled(ResultIgnored)
		return nil
	}
	if ev.Audio.FileID == "" {
		logger.Warn().Int64("user_id", ev.UserID).Msg("Ignoring audio without file id")
		c.recorder.UploadHandled(ResultIgnored)
		return nil
	}

	sess := c.store.Put(ev.UserID, ev.ChatID, ev.Audio)
	c.recorder.UploadHandled(ResultOK)
	c.recorder.SessionsActive(c.store.Len())

	logger.Info().
		Int64("user_id", ev.UserID).
		Int64("chat_id", ev.ChatID).
		Str("title", ev.Audio.Title).
		Msg("Tagging session started")

	if err := c.messenger.RenderPrompt(ctx, c.prompt(sess, ev.ChatID, 0, ev.MessageID)); err != nil {
		return fmt.Errorf("failed to render prompt: %w", err)
	}
	return nil
}

// HandleToggle flips one tag of the user's selection and redraws the prompt
// in place. The interaction is always acknowledged.
func (c *Controller) HandleToggle(ctx context.Context, ev ToggleRequested) error {
	logger := tracing.LoggerFromContext(ctx, c.logger).With().
		Int64("user_id", ev.UserID).
		Str("tag", ev.Tag).
		Logger()

	if !c.registry.Contains(ev.Tag) {
		logger.Warn().Msg("Ignoring toggle for unknown tag")
		c.recorder.ToggleHandled(ResultUnknownTag)
		return c.acknowledge(ctx, ev.CallbackID, "")
	}

	sess, err := c.store.Toggle(ev.UserID, ev.Tag)
	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		logger.Info().Msg("Toggle without active session")
		c.recorder.ToggleHandled(ResultNoSession)
		return c.acknowledge(ctx, ev.CallbackID, c.messages.SessionExpired)
	case errors.Is(err, session.ErrUnknownTag):
		c.recorder.ToggleHandled(ResultUnknownTag)
		return c.acknowledge(ctx, ev.CallbackID, "")
	case err != nil:
		ackErr := c.acknowledge(ctx, ev.CallbackID, "")
		return errors.Join(fmt.Errorf("failed to toggle tag: %w", err), ackErr)
	}

	c.recorder.ToggleHandled(ResultOK)
	logger.Debug().Bool("selected", sess.IsSelected(ev.Tag)).Msg("Tag toggled")

	var renderErr error
	if err := c.messenger.RenderPrompt(ctx, c.prompt(sess, ev.ChatID, ev.MessageID, 0)); err != nil {
		renderErr = fmt.Errorf("failed to render prompt: %w", err)
	}
	return errors.Join(renderErr, c.acknowledge(ctx, ev.CallbackID, ""))
}

// HandleConfirm delivers the audio to every selected destination plus the
// default destination, replaces the prompt with a summary and ends the
// session. The session is removed on every path.
func (c *Controller) HandleConfirm(ctx context.Context, ev ConfirmRequested) error {
	logger := tracing.LoggerFromContext(ctx, c.logger).With().Int64("user_id", ev.UserID).Logger()

	sess, ok := c.store.Get(ev.UserID)
	if !ok || sess.Audio.FileID == "" {
		c.store.Remove(ev.UserID)
		c.recorder.ConfirmHandled(ResultNoSession)
		c.recorder.SessionsActive(c.store.Len())
		logger.Info().Msg("Confirm without pending audio")

		var replaceErr error
		if err := c.messenger.ReplaceMessage(ctx, ev.ChatID, ev.MessageID, c.messages.AudioMissing); err != nil {
			replaceErr = fmt.Errorf("failed to replace prompt: %w", err)
		}
		return errors.Join(replaceErr, c.acknowledge(ctx, ev.CallbackID, ""))
	}

	selected := sess.SelectedIn(c.registry.Tags())
	if len(selected) == 0 {
		c.store.Remove(ev.UserID)
		c.recorder.ConfirmHandled(ResultEmpty)
		c.recorder.SessionsActive(c.store.Len())
		logger.Info().Msg("Confirm with empty selection")

		var replaceErr error
		if err := c.messenger.ReplaceMessage(ctx, ev.ChatID, ev.MessageID, c.messages.NothingSelected); err != nil {
			replaceErr = fmt.Errorf("failed to replace prompt: %w", err)
		}
		return errors.Join(replaceErr, c.acknowledge(ctx, ev.CallbackID, ""))
	}

	// Acknowledge before the fan-out so the button does not spin while
	// deliveries are in flight
	ackErr := c.acknowledge(ctx, ev.CallbackID, "")

	chatID := ev.ChatID
	if chatID == 0 {
		chatID = sess.ChatID
	}
	c.dispatch(ctx, logger, c.deliveries(sess, chatID, selected, ev.Sender))

	var replaceErr error
	if err := c.messenger.ReplaceMessage(ctx, ev.ChatID, ev.MessageID, c.messages.summary(selected)); err != nil {
		replaceErr = fmt.Errorf("failed to replace prompt: %w", err)
	}

	c.store.Remove(ev.UserID)
	c.recorder.ConfirmHandled(ResultDispatched)
	c.recorder.SessionsActive(c.store.Len())

	return errors.Join(ackErr, replaceErr)
}

// deliveries builds one delivery per selected tag plus the default destination
func (c *Controller) deliveries(sess session.Session, chatID int64, selected []string, sender string) []Delivery {
	caption := c.messages.caption(sender)
	out := make([]Delivery, 0, len(selected)+1)

	for _, tag := range selected {
		topic, err := c.registry.Lookup(tag)
		if err != nil {
			// Selections are validated on toggle
			c.logger.Error().Err(err).Str("tag", tag).Msg("Selected tag missing from registry")
			continue
		}
		out = append(out, Delivery{
			ChatID:   chatID,
			ThreadID: topic.ThreadID,
			Tag:      topic.Name,
			Audio:    sess.Audio,
			Caption:  caption,
		})
	}

	def := c.registry.Default()
	out = append(out, Delivery{
		ChatID:   chatID,
		ThreadID: def.ThreadID,
		Tag:      def.Name,
		Default:  true,
		Audio:    sess.Audio,
		Caption:  caption,
	})

	return out
}

// dispatch runs all deliveries concurrently and logs failures. It returns
// only after every delivery resolved.
func (c *Controller) dispatch(ctx context.Context, logger zerolog.Logger, deliveries []Delivery) []fanout.Outcome {
	tasks := make([]fanout.Task, len(deliveries))
	for i, d := range deliveries {
		name := d.Tag
		if d.Default {
			name = "default"
		}
		tasks[i] = fanout.Task{
			Name: name,
			Run: func(ctx context.Context) error {
				return c.messenger.DeliverAudio(ctx, d)
			},
		}
	}

	start := time.Now()
	outcomes := fanout.Join(ctx, tasks, c.fanout)
	duration := time.Since(start)

	for i, o := range outcomes {
		status := ResultOK
		if !o.OK() {
			status = ResultDeliveryErr
			logger.Warn().
				Err(o.Err).
				Str("destination", o.Name).
				Int("thread_id", deliveries[i].ThreadID).
				Dur("duration", o.Duration).
				Msg("Delivery failed")
		}
		c.recorder.DeliveryFinished(status, o.Duration)
	}

	succeeded := fanout.Succeeded(outcomes)
	failed := len(fanout.Failed(outcomes))
	c.recorder.FanoutFinished(len(outcomes), failed, duration)
	logger.Info().
		Int("deliveries", len(outcomes)).
		Int("succeeded", succeeded).
		Int("failed", failed).
		Dur("duration", duration).
		Msg("Fan-out completed")

	return outcomes
}

// prompt builds the selection UI for sess
func (c *Controller) prompt(sess session.Session, chatID int64, messageID, replyTo int) Prompt {
	tags := c.registry.Tags()
	options := make([]Option, len(tags))
	for i, tag := range tags {
		options[i] = Option{Tag: tag, Selected: sess.IsSelected(tag)}
	}

	return Prompt{
		ChatID:       chatID,
		MessageID:    messageID,
		ReplyTo:      replyTo,
		Text:         c.messages.Prompt,
		Options:      options,
		ConfirmLabel: c.messages.Confirm,
	}
}

func (c *Controller) acknowledge(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	if err := c.messenger.Acknowledge(ctx, callbackID, text); err != nil {
		return fmt.Errorf("failed to acknowledge interaction: %w", err)
	}
	return nil
}
