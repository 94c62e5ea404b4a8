package tagging

import (
	"context"

	"github.com/harun/tagrelay/pkg/session"
)

// AudioUploaded is emitted when a user posts an audio file
type AudioUploaded struct {
	UserID    int64
	ChatID    int64
	MessageID int
	Audio     session.AudioRef
	// TopLevel is false when the audio was posted inside a forum topic
	TopLevel bool
}

// ToggleRequested is emitted when a user presses a tag button on the prompt
type ToggleRequested struct {
	UserID     int64
	CallbackID string
	ChatID     int64
	MessageID  int
	Tag        string
}

// ConfirmRequested is emitted when a user presses the done button
type ConfirmRequested struct {
	UserID     int64
	CallbackID string
	ChatID     int64
	MessageID  int
	// Sender is the display name used in delivery captions
	Sender string
}

// Option is one tag line of the selection prompt
type Option struct {
	Tag      string
	Selected bool
}

// Prompt is the selection UI. When MessageID is set the existing message is
// updated in place, otherwise a new message replying to ReplyTo is sent.
type Prompt struct {
	ChatID       int64
	MessageID    int
	ReplyTo      int
	Text         string
	Options      []Option
	ConfirmLabel string
}

// Delivery addresses one copy of the audio to one destination
type Delivery struct {
	ChatID   int64
	ThreadID int
	Tag      string
	Default  bool
	Audio    session.AudioRef
	Caption  string
}

// Messenger performs the outbound actions of the flow
type Messenger interface {
	RenderPrompt(ctx context.Context, prompt Prompt) error
	DeliverAudio(ctx context.Context, delivery Delivery) error
	ReplaceMessage(ctx context.Context, chatID int64, messageID int, text string) error
	Acknowledge(ctx context.Context, callbackID, text string) error
}
