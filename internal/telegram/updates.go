package telegram

import (
	"encoding/json"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/harun/tagrelay/pkg/registry"
	"github.com/harun/tagrelay/pkg/session"
	"github.com/harun/tagrelay/pkg/tagging"
)

// Update kinds
const (
	KindAudio   = "audio"
	KindToggle  = "toggle"
	KindConfirm = "confirm"
	KindCommand = "command"
	KindIgnored = "ignored"
)

// ConfirmData is the callback payload of the confirm button. Tag buttons
// carry registry.ToggleData.
const ConfirmData = "done"

// AllowedUpdates are the update types requested from Telegram
var AllowedUpdates = []string{"message", "callback_query"}

// Update is a Bot API update. The bundled library predates forum topics, so
// messages are decoded through Message to keep message_thread_id.
type Update struct {
	UpdateID      int                     `json:"update_id"`
	Message       *Message                `json:"message,omitempty"`
	CallbackQuery *tgbotapi.CallbackQuery `json:"callback_query,omitempty"`
}

// Message extends tgbotapi.Message with forum topic fields
type Message struct {
	tgbotapi.Message
	MessageThreadID int  `json:"message_thread_id,omitempty"`
	IsTopicMessage  bool `json:"is_topic_message,omitempty"`
}

// Event is a decoded update. Exactly one of Upload, Toggle, Confirm and
// Command is set unless Kind is KindIgnored.
type Event struct {
	Kind    string
	UserID  int64
	Upload  *tagging.AudioUploaded
	Toggle  *tagging.ToggleRequested
	Confirm *tagging.ConfirmRequested
	Command *CommandContext
}

// DecodeUpdate parses a raw update as delivered by getUpdates or a webhook
func DecodeUpdate(data []byte) (Update, error) {
	var update Update
	if err := json.Unmarshal(data, &update); err != nil {
		return Update{}, fmt.Errorf("failed to decode update: %w", err)
	}
	return update, nil
}

// Event classifies the update
func (u Update) Event() Event {
	switch {
	case u.Message != nil:
		return u.Message.event()
	case u.CallbackQuery != nil:
		return callbackEvent(u.CallbackQuery)
	}
	return Event{Kind: KindIgnored}
}

func (m *Message) event() Event {
	if m.From == nil || m.Chat == nil {
		return Event{Kind: KindIgnored}
	}

	if m.Audio == nil {
		if m.IsCommand() {
			return Event{
				Kind:    KindCommand,
				UserID:  m.From.ID,
				Command: newCommandContext(m),
			}
		}
		return Event{Kind: KindIgnored}
	}

	return Event{
		Kind:   KindAudio,
		UserID: m.From.ID,
		Upload: &tagging.AudioUploaded{
			UserID:    m.From.ID,
			ChatID:    m.Chat.ID,
			MessageID: m.MessageID,
			Audio: session.AudioRef{
				FileID:    m.Audio.FileID,
				Title:     m.Audio.Title,
				Performer: m.Audio.Performer,
				Duration:  m.Audio.Duration,
			},
			TopLevel: m.MessageThreadID == 0,
		},
	}
}

func callbackEvent(cb *tgbotapi.CallbackQuery) Event {
	// Inline-mode callbacks carry no message to edit
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return Event{Kind: KindIgnored}
	}

	switch {
	case cb.Data == ConfirmData:
		return Event{
			Kind:   KindConfirm,
			UserID: cb.From.ID,
			Confirm: &tagging.ConfirmRequested{
				UserID:     cb.From.ID,
				CallbackID: cb.ID,
				ChatID:     cb.Message.Chat.ID,
				MessageID:  cb.Message.MessageID,
				Sender:     SenderName(cb.From),
			},
		}
	case strings.HasPrefix(cb.Data, registry.ToggleDataPrefix):
		return Event{
			Kind:   KindToggle,
			UserID: cb.From.ID,
			Toggle: &tagging.ToggleRequested{
				UserID:     cb.From.ID,
				CallbackID: cb.ID,
				ChatID:     cb.Message.Chat.ID,
				MessageID:  cb.Message.MessageID,
				Tag:        strings.TrimPrefix(cb.Data, registry.ToggleDataPrefix),
			},
		}
	}

	return Event{Kind: KindIgnored}
}

// SenderName returns the username, falling back to the full name
func SenderName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
