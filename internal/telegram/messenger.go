package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/harun/tagrelay/pkg/registry"
	"github.com/harun/tagrelay/pkg/tagging"
)

const (
	markSelected   = "✅"
	markUnselected = "☐"
)

var _ tagging.Messenger = (*Bot)(nil)

// RenderPrompt sends the selection prompt as a reply, or updates the buttons
// of an existing prompt in place
func (b *Bot) RenderPrompt(ctx context.Context, prompt tagging.Prompt) error {
	markup := PromptKeyboard(prompt)

	if prompt.MessageID != 0 {
		edit := tgbotapi.NewEditMessageReplyMarkup(prompt.ChatID, prompt.MessageID, markup)
		err := b.request(ctx, "editMessageReplyMarkup", edit)
		if isNotModified(err) {
			return nil
		}
		return err
	}

	msg := tgbotapi.NewMessage(prompt.ChatID, prompt.Text)
	msg.ReplyToMessageID = prompt.ReplyTo
	msg.ReplyMarkup = markup
	return b.request(ctx, "sendMessage", msg)
}

// DeliverAudio posts the audio to the delivery's thread by file id
func (b *Bot) DeliverAudio(ctx context.Context, delivery tagging.Delivery) error {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", delivery.ChatID)
	params.AddNonZero("message_thread_id", delivery.ThreadID)
	params.AddNonEmpty("audio", delivery.Audio.FileID)
	params.AddNonEmpty("title", delivery.Audio.Title)
	params.AddNonEmpty("performer", delivery.Audio.Performer)
	params.AddNonZero("duration", delivery.Audio.Duration)
	params.AddNonEmpty("caption", delivery.Caption)

	_, err := b.call(ctx, "sendAudio", params)
	return err
}

// ReplaceMessage replaces the text of a message, dropping its keyboard
func (b *Bot) ReplaceMessage(ctx context.Context, chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	err := b.request(ctx, "editMessageText", edit)
	if isNotModified(err) {
		return nil
	}
	return err
}

// Acknowledge answers a callback query, stopping the client's spinner
func (b *Bot) Acknowledge(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	return b.request(ctx, "answerCallbackQuery", tgbotapi.NewCallback(callbackID, text))
}

// PromptKeyboard builds one button per tag followed by the confirm button
func PromptKeyboard(prompt tagging.Prompt) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(prompt.Options)+1)
	for _, opt := range prompt.Options {
		mark := markUnselected
		if opt.Selected {
			mark = markSelected
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mark+" "+opt.Tag, registry.ToggleData(opt.Tag)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(prompt.ConfirmLabel, ConfirmData),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// isNotModified reports Telegram's rejection of an edit that changes nothing
func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
