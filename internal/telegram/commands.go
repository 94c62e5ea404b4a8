package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Commands dispatches bot commands such as /help
type Commands struct {
	bot      *Bot
	logger   zerolog.Logger
	handlers map[string]CommandFunc
	menu     []tgbotapi.BotCommand
}

// CommandFunc is a function that handles a command
type CommandFunc func(ctx context.Context, cmd CommandContext) error

// CommandContext contains command metadata
type CommandContext struct {
	ChatID    int64
	ThreadID  int
	MessageID int
	UserID    int64
	Username  string
	Command   string
	Args      []string
	RawArgs   string
}

func newCommandContext(m *Message) *CommandContext {
	return &CommandContext{
		ChatID:    m.Chat.ID,
		ThreadID:  m.MessageThreadID,
		MessageID: m.MessageID,
		UserID:    m.From.ID,
		Username:  m.From.UserName,
		Command:   m.Command(),
		Args:      strings.Fields(m.CommandArguments()),
		RawArgs:   m.CommandArguments(),
	}
}

// NewCommands creates a new command handler
func NewCommands(bot *Bot) *Commands {
	return &Commands{
		bot:      bot,
		logger:   bot.logger.With().Str("module", "commands").Logger(),
		handlers: make(map[string]CommandFunc),
	}
}

// HandleCommand runs the handler registered for cmd. Unknown commands are
// ignored so the bot stays quiet in shared groups.
func (c *Commands) HandleCommand(ctx context.Context, cmd CommandContext) error {
	c.logger.Debug().
		Int64("chat_id", cmd.ChatID).
		Str("command", cmd.Command).
		Strs("args", cmd.Args).
		Msg("Command received")

	handler, exists := c.handlers[cmd.Command]
	if !exists {
		return nil
	}

	return handler(ctx, cmd)
}

// Register registers a command handler. A non-empty description lists the
// command in the Telegram menu.
func (c *Commands) Register(command, description string, handler CommandFunc) {
	c.handlers[command] = handler
	if description != "" {
		c.menu = append(c.menu, tgbotapi.BotCommand{Command: command, Description: description})
	}
	c.logger.Debug().Str("command", command).Msg("Command registered")
}

// Unregister removes a command handler
func (c *Commands) Unregister(command string) {
	delete(c.handlers, command)
	for i, entry := range c.menu {
		if entry.Command == command {
			c.menu = append(c.menu[:i], c.menu[i+1:]...)
			break
		}
	}
}

// RegisterDefaults installs /start, /help and /topics
func (c *Commands) RegisterDefaults(help string, tags func() []string) {
	sendHelp := func(ctx context.Context, cmd CommandContext) error {
		return c.SendResponse(ctx, cmd, help)
	}
	c.Register("start", "", sendHelp)
	c.Register("help", "How to tag a track", sendHelp)
	c.Register("topics", "List the playlists", func(ctx context.Context, cmd CommandContext) error {
		return c.SendResponse(ctx, cmd, strings.Join(tags(), "\n"))
	})
}

// SyncMenu publishes the described commands to Telegram
func (c *Commands) SyncMenu(ctx context.Context) error {
	if len(c.menu) == 0 {
		return nil
	}

	if err := c.bot.request(ctx, "setMyCommands", tgbotapi.NewSetMyCommands(c.menu...)); err != nil {
		return fmt.Errorf("failed to set commands: %w", err)
	}

	c.logger.Info().Int("count", len(c.menu)).Msg("Bot commands updated")
	return nil
}

// SendResponse replies to the command message in its thread
func (c *Commands) SendResponse(ctx context.Context, cmd CommandContext, text string) error {
	msg := tgbotapi.NewMessage(cmd.ChatID, text)
	msg.ReplyToMessageID = cmd.MessageID
	return c.bot.request(ctx, "sendMessage", msg)
}

// GetRegisteredCommands returns all registered commands
func (c *Commands) GetRegisteredCommands() []string {
	commands := make([]string, 0, len(c.handlers))
	for cmd := range c.handlers {
		commands = append(commands, cmd)
	}
	return commands
}
