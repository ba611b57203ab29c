package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"webchat/internal/auth"
	"webchat/internal/history"
	"webchat/internal/session"
	"webchat/internal/settings"
)

const helpText = `Send any text to chat with the model.

/model chatgpt|gpt4 - choose the model
/temperature 0..2 - sampling temperature, step 0.1
/key <api key> - set the API key for this chat
/settings - show current settings
/export - download the chat history
/reset - start over with an empty history`

const adminHelpText = `

Admin:
/approve <user_id> - grant access
/deny <user_id> - revoke access or reject a request
/users - list allowed and waiting users`

// Bot is a Telegram front-end: one session per chat.
type Bot struct {
	api      *tgbotapi.BotAPI
	s        sender
	sessions *session.Manager
	access   *auth.Service
	logger   *zap.Logger
}

// New connects to the Bot API. A nil access service lets everyone in.
func New(botToken string, sessions *session.Manager, access *auth.Service, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:      api,
		s:        botAPISender{api: api},
		sessions: sessions,
		access:   access,
		logger:   logger,
	}, nil
}

// Start processes updates until ctx is canceled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("telegram bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				b.handleIncomingMessage(ctx, update.Message)
			}
		}
	}
}

func sessionID(chatID int64) string {
	return "tg-" + strconv.FormatInt(chatID, 10)
}

// chatSession returns the chat's session; replies are forwarded to the chat
// as they are appended.
func (b *Bot) chatSession(chatID int64) *session.Session {
	s, created := b.sessions.GetOrCreate(sessionID(chatID), session.OnAppend(func(m history.Message) {
		if m.Sender != history.SenderUser {
			b.sendMessage(chatID, m.Text)
		}
	}))
	if created {
		b.logger.Info("chat session started", zap.Int64("chat_id", chatID))
	}
	s.Touch()
	return s
}

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !b.allowed(msg) {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}
	b.logger.Debug("incoming message", zap.Int64("chat_id", msg.Chat.ID), zap.Int("len", len(msg.Text)))
	b.chatSession(msg.Chat.ID).Submit(msg.Text)
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		if b.isAdmin(msg) {
			b.sendMessage(chatID, helpText+adminHelpText)
			return
		}
		b.sendMessage(chatID, helpText)
	case "model":
		panel := b.chatSession(chatID).Panel()
		if err := panel.SetModel(settings.Model(args)); err != nil {
			b.sendMessage(chatID, "Usage: /model chatgpt|gpt4")
			return
		}
		b.sendMessage(chatID, "Model set to "+string(panel.Values().Model))
	case "temperature":
		t, err := strconv.ParseFloat(args, 64)
		if err == nil {
			err = b.chatSession(chatID).Panel().SetTemperature(t)
		}
		if err != nil {
			b.sendMessage(chatID, "Usage: /temperature <0.0-2.0>")
			return
		}
		b.sendMessage(chatID, fmt.Sprintf("Temperature set to %.1f", b.chatSession(chatID).Panel().Values().Temperature))
	case "key":
		b.chatSession(chatID).Panel().SetCredential(args)
		// the command message holds the key in clear text
		if _, err := b.s.Request(tgbotapi.NewDeleteMessage(chatID, msg.MessageID)); err != nil {
			b.logger.Warn("failed to delete key message", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		if args == "" {
			b.sendMessage(chatID, "API key cleared")
			return
		}
		b.sendMessage(chatID, "API key updated")
	case "settings":
		v := b.chatSession(chatID).Panel().Values()
		key := "not set"
		if v.Credential != "" {
			key = "set"
		}
		b.sendMessage(chatID, fmt.Sprintf("Model: %s\nTemperature: %.1f\nAPI key: %s", v.Model, v.Temperature, key))
	case "export":
		b.sendExport(chatID)
	case "reset":
		b.sessions.Drop(sessionID(chatID))
		b.sendMessage(chatID, "History cleared")
	case "approve", "deny", "users":
		if !b.isAdmin(msg) {
			b.sendMessage(chatID, "Unknown command. Try /help")
			return
		}
		b.handleAdminCommand(chatID, msg.Command(), args)
	default:
		b.sendMessage(chatID, "Unknown command. Try /help")
	}
}

func (b *Bot) sendExport(chatID int64) {
	s, ok := b.sessions.Get(sessionID(chatID))
	if !ok || s.Len() == 0 {
		b.sendMessage(chatID, "Nothing to export yet")
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  history.ExportFilename,
		Bytes: history.ExportBytes(s.Messages()),
	})
	if _, err := b.s.Send(doc); err != nil {
		b.logger.Error("failed to send export", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if text == "" {
		// Telegram rejects empty messages
		text = "(empty reply)"
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.s.Send(msg); err != nil {
		b.logger.Error("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
