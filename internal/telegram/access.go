package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"webchat/internal/auth"
)

// allowed reports whether msg may reach a session. Unknown users are
// queued for approval and the admin is notified once per user.
func (b *Bot) allowed(msg *tgbotapi.Message) bool {
	if b.access == nil {
		return true
	}
	if msg.From == nil {
		return false
	}
	if b.access.IsAllowed(msg.From.ID) {
		return true
	}

	b.logger.Warn("unauthorized access attempt",
		zap.Int64("user_id", msg.From.ID),
		zap.String("username", msg.From.UserName))

	user := auth.User{
		ID:        msg.From.ID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
	}
	added, err := b.access.RequestAccess(user)
	if err != nil {
		b.logger.Error("failed to store access request", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	if !added {
		b.sendMessage(msg.Chat.ID, "Your access request is still waiting for the administrator.")
		return false
	}
	b.sendMessage(msg.Chat.ID, "Access request sent to the administrator. You will be notified once it is approved.")
	b.notifyAdminRequest(user)
	return false
}

func (b *Bot) isAdmin(msg *tgbotapi.Message) bool {
	return b.access != nil && msg.From != nil && b.access.IsAdmin(msg.From.ID)
}

func (b *Bot) notifyAdminRequest(user auth.User) {
	adminID := b.access.AdminID()
	if adminID == 0 {
		return
	}
	b.sendMessage(adminID, fmt.Sprintf("Access request from %s\n/approve %d\n/deny %d", describeUser(user), user.ID, user.ID))
}

func (b *Bot) handleAdminCommand(chatID int64, command, args string) {
	if command == "users" {
		b.sendMessage(chatID, formatUsers(b.access.List(), b.access.Pending()))
		return
	}

	uid, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.sendMessage(chatID, fmt.Sprintf("Usage: /%s <user_id>", command))
		return
	}

	if command == "approve" {
		user, err := b.access.Approve(uid)
		if err != nil {
			b.logger.Error("failed to persist approval", zap.Int64("user_id", uid), zap.Error(err))
		}
		b.logger.Info("access granted", zap.Int64("user_id", uid))
		b.sendMessage(chatID, "Approved "+describeUser(user))
		// private chat IDs equal user IDs
		b.sendMessage(uid, "Access granted. Send /help to get started.")
		return
	}

	if err := b.access.Revoke(uid); err != nil {
		b.logger.Error("failed to persist revocation", zap.Int64("user_id", uid), zap.Error(err))
	}
	b.sessions.Drop(sessionID(uid))
	b.logger.Info("access revoked", zap.Int64("user_id", uid))
	b.sendMessage(chatID, fmt.Sprintf("Denied %d", uid))
}

func describeUser(u auth.User) string {
	if u.Username != "" {
		return fmt.Sprintf("@%s (%d)", u.Username, u.ID)
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return fmt.Sprintf("%s (%d)", name, u.ID)
	}
	return strconv.FormatInt(u.ID, 10)
}

func formatUsers(allowed, waiting []auth.User) string {
	var b strings.Builder
	b.WriteString("Allowed:")
	if len(allowed) == 0 {
		b.WriteString(" none")
	}
	for _, u := range allowed {
		b.WriteString("\n- " + describeUser(u))
	}
	b.WriteString("\nWaiting:")
	if len(waiting) == 0 {
		b.WriteString(" none")
	}
	for _, u := range waiting {
		b.WriteString("\n- " + describeUser(u))
	}
	return b.String()
}
