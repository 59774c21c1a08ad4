package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/scipunch/tgrelay/link"
	"github.com/scipunch/tgrelay/telegram"
)

// join redeems an invite with a single remote call and replies once
func (d *Dispatcher) join(ctx context.Context, req telegram.Request, invite link.Invite) error {
	chat, err := d.backend.JoinInvite(ctx, invite.Hash)
	switch {
	case err == nil:
		slog.Info("joined by invite", "user", req.UserID, "chat", chat.ID, "title", chat.Title)
		return d.reply(ctx, req, fmt.Sprintf("Joined: %s\nNow send the post link.", chatTitle(chat)))

	case errors.Is(err, telegram.ErrAlreadyMember):
		slog.Info("already a member", "user", req.UserID, "chat", chat.ID)
		if chat.Title != "" {
			return d.reply(ctx, req, fmt.Sprintf("Already a member of %s.\nSend the post link.", chat.Title))
		}
		return d.reply(ctx, req, "Already a member of this chat.\nSend the post link.")
	}

	text, known := describe(err)
	if known {
		slog.Info("join failed", "user", req.UserID, "error", err)
	} else {
		slog.Error("join failed", "user", req.UserID, "error", err)
		d.report(err, map[string]string{"handler": "join"})
		text = "Failed to join: " + text
	}
	return d.reply(ctx, req, text)
}

func chatTitle(chat telegram.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	return fmt.Sprintf("chat %d", chat.ID)
}
