package telegram

import (
	"errors"
	"fmt"
	"time"

	"github.com/gotd/td/tgerr"
)

var (
	ErrAccessDenied    = errors.New("channel is not accessible")
	ErrNotFound        = errors.New("message not found")
	ErrAlreadyMember   = errors.New("already a member of this channel")
	ErrInviteInvalid   = errors.New("invite link is invalid or expired")
	ErrInviteRequested = errors.New("join request sent, waiting for approval")
	ErrBotCannotJoin   = errors.New("bot accounts cannot join by invite link")
	ErrTooLarge        = errors.New("file exceeds the size limit")
	ErrUnauthorized    = errors.New("telegram session is not authorized")
)

// FloodWaitError is returned when Telegram asks the caller to slow down.
type FloodWaitError struct {
	Wait time.Duration
	err  error
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.Wait)
}

func (e *FloodWaitError) Unwrap() error {
	return e.err
}

// rpcErrors maps Telegram RPC error types onto the errors above.
var rpcErrors = map[string]error{
	"CHANNEL_PRIVATE":          ErrAccessDenied,
	"CHANNEL_INVALID":          ErrAccessDenied,
	"CHAT_ADMIN_REQUIRED":      ErrAccessDenied,
	"CHAT_FORBIDDEN":           ErrAccessDenied,
	"PEER_ID_INVALID":          ErrAccessDenied,
	"CHANNEL_PUBLIC_GROUP_NA":  ErrAccessDenied,
	"USER_BANNED_IN_CHANNEL":   ErrAccessDenied,
	"MSG_ID_INVALID":           ErrNotFound,
	"MESSAGE_ID_INVALID":       ErrNotFound,
	"MESSAGE_IDS_EMPTY":        ErrNotFound,
	"USERNAME_NOT_OCCUPIED":    ErrNotFound,
	"USERNAME_INVALID":         ErrNotFound,
	"USER_ALREADY_PARTICIPANT": ErrAlreadyMember,
	"INVITE_HASH_INVALID":      ErrInviteInvalid,
	"INVITE_HASH_EXPIRED":      ErrInviteInvalid,
	"INVITE_HASH_EMPTY":        ErrInviteInvalid,
	"INVITE_REQUEST_SENT":      ErrInviteRequested,
	"BOT_METHOD_INVALID":       ErrBotCannotJoin,
	"AUTH_KEY_UNREGISTERED":    ErrUnauthorized,
	"SESSION_REVOKED":          ErrUnauthorized,
}

// Classify wraps a Telegram RPC error with the matching sentinel error so
// callers can use errors.Is. Unknown errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	rpcErr, ok := tgerr.As(err)
	if !ok {
		return err
	}

	switch rpcErr.Type {
	case "FLOOD_WAIT", "FLOOD_PREMIUM_WAIT", "SLOWMODE_WAIT":
		return &FloodWaitError{
			Wait: time.Duration(rpcErr.Argument) * time.Second,
			err:  err,
		}
	}

	if sentinel, ok := rpcErrors[rpcErr.Type]; ok {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return err
}

// AsFloodWait reports whether err carries a flood wait and returns it.
func AsFloodWait(err error) (*FloodWaitError, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw, true
	}
	return nil, false
}
