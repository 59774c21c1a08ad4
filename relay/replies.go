package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/scipunch/tgrelay/store"
	"github.com/scipunch/tgrelay/telegram"
)

const helpText = `Send me a post link and I will send its content back to you.

Supported links:
• https://t.me/c/123456789/100 (private channel)
• https://t.me/username/100 (public channel)
• https://t.me/c/123456789/100-110 (range)
• -100123456789/100 (chat ID)

If the channel is private, send its invite link (https://t.me/+...) first.

Commands:
/help - show this message
/stats - relay statistics for the last 24 hours
/ping - latency and uptime
/health - database, downloads and Telegram status`

const usageText = `Please send a valid post or invite link, for example:
https://t.me/c/123456789/100
https://t.me/+AbCdEf

Send /help for details.`

// ErrNoContent is returned for posts with nothing that can be relayed,
// such as polls or service messages.
var ErrNoContent = errors.New("post has no relayable content")

// statusOf maps a relay error onto the status stored in the relay log
func statusOf(err error) store.Status {
	if _, ok := telegram.AsFloodWait(err); ok {
		return store.StatusRateLimited
	}
	switch {
	case err == nil:
		return store.StatusSuccess
	case errors.Is(err, telegram.ErrAccessDenied):
		return store.StatusDenied
	case errors.Is(err, telegram.ErrNotFound):
		return store.StatusNotFound
	case errors.Is(err, ErrNoContent):
		return store.StatusUnsupported
	default:
		return store.StatusFailed
	}
}

// describe returns the user facing text for err. known is false for errors
// that only get a generic reply; those are reported.
func describe(err error) (text string, known bool) {
	if fw, ok := telegram.AsFloodWait(err); ok {
		return fmt.Sprintf("Telegram is limiting requests. Try again in %s.", formatWait(fw.Wait)), true
	}
	switch {
	case errors.Is(err, telegram.ErrAccessDenied):
		return "This channel is private and I am not a member.\nSend the invite link first.", true
	case errors.Is(err, telegram.ErrNotFound):
		return "Message not found. It may have been deleted.", true
	case errors.Is(err, ErrNoContent):
		return "This post has no content I can relay.", true
	case errors.Is(err, telegram.ErrTooLarge):
		return "The file is too large to relay.", true
	case errors.Is(err, telegram.ErrInviteInvalid):
		return "This invite link is invalid or has expired.", true
	case errors.Is(err, telegram.ErrInviteRequested):
		return "Join request sent. Send the post link once it is approved.", true
	case errors.Is(err, telegram.ErrBotCannotJoin):
		return "Bots cannot join chats by invite link.\nRun the relay with a user session (PHONE_NUMBER) to use invite links.", true
	case errors.Is(err, telegram.ErrUnauthorized):
		return "The relay session is not authorized. Ask the operator to log in again.", false
	default:
		return "Something went wrong. Please try again later.", false
	}
}

func formatWait(d time.Duration) string {
	if d <= 0 {
		return "a moment"
	}
	return d.Round(time.Second).String()
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	if days == 0 {
		return d.String()
	}
	return fmt.Sprintf("%dd%s", days, (d % (24 * time.Hour)).String())
}
