package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/scipunch/tgrelay/link"
	"github.com/scipunch/tgrelay/store"
	"github.com/scipunch/tgrelay/telegram"
)

// fetch relays the messages named by post. A single message gets either
// the relayed content or one failure reply; a range ends with a summary.
func (d *Dispatcher) fetch(ctx context.Context, req telegram.Request, post link.Post) error {
	ids := post.IDs()
	capped := len(ids) > d.maxRange
	if capped {
		ids = ids[:d.maxRange]
	}

	if !post.IsRange() {
		err := d.relayOne(ctx, req, post, ids[0])
		if err == nil {
			return nil
		}
		return d.reply(ctx, req, d.failureText(err, post, ids[0]))
	}

	counts := make(map[store.Status]int)
	var stopped error
	done, last := 0, ids[0]
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			stopped = err
			break
		}
		last = id
		err := d.relayOne(ctx, req, post, id)
		counts[statusOf(err)]++
		done++
		if stopsRange(err) {
			stopped = err
			break
		}
	}

	summary := rangeSummary(counts, len(ids), done, capped)
	if stopped != nil {
		summary += "\nStopped: " + d.failureText(stopped, post, last)
	}
	return d.reply(ctx, req, summary)
}

// relayOne performs one fetch and at most one send. The send is skipped
// when the fetch fails.
func (d *Dispatcher) relayOne(ctx context.Context, req telegram.Request, post link.Post, id int) error {
	msg, err := d.backend.FetchMessage(ctx, post, id)
	if err == nil {
		err = d.send(ctx, req.Peer, msg)
	}

	status := statusOf(err)
	d.record(ctx, req, post, id, status)
	if err != nil {
		slog.Info("relay failed", "user", req.UserID, "source", post.Source(), "message", id, "status", status, "error", err)
		return err
	}
	slog.Info("relayed message", "user", req.UserID, "source", post.Source(), "message", id, "kind", msg.Kind)
	return nil
}

func (d *Dispatcher) send(ctx context.Context, to telegram.Peer, msg telegram.Message) error {
	switch msg.Kind {
	case telegram.KindText:
		return d.backend.SendText(ctx, to, msg)
	case telegram.KindPhoto:
		return d.backend.SendPhoto(ctx, to, msg)
	case telegram.KindVideo:
		return d.backend.SendVideo(ctx, to, msg)
	case telegram.KindDocument:
		return d.backend.SendDocument(ctx, to, msg)
	default:
		return ErrNoContent
	}
}

// failureText describes err to the user, reporting errors nobody anticipated
func (d *Dispatcher) failureText(err error, post link.Post, id int) string {
	if errors.Is(err, context.Canceled) {
		return "The relay is shutting down."
	}
	text, known := describe(err)
	if !known {
		slog.Error("unexpected relay error", "source", post.Source(), "message", id, "error", err)
		d.report(err, map[string]string{
			"handler": "fetch",
			"source":  post.Source(),
		})
	}
	return text
}

// stopsRange reports whether the rest of a range would fail the same way
func stopsRange(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := telegram.AsFloodWait(err); ok {
		return true
	}
	return errors.Is(err, telegram.ErrAccessDenied) ||
		errors.Is(err, telegram.ErrUnauthorized) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func rangeSummary(counts map[store.Status]int, total, done int, capped bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Relayed %d of %d messages.", counts[store.StatusSuccess], total)
	if capped {
		fmt.Fprintf(&b, " Range limited to %d messages.", total)
	}
	for _, status := range []store.Status{store.StatusNotFound, store.StatusUnsupported, store.StatusDenied, store.StatusRateLimited, store.StatusFailed} {
		if n := counts[status]; n > 0 {
			fmt.Fprintf(&b, "\n%s: %d", strings.ReplaceAll(status, "_", " "), n)
		}
	}
	if skipped := total - done; skipped > 0 {
		fmt.Fprintf(&b, "\nskipped: %d", skipped)
	}
	return b.String()
}
