// Package relay turns private messages into joins and relayed posts.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/scipunch/tgrelay/link"
	"github.com/scipunch/tgrelay/store"
	"github.com/scipunch/tgrelay/telegram"
)

// Backend is the set of remote calls the handlers need. *telegram.Client
// implements it.
type Backend interface {
	JoinInvite(ctx context.Context, hash string) (telegram.Chat, error)
	FetchMessage(ctx context.Context, post link.Post, messageID int) (telegram.Message, error)
	SendText(ctx context.Context, to telegram.Peer, msg telegram.Message) error
	SendPhoto(ctx context.Context, to telegram.Peer, msg telegram.Message) error
	SendVideo(ctx context.Context, to telegram.Peer, msg telegram.Message) error
	SendDocument(ctx context.Context, to telegram.Peer, msg telegram.Message) error
	Reply(ctx context.Context, to telegram.Peer, text string) error
}

// Log records relay outcomes. *store.Store implements it.
type Log interface {
	RecordRelay(ctx context.Context, r store.Relay) error
	Stats(ctx context.Context, since time.Time) (store.Stats, error)
}

// ReportFunc receives errors no reply text was written for
type ReportFunc func(err error, tags map[string]string)

// Check is one line of the /health report. Run returns a short status.
type Check struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// Options configures a Dispatcher
type Options struct {
	// MaxRange caps the messages relayed for one range link; 0 means
	// link.MaxRangeSize.
	MaxRange int
	Report   ReportFunc

	// Ping is the round trip timed by /ping
	Ping   func(ctx context.Context) error
	Checks []Check
}

const (
	statsWindow  = 24 * time.Hour
	checkTimeout = 10 * time.Second
)

// Dispatcher routes each request to the join or fetch handler. Requests
// are handled one at a time.
type Dispatcher struct {
	backend  Backend
	log      Log
	maxRange int
	report   ReportFunc
	ping     func(ctx context.Context) error
	checks   []Check
	started  time.Time

	mu sync.Mutex
}

// NewDispatcher creates a dispatcher. log may be nil.
func NewDispatcher(backend Backend, log Log, opts Options) *Dispatcher {
	maxRange := opts.MaxRange
	if maxRange <= 0 || maxRange > link.MaxRangeSize {
		maxRange = link.MaxRangeSize
	}
	report := opts.Report
	if report == nil {
		report = func(error, map[string]string) {}
	}
	return &Dispatcher{
		backend:  backend,
		log:      log,
		maxRange: maxRange,
		report:   report,
		ping:     opts.Ping,
		checks:   opts.Checks,
		started:  time.Now(),
	}
}

// Handle processes one private message. The returned error is set only
// when the reply itself could not be delivered.
func (d *Dispatcher) Handle(ctx context.Context, req telegram.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	text := strings.TrimSpace(req.Text)
	if strings.HasPrefix(text, "/") {
		return d.command(ctx, req, text)
	}

	switch l := link.Parse(text).(type) {
	case link.Invite:
		return d.join(ctx, req, l)
	case link.Post:
		return d.fetch(ctx, req, l)
	case link.Unrecognized:
		slog.Debug("unrecognized message", "user", req.UserID)
		return d.reply(ctx, req, usageText)
	default:
		return fmt.Errorf("unexpected link type %T", l)
	}
}

func (d *Dispatcher) command(ctx context.Context, req telegram.Request, text string) error {
	name := strings.Fields(text)[0]
	// Commands in groups carry the bot name, e.g. /help@relaybot
	name, _, _ = strings.Cut(name, "@")

	switch strings.ToLower(name) {
	case "/start", "/help":
		return d.reply(ctx, req, helpText)
	case "/stats":
		return d.reply(ctx, req, d.stats(ctx))
	case "/ping":
		return d.reply(ctx, req, d.pong(ctx))
	case "/health":
		return d.reply(ctx, req, d.health(ctx))
	default:
		return d.reply(ctx, req, usageText)
	}
}

func (d *Dispatcher) stats(ctx context.Context) string {
	if d.log == nil {
		return "Statistics are not available."
	}
	stats, err := d.log.Stats(ctx, time.Now().Add(-statsWindow))
	if err != nil {
		slog.Error("failed to read relay stats", "error", err)
		return "Failed to read statistics."
	}
	return store.FormatStats(stats, statsWindow)
}

func (d *Dispatcher) pong(ctx context.Context) string {
	uptime := formatUptime(time.Since(d.started))
	if d.ping == nil {
		return fmt.Sprintf("Pong!\nUptime: %s", uptime)
	}

	start := time.Now()
	if err := d.ping(ctx); err != nil {
		slog.Warn("ping failed", "error", err)
		return fmt.Sprintf("Pong! Telegram did not answer.\nUptime: %s", uptime)
	}
	latency := time.Since(start).Round(time.Millisecond)
	return fmt.Sprintf("Pong!\nLatency: %s\nUptime: %s", latency, uptime)
}

func (d *Dispatcher) health(ctx context.Context) string {
	if len(d.checks) == 0 {
		return "No health checks configured."
	}

	var b strings.Builder
	healthy := true
	for _, c := range d.checks {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		status, err := c.Run(cctx)
		cancel()
		if err != nil {
			healthy = false
			slog.Warn("health check failed", "check", c.Name, "error", err)
			status = "error: " + err.Error()
		}
		fmt.Fprintf(&b, "\n• %s: %s", c.Name, status)
	}

	if healthy {
		return "Health: OK" + b.String()
	}
	return "Health: degraded" + b.String()
}

func (d *Dispatcher) reply(ctx context.Context, req telegram.Request, text string) error {
	if err := d.backend.Reply(ctx, req.Peer, text); err != nil {
		return fmt.Errorf("failed to reply to %d with %w", req.UserID, err)
	}
	return nil
}

func (d *Dispatcher) record(ctx context.Context, req telegram.Request, post link.Post, id int, status store.Status) {
	if d.log == nil {
		return
	}
	err := d.log.RecordRelay(ctx, store.Relay{
		SourceChannel: post.Source(),
		SourceMessage: id,
		TargetPeer:    req.UserID,
		Status:        status,
	})
	if err != nil {
		slog.Warn("failed to record relay", "source", post.Source(), "message", id, "error", err)
	}
}
