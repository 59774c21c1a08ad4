package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/session"
	tdtelegram "github.com/gotd/td/telegram"
	tdauth "github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/updates"
	"github.com/gotd/td/tg"
)

// Options configures a Session.
type Options struct {
	AppID       int
	AppHash     string
	BotToken    string // bot mode when set
	PhoneNumber string // user mode otherwise

	SessionPath string
	DownloadDir string
	MaxFileSize int64

	// RequestsPerSecond limits outgoing RPC calls; zero disables the limit.
	RequestsPerSecond float64
	// FloodWaitLimit is the longest flood wait absorbed transparently.
	// Longer waits surface to callers as *FloodWaitError. Zero absorbs
	// every wait.
	FloodWaitLimit time.Duration

	Debug bool
}

// Request is one private text message addressed to the bot.
type Request struct {
	Peer      Peer
	UserID    int64
	Username  string
	MessageID int
	Text      string
}

// Handler processes one Request.
type Handler func(ctx context.Context, req Request) error

// Session is the single authenticated connection to Telegram. It is built
// once at startup and passed to the components that need it.
type Session struct {
	opts    Options
	client  *tdtelegram.Client
	waiter  *floodwait.Waiter
	updates *updates.Manager
	api     *Client
	self    *tg.User
	handler Handler
}

// NewSession creates a session. No network activity happens until Run,
// Serve or Login is called.
func NewSession(opts Options, cache ChannelCache) (*Session, error) {
	if opts.AppID == 0 || opts.AppHash == "" {
		return nil, fmt.Errorf("api id and api hash are required")
	}
	if opts.SessionPath == "" {
		return nil, fmt.Errorf("session path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.SessionPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory with %w", err)
	}

	s := &Session{opts: opts}

	s.waiter = floodwait.NewWaiter().
		WithMaxRetries(1).
		WithMaxWait(opts.FloodWaitLimit).
		WithCallback(func(ctx context.Context, wait floodwait.FloodWait) {
			slog.Warn("telegram rate limit", "retry_after", wait.Duration)
		})

	middlewares := []tdtelegram.Middleware{s.waiter}
	if opts.RequestsPerSecond > 0 {
		middlewares = append(middlewares, ratelimit.New(rate.Limit(opts.RequestsPerSecond), 1))
	}

	// Private messages reach the handler installed by Serve.
	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(s.onNewMessage)

	logger := newZapLogger(opts.Debug)
	s.updates = updates.New(updates.Config{
		Handler: dispatcher,
		Logger:  logger.Named("updates"),
	})

	s.client = tdtelegram.NewClient(opts.AppID, opts.AppHash, tdtelegram.Options{
		SessionStorage: &session.FileStorage{Path: opts.SessionPath},
		Logger:         logger,
		UpdateHandler:  s.updates,
		Middlewares:    middlewares,
	})
	s.api = newClient(s.client.API(), opts.DownloadDir, opts.MaxFileSize, cache)

	return s, nil
}

// Client returns the relay client bound to this session. Its calls only
// succeed while Run or Serve is active.
func (s *Session) Client() *Client {
	return s.api
}

// IsBot reports whether the session authenticates with a bot token.
func (s *Session) IsBot() bool {
	return s.opts.BotToken != ""
}

// Self returns the authenticated account; nil before authentication.
func (s *Session) Self() *tg.User {
	return s.self
}

// Check makes a round trip to Telegram and names the account it is
// connected as.
func (s *Session) Check(ctx context.Context) (string, error) {
	self := s.Self()
	if self == nil {
		return "", ErrUnauthorized
	}
	if err := s.api.Ping(ctx); err != nil {
		return "", err
	}
	return "connected as " + displayName(self), nil
}

// Run connects, authenticates non-interactively and calls f with the
// session ready. The connection is closed when f returns.
func (s *Session) Run(ctx context.Context, f func(ctx context.Context) error) error {
	return s.waiter.Run(ctx, func(ctx context.Context) error {
		return s.client.Run(ctx, func(ctx context.Context) error {
			if err := s.authenticate(ctx); err != nil {
				return err
			}
			return f(ctx)
		})
	})
}

// Serve runs the session and dispatches private messages to h until ctx
// is cancelled.
func (s *Session) Serve(ctx context.Context, h Handler) error {
	s.handler = h
	return s.Run(ctx, func(ctx context.Context) error {
		slog.Info("listening for messages", "as", displayName(s.self))
		return s.updates.Run(ctx, s.client.API(), s.self.ID, updates.AuthOptions{
			IsBot: s.self.Bot,
		})
	})
}

// Login performs the interactive user login and stores the session file.
func (s *Session) Login(ctx context.Context, prompter *Prompter) error {
	if s.IsBot() {
		return fmt.Errorf("login is only needed for user sessions, bot sessions authenticate with the token")
	}

	flow := tdauth.NewFlow(prompter, tdauth.SendCodeOptions{})

	slog.Info("starting telegram client connection")
	slog.Info("NOTE: Telegram rejects connections when the system clock is out of sync")

	return s.waiter.Run(ctx, func(ctx context.Context) error {
		return s.client.Run(ctx, func(ctx context.Context) error {
			if err := s.client.Auth().IfNecessary(ctx, flow); err != nil {
				return fmt.Errorf("authentication failed with %w", err)
			}
			self, err := s.client.Self(ctx)
			if err != nil {
				return fmt.Errorf("failed to get self info with %w", err)
			}
			s.self = self
			slog.Info("telegram authenticated", "as", displayName(self), "session", s.opts.SessionPath)
			return nil
		})
	})
}

func (s *Session) authenticate(ctx context.Context) error {
	status, err := s.client.Auth().Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get auth status with %w", err)
	}

	if !status.Authorized {
		if !s.IsBot() {
			return fmt.Errorf("%w: run the login command first", ErrUnauthorized)
		}
		slog.Info("authorizing bot")
		if _, err := s.client.Auth().Bot(ctx, s.opts.BotToken); err != nil {
			return fmt.Errorf("bot authorization failed with %w", err)
		}
	}

	self, err := s.client.Self(ctx)
	if err != nil {
		return fmt.Errorf("failed to get self info with %w", err)
	}
	s.self = self
	slog.Info("telegram authenticated", "as", displayName(self), "bot", self.Bot)
	return nil
}

func (s *Session) onNewMessage(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
	if s.handler == nil {
		return nil
	}
	req, ok := requestFromUpdate(e, u)
	if !ok {
		return nil
	}
	if err := s.handler(ctx, req); err != nil {
		// Returning the error would stall the update stream.
		slog.Error("failed to handle message", "user", req.UserID, "error", err)
	}
	return nil
}

// requestFromUpdate accepts incoming private text messages only.
func requestFromUpdate(e tg.Entities, u *tg.UpdateNewMessage) (Request, bool) {
	msg, ok := u.Message.(*tg.Message)
	if !ok || msg.Out || msg.Message == "" {
		return Request{}, false
	}
	from, ok := msg.PeerID.(*tg.PeerUser)
	if !ok {
		return Request{}, false
	}
	user, ok := e.Users[from.UserID]
	if !ok {
		slog.Debug("sender missing from update entities", "user", from.UserID)
		return Request{}, false
	}
	if user.Bot {
		return Request{}, false
	}

	return Request{
		Peer:      &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash},
		UserID:    user.ID,
		Username:  user.Username,
		MessageID: msg.ID,
		Text:      msg.Message,
	}, true
}

func displayName(u *tg.User) string {
	if u == nil {
		return ""
	}
	name := u.FirstName
	if u.Username != "" {
		name = fmt.Sprintf("%s (@%s)", name, u.Username)
	}
	return name
}

func newZapLogger(debug bool) *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
