// Package report sends unexpected errors to Sentry. Every function is a
// no-op until Init is called with a non-empty DSN.
package report

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

var enabled bool

// Init configures the Sentry client
func Init(dsn, environment, release string) error {
	if dsn == "" {
		slog.Debug("SENTRY_DSN is empty, error reporting disabled")
		return nil
	}
	if environment == "" {
		environment = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			// Requesters stay anonymous
			event.User = sentry.User{}
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry with %w", err)
	}

	enabled = true
	slog.Info("error reporting enabled", "environment", environment)
	return nil
}

// Enabled reports whether errors are sent anywhere
func Enabled() bool { return enabled }

// Flush waits for buffered events to be sent
func Flush() {
	if enabled {
		sentry.Flush(2 * time.Second)
	}
}

// CaptureError reports err with the given tags
func CaptureError(err error, tags map[string]string) {
	if err == nil || !enabled {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}
