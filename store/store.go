package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Status is the outcome of relaying one message.
type Status = string

var (
	StatusSuccess     = Status("success")
	StatusDenied      = Status("denied")
	StatusNotFound    = Status("not_found")
	StatusRateLimited = Status("rate_limited")
	StatusUnsupported = Status("unsupported")
	StatusFailed      = Status("failed")
)

// Store keeps joined channels and the relay log in SQLite
type Store struct {
	db *sql.DB
}

// Channel is a channel the session has seen or joined
type Channel struct {
	ID         int64
	AccessHash int64
	Title      string
	Username   string
	InviteLink string
	JoinedAt   time.Time // zero unless joined by invite
}

// Relay is one relayed (or failed) message
type Relay struct {
	SourceChannel string
	SourceMessage int
	TargetPeer    int64
	Status        Status
}

// Stats summarizes the relay log
type Stats struct {
	Total       int
	Success     int
	Failed      int
	ByStatus    map[Status]int
	Channels    int
	LastRelayAt time.Time
}

// Open initializes the database at the given path
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory with %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at '%s' with %w", dbPath, err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute DDL with %w", err)
	}

	return &Store{db: db}, nil
}

// Channel returns the stored channel with the given ID
func (s *Store) Channel(ctx context.Context, id int64) (Channel, bool, error) {
	return s.queryChannel(ctx, "channel_id = ?", id)
}

// ChannelByUsername returns the stored channel with the given public username
func (s *Store) ChannelByUsername(ctx context.Context, username string) (Channel, bool, error) {
	if username == "" {
		return Channel{}, false, nil
	}
	return s.queryChannel(ctx, "username = ? COLLATE NOCASE", username)
}

func (s *Store) queryChannel(ctx context.Context, where string, arg any) (Channel, bool, error) {
	var ch Channel
	var joinedAt int64

	err := s.db.QueryRowContext(ctx,
		"SELECT channel_id, access_hash, title, username, invite_link, joined_at FROM channels WHERE "+where,
		arg,
	).Scan(&ch.ID, &ch.AccessHash, &ch.Title, &ch.Username, &ch.InviteLink, &joinedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return ch, false, nil
	}
	if err != nil {
		return ch, false, fmt.Errorf("failed to read channel with %w", err)
	}

	if joinedAt > 0 {
		ch.JoinedAt = time.Unix(joinedAt, 0)
	}
	return ch, true, nil
}

// SaveChannel inserts or updates a channel. Empty fields of ch never
// overwrite stored values, so a lookup without an invite keeps the invite
// link of an earlier join.
func (s *Store) SaveChannel(ctx context.Context, ch Channel) error {
	var joinedAt int64
	if !ch.JoinedAt.IsZero() {
		joinedAt = ch.JoinedAt.Unix()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels
		(channel_id, access_hash, title, username, invite_link, joined_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			access_hash = CASE WHEN excluded.access_hash != 0 THEN excluded.access_hash ELSE channels.access_hash END,
			title       = CASE WHEN excluded.title != '' THEN excluded.title ELSE channels.title END,
			username    = CASE WHEN excluded.username != '' THEN excluded.username ELSE channels.username END,
			invite_link = CASE WHEN excluded.invite_link != '' THEN excluded.invite_link ELSE channels.invite_link END,
			joined_at   = CASE WHEN excluded.joined_at != 0 THEN excluded.joined_at ELSE channels.joined_at END,
			updated_at  = excluded.updated_at
	`, ch.ID, ch.AccessHash, ch.Title, ch.Username, ch.InviteLink, joinedAt, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save channel %d with %w", ch.ID, err)
	}
	return nil
}

// RecordRelay appends an entry to the relay log
func (s *Store) RecordRelay(ctx context.Context, r Relay) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relays (source_channel, source_message, target_peer, status, processed_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.SourceChannel, r.SourceMessage, r.TargetPeer, r.Status, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to record relay with %w", err)
	}
	return nil
}

// Stats returns relay statistics for entries newer than since
func (s *Store) Stats(ctx context.Context, since time.Time) (Stats, error) {
	stats := Stats{ByStatus: make(map[Status]int)}

	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM relays WHERE processed_at >= ? GROUP BY status",
		since.Unix(),
	)
	if err != nil {
		return stats, fmt.Errorf("failed to query relay stats with %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("failed to scan relay stats with %w", err)
		}
		stats.ByStatus[status] = count
		stats.Total += count
		if status == StatusSuccess {
			stats.Success += count
		} else {
			stats.Failed += count
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM channels WHERE joined_at > 0").Scan(&stats.Channels); err != nil {
		return stats, fmt.Errorf("failed to count channels with %w", err)
	}

	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(processed_at) FROM relays").Scan(&last); err != nil {
		return stats, fmt.Errorf("failed to read last relay with %w", err)
	}
	if last.Valid && last.Int64 > 0 {
		stats.LastRelayAt = time.Unix(last.Int64, 0)
	}

	return stats, nil
}

// Clear removes all relay log entries, keeping known channels
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM relays"); err != nil {
		return fmt.Errorf("failed to clear relay log with %w", err)
	}
	return nil
}

// Ping checks that the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DefaultPath returns the default database path
func DefaultPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home := os.Getenv("HOME")
		if home == "" {
			return "tgrelay.db" // Fallback to current directory
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "tgrelay", "data.db")
}

// FormatStats renders stats as a short human readable report
func FormatStats(stats Stats, window time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Relay statistics (last %s)\n", formatWindow(window))
	fmt.Fprintf(&b, "Total: %d\n", stats.Total)
	fmt.Fprintf(&b, "Successful: %d\n", stats.Success)
	fmt.Fprintf(&b, "Failed: %d\n", stats.Failed)
	for _, status := range []Status{StatusDenied, StatusNotFound, StatusRateLimited, StatusUnsupported, StatusFailed} {
		if n := stats.ByStatus[status]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", status, n)
		}
	}
	fmt.Fprintf(&b, "Joined channels: %d", stats.Channels)
	if !stats.LastRelayAt.IsZero() {
		fmt.Fprintf(&b, "\nLast relay: %s", stats.LastRelayAt.UTC().Format(time.RFC3339))
	}
	return b.String()
}

func formatWindow(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return d.String()
}
