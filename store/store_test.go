package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	s, err := Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestChannel_SaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	joined := time.Unix(1700000000, 0)
	err := s.SaveChannel(ctx, Channel{
		ID:         123456,
		AccessHash: 987,
		Title:      "Private",
		InviteLink: "https://t.me/+AbCdEf",
		JoinedAt:   joined,
	})
	if err != nil {
		t.Fatalf("SaveChannel failed: %v", err)
	}

	ch, found, err := s.Channel(ctx, 123456)
	if err != nil {
		t.Fatalf("Channel failed: %v", err)
	}
	if !found {
		t.Fatal("Expected channel to be found")
	}
	if ch.AccessHash != 987 || ch.Title != "Private" || ch.InviteLink != "https://t.me/+AbCdEf" {
		t.Errorf("Unexpected channel: %+v", ch)
	}
	if !ch.JoinedAt.Equal(joined) {
		t.Errorf("Expected joined at %v, got %v", joined, ch.JoinedAt)
	}
}

func TestChannel_Miss(t *testing.T) {
	s := openTestStore(t)

	_, found, err := s.Channel(context.Background(), 42)
	if err != nil {
		t.Fatalf("Channel failed: %v", err)
	}
	if found {
		t.Error("Expected miss, got hit")
	}

	_, found, err = s.ChannelByUsername(context.Background(), "")
	if err != nil || found {
		t.Errorf("Expected miss for empty username, got found=%v err=%v", found, err)
	}
}

func TestChannel_UpdateKeepsInvite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.SaveChannel(ctx, Channel{ID: 1, AccessHash: 10, Title: "Old", InviteLink: "https://t.me/+hash", JoinedAt: time.Now()})

	// A later lookup without invite information refreshes the hash only
	if err := s.SaveChannel(ctx, Channel{ID: 1, AccessHash: 20, Title: "New"}); err != nil {
		t.Fatalf("SaveChannel failed: %v", err)
	}

	ch, found, _ := s.Channel(ctx, 1)
	if !found {
		t.Fatal("Expected channel to be found")
	}
	if ch.AccessHash != 20 || ch.Title != "New" {
		t.Errorf("Expected updated hash and title, got %+v", ch)
	}
	if ch.InviteLink != "https://t.me/+hash" {
		t.Errorf("Expected invite link to be kept, got %q", ch.InviteLink)
	}
	if ch.JoinedAt.IsZero() {
		t.Error("Expected joined at to be kept")
	}
}

func TestChannelByUsername(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.SaveChannel(ctx, Channel{ID: 5, AccessHash: 50, Username: "SomeChannel"})

	ch, found, err := s.ChannelByUsername(ctx, "somechannel")
	if err != nil {
		t.Fatalf("ChannelByUsername failed: %v", err)
	}
	if !found || ch.ID != 5 {
		t.Errorf("Expected channel 5, got found=%v %+v", found, ch)
	}
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stats, err := s.Stats(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 0 || !stats.LastRelayAt.IsZero() {
		t.Error("Expected empty stats initially")
	}

	s.RecordRelay(ctx, Relay{SourceChannel: "123", SourceMessage: 1, TargetPeer: 9, Status: StatusSuccess})
	s.RecordRelay(ctx, Relay{SourceChannel: "123", SourceMessage: 2, TargetPeer: 9, Status: StatusSuccess})
	s.RecordRelay(ctx, Relay{SourceChannel: "123", SourceMessage: 3, TargetPeer: 9, Status: StatusNotFound})
	s.RecordRelay(ctx, Relay{SourceChannel: "@news", SourceMessage: 4, TargetPeer: 9, Status: StatusDenied})
	s.SaveChannel(ctx, Channel{ID: 1, AccessHash: 1, JoinedAt: time.Now()})
	s.SaveChannel(ctx, Channel{ID: 2, AccessHash: 2})

	stats, err = s.Stats(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 4 {
		t.Errorf("Expected 4 relays, got %d", stats.Total)
	}
	if stats.Success != 2 || stats.Failed != 2 {
		t.Errorf("Expected 2 successes and 2 failures, got %d/%d", stats.Success, stats.Failed)
	}
	if stats.ByStatus[StatusNotFound] != 1 || stats.ByStatus[StatusDenied] != 1 {
		t.Errorf("Unexpected status breakdown: %v", stats.ByStatus)
	}
	if stats.Channels != 1 {
		t.Errorf("Expected 1 joined channel, got %d", stats.Channels)
	}
	if stats.LastRelayAt.IsZero() {
		t.Error("Expected LastRelayAt to be set")
	}

	// Entries older than the window are excluded
	stats, _ = s.Stats(ctx, time.Now().Add(time.Hour))
	if stats.Total != 0 {
		t.Errorf("Expected no relays in future window, got %d", stats.Total)
	}
}

func TestClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.RecordRelay(ctx, Relay{SourceChannel: "1", SourceMessage: 1, TargetPeer: 1, Status: StatusSuccess})
	s.SaveChannel(ctx, Channel{ID: 1, AccessHash: 1})

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	stats, _ := s.Stats(ctx, time.Time{})
	if stats.Total != 0 {
		t.Errorf("Expected 0 relays after clear, got %d", stats.Total)
	}
	if _, found, _ := s.Channel(ctx, 1); !found {
		t.Error("Expected channels to survive clear")
	}
}

func TestFormatStats(t *testing.T) {
	report := FormatStats(Stats{
		Total:    3,
		Success:  2,
		Failed:   1,
		ByStatus: map[Status]int{StatusSuccess: 2, StatusNotFound: 1},
		Channels: 4,
	}, 24*time.Hour)

	for _, want := range []string{"last 24h", "Total: 3", "Successful: 2", "not_found: 1", "Joined channels: 4"} {
		if !strings.Contains(report, want) {
			t.Errorf("Expected %q in report:\n%s", want, report)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/data")
	if got := DefaultPath(); got != filepath.Join("/tmp/data", "tgrelay", "data.db") {
		t.Errorf("Unexpected default path %s", got)
	}

	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "/home/someone")
	if got := DefaultPath(); got != filepath.Join("/home/someone", ".local", "share", "tgrelay", "data.db") {
		t.Errorf("Unexpected default path %s", got)
	}

	t.Setenv("HOME", "")
	if got := DefaultPath(); got != "tgrelay.db" {
		t.Errorf("Expected fallback to the working directory, got %s", got)
	}
}
