package telegram

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gotd/td/tg"
)

func TestRequestFromUpdate(t *testing.T) {
	entities := tg.Entities{
		Users: map[int64]*tg.User{
			10: {ID: 10, AccessHash: 555, Username: "alice"},
			20: {ID: 20, AccessHash: 777, Bot: true},
		},
	}

	tests := []struct {
		name string
		msg  tg.MessageClass
		ok   bool
	}{
		{
			name: "private text",
			msg:  &tg.Message{ID: 1, Message: "hello", PeerID: &tg.PeerUser{UserID: 10}},
			ok:   true,
		},
		{
			name: "outgoing",
			msg:  &tg.Message{ID: 1, Out: true, Message: "hello", PeerID: &tg.PeerUser{UserID: 10}},
		},
		{
			name: "group message",
			msg:  &tg.Message{ID: 1, Message: "hello", PeerID: &tg.PeerChat{ChatID: 3}},
		},
		{
			name: "no text",
			msg:  &tg.Message{ID: 1, PeerID: &tg.PeerUser{UserID: 10}},
		},
		{
			name: "unknown sender",
			msg:  &tg.Message{ID: 1, Message: "hello", PeerID: &tg.PeerUser{UserID: 99}},
		},
		{
			name: "other bot",
			msg:  &tg.Message{ID: 1, Message: "hello", PeerID: &tg.PeerUser{UserID: 20}},
		},
		{
			name: "service message",
			msg:  &tg.MessageService{ID: 1, PeerID: &tg.PeerUser{UserID: 10}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, ok := requestFromUpdate(entities, &tg.UpdateNewMessage{Message: tt.msg})
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}
			peer, isUser := req.Peer.(*tg.InputPeerUser)
			if !isUser || peer.UserID != 10 || peer.AccessHash != 555 {
				t.Errorf("unexpected peer %#v", req.Peer)
			}
			if req.Text != "hello" || req.Username != "alice" || req.UserID != 10 {
				t.Errorf("unexpected request %+v", req)
			}
		})
	}
}

func TestNewSession_Validation(t *testing.T) {
	if _, err := NewSession(Options{AppHash: "hash", SessionPath: "x"}, nil); err == nil {
		t.Error("expected error without app id")
	}
	if _, err := NewSession(Options{AppID: 1, AppHash: "hash"}, nil); err == nil {
		t.Error("expected error without session path")
	}
}

func TestNewSession(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSession(Options{
		AppID:             1,
		AppHash:           "hash",
		BotToken:          "123:abc",
		SessionPath:       dir + "/session/session.json",
		DownloadDir:       dir + "/downloads",
		RequestsPerSecond: 10,
	}, nil)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	if !s.IsBot() {
		t.Error("expected bot session")
	}
	if s.Client() == nil {
		t.Error("expected client")
	}
	if s.Self() != nil {
		t.Error("expected no self before authentication")
	}
	if _, err := s.Check(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized before authentication, got %v", err)
	}

	// Login is for user sessions only
	if err := s.Login(context.Background(), NewPrompter("")); err == nil {
		t.Error("expected login to be refused for bot sessions")
	}
}

func TestPrompter(t *testing.T) {
	var out strings.Builder
	p := &Prompter{
		In:           strings.NewReader("+15550001\n12345\n"),
		Out:          &out,
		ReadPassword: func() (string, error) { return " secret ", nil },
	}
	ctx := context.Background()

	phone, err := p.Phone(ctx)
	if err != nil || phone != "+15550001" {
		t.Errorf("Phone() = %q, %v", phone, err)
	}
	code, err := p.Code(ctx, nil)
	if err != nil || code != "12345" {
		t.Errorf("Code() = %q, %v", code, err)
	}
	pwd, err := p.Password(ctx)
	if err != nil || pwd != "secret" {
		t.Errorf("Password() = %q, %v", pwd, err)
	}
	if _, err := p.SignUp(ctx); err == nil {
		t.Error("expected sign up to be refused")
	}
	if !strings.Contains(out.String(), "Enter code:") {
		t.Errorf("expected code prompt, got %q", out.String())
	}

	preset := &Prompter{PhoneNumber: "+1000"}
	if phone, _ := preset.Phone(ctx); phone != "+1000" {
		t.Errorf("expected preset phone, got %q", phone)
	}
}

func TestClient_ScratchFiles(t *testing.T) {
	dir := t.TempDir()
	c := newClient(nil, filepath.Join(dir, "downloads"), 0, nil)

	n, err := c.ScratchFiles()
	if err != nil {
		t.Fatalf("ScratchFiles failed on missing directory: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 files, got %d", n)
	}

	if err := os.MkdirAll(filepath.Join(dir, "downloads", "nested"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"photo_1_1.jpg", "doc_1_2.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, "downloads", name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	n, err = c.ScratchFiles()
	if err != nil {
		t.Fatalf("ScratchFiles failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 files, got %d", n)
	}
}
