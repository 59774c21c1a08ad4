package telegram

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gotd/td/tg"

	"github.com/scipunch/tgrelay/link"
	"github.com/scipunch/tgrelay/store"
)

// ChannelCache persists channel access hashes between runs.
type ChannelCache interface {
	Channel(ctx context.Context, id int64) (store.Channel, bool, error)
	ChannelByUsername(ctx context.Context, username string) (store.Channel, bool, error)
	SaveChannel(ctx context.Context, ch store.Channel) error
}

// Client performs the remote calls of the relay: joining, fetching and
// sending. Every error it returns has passed through Classify.
type Client struct {
	api         *tg.Client
	downloadDir string
	maxFileSize int64
	cache       ChannelCache

	mu       sync.Mutex
	channels map[int64]*tg.InputChannel
	names    map[string]*tg.InputChannel
}

func newClient(api *tg.Client, downloadDir string, maxFileSize int64, cache ChannelCache) *Client {
	return &Client{
		api:         api,
		downloadDir: downloadDir,
		maxFileSize: maxFileSize,
		cache:       cache,
		channels:    make(map[int64]*tg.InputChannel),
		names:       make(map[string]*tg.InputChannel),
	}
}

// Ping makes a round trip to Telegram.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.UsersGetUsers(ctx, []tg.InputUserClass{&tg.InputUserSelf{}}); err != nil {
		return fmt.Errorf("failed to reach telegram with %w", Classify(err))
	}
	return nil
}

// JoinInvite redeems an invite hash. When the session is already a member
// the chat is still returned together with ErrAlreadyMember.
func (c *Client) JoinInvite(ctx context.Context, hash string) (Chat, error) {
	updates, err := c.api.MessagesImportChatInvite(ctx, hash)
	if err != nil {
		err = Classify(err)
		if !errors.Is(err, ErrAlreadyMember) {
			return Chat{}, fmt.Errorf("failed to join by invite with %w", err)
		}

		// Look the chat up so the reply can name it
		chat, checkErr := c.checkInvite(ctx, hash)
		if checkErr != nil {
			slog.Debug("failed to check invite", "error", checkErr)
			return Chat{}, err
		}
		c.remember(ctx, chat, hash)
		return chat, err
	}

	var chats []tg.ChatClass
	switch u := updates.(type) {
	case *tg.Updates:
		chats = u.Chats
	case *tg.UpdatesCombined:
		chats = u.Chats
	}
	for _, cl := range chats {
		if chat, ok := chatFromClass(cl); ok {
			c.remember(ctx, chat, hash)
			slog.Info("joined chat", "id", chat.ID, "title", chat.Title)
			return chat, nil
		}
	}

	return Chat{}, fmt.Errorf("joined, but telegram returned no chat in %T", updates)
}

func (c *Client) checkInvite(ctx context.Context, hash string) (Chat, error) {
	invite, err := c.api.MessagesCheckChatInvite(ctx, hash)
	if err != nil {
		return Chat{}, Classify(err)
	}
	if already, ok := invite.(*tg.ChatInviteAlready); ok {
		if chat, ok := chatFromClass(already.Chat); ok {
			return chat, nil
		}
	}
	return Chat{}, fmt.Errorf("unexpected invite type %T", invite)
}

// FetchMessage retrieves one message of the channel named by post.
func (c *Client) FetchMessage(ctx context.Context, post link.Post, messageID int) (Message, error) {
	channel, err := c.inputChannel(ctx, post)
	if err != nil {
		return Message{}, err
	}

	result, err := c.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
		Channel: channel,
		ID:      []tg.InputMessageClass{&tg.InputMessageID{ID: messageID}},
	})
	if err != nil {
		return Message{}, fmt.Errorf("failed to get message %d of %s with %w", messageID, post.Source(), Classify(err))
	}

	var messages []tg.MessageClass
	switch m := result.(type) {
	case *tg.MessagesChannelMessages:
		messages = m.Messages
	case *tg.MessagesMessages:
		messages = m.Messages
	case *tg.MessagesMessagesSlice:
		messages = m.Messages
	default:
		return Message{}, fmt.Errorf("unexpected messages type: %T", result)
	}

	for _, msgClass := range messages {
		switch msg := msgClass.(type) {
		case *tg.Message:
			if msg.ID != messageID {
				continue
			}
			m := newMessage(channel.ChannelID, msg)
			slog.Debug("fetched message",
				"channel", channel.ChannelID,
				"id", msg.ID,
				"kind", m.Kind,
				"preview", truncateText(m.Text, 40))
			return m, nil
		case *tg.MessageService:
			if msg.ID == messageID {
				return Message{ChannelID: channel.ChannelID, ID: msg.ID, Kind: KindUnsupported}, nil
			}
		}
	}

	// Deleted messages come back as MessageEmpty
	return Message{}, fmt.Errorf("message %d of %s: %w", messageID, post.Source(), ErrNotFound)
}

// inputChannel resolves the channel of a post, preferring cached access
// hashes over remote lookups.
func (c *Client) inputChannel(ctx context.Context, post link.Post) (*tg.InputChannel, error) {
	if post.Username != "" {
		return c.channelByUsername(ctx, post.Username)
	}
	return c.channelByID(ctx, post.ChannelID)
}

func (c *Client) channelByID(ctx context.Context, id int64) (*tg.InputChannel, error) {
	c.mu.Lock()
	ch, ok := c.channels[id]
	c.mu.Unlock()
	if ok {
		return ch, nil
	}

	if c.cache != nil {
		stored, found, err := c.cache.Channel(ctx, id)
		if err != nil {
			slog.Warn("channel cache read error", "channel", id, "error", err)
		} else if found && stored.AccessHash != 0 {
			ch := &tg.InputChannel{ChannelID: stored.ID, AccessHash: stored.AccessHash}
			c.memo(ch, stored.Username)
			return ch, nil
		}
	}

	// Bots may address channels they belong to without an access hash
	chats, err := c.api.ChannelsGetChannels(ctx, []tg.InputChannelClass{
		&tg.InputChannel{ChannelID: id},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve channel %d with %w", id, Classify(err))
	}

	var list []tg.ChatClass
	switch r := chats.(type) {
	case *tg.MessagesChats:
		list = r.Chats
	case *tg.MessagesChatsSlice:
		list = r.Chats
	}
	for _, cl := range list {
		switch channel := cl.(type) {
		case *tg.Channel:
			if channel.ID != id {
				continue
			}
			chat, _ := chatFromClass(channel)
			c.remember(ctx, chat, "")
			return &tg.InputChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}, nil
		case *tg.ChannelForbidden:
			return nil, fmt.Errorf("channel %d: %w", id, ErrAccessDenied)
		}
	}

	return nil, fmt.Errorf("channel %d: %w", id, ErrAccessDenied)
}

func (c *Client) channelByUsername(ctx context.Context, username string) (*tg.InputChannel, error) {
	c.mu.Lock()
	ch, ok := c.names[username]
	c.mu.Unlock()
	if ok {
		return ch, nil
	}

	if c.cache != nil {
		stored, found, err := c.cache.ChannelByUsername(ctx, username)
		if err != nil {
			slog.Warn("channel cache read error", "username", username, "error", err)
		} else if found && stored.AccessHash != 0 {
			ch := &tg.InputChannel{ChannelID: stored.ID, AccessHash: stored.AccessHash}
			c.memo(ch, username)
			return ch, nil
		}
	}

	resolved, err := c.api.ContactsResolveUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve @%s with %w", username, Classify(err))
	}

	for _, cl := range resolved.Chats {
		if channel, ok := cl.(*tg.Channel); ok {
			chat, _ := chatFromClass(channel)
			c.remember(ctx, chat, "")
			return &tg.InputChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}, nil
		}
	}

	return nil, fmt.Errorf("@%s is not a channel: %w", username, ErrNotFound)
}

func (c *Client) memo(ch *tg.InputChannel, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[ch.ChannelID] = ch
	if username != "" {
		c.names[username] = ch
	}
}

// remember caches a chat in memory and in the persistent cache.
func (c *Client) remember(ctx context.Context, chat Chat, inviteHash string) {
	if chat.AccessHash != 0 {
		c.memo(&tg.InputChannel{ChannelID: chat.ID, AccessHash: chat.AccessHash}, chat.Username)
	}
	if c.cache == nil {
		return
	}

	record := store.Channel{
		ID:         chat.ID,
		AccessHash: chat.AccessHash,
		Title:      chat.Title,
		Username:   chat.Username,
	}
	if inviteHash != "" {
		record.InviteLink = "https://t.me/+" + inviteHash
		record.JoinedAt = time.Now()
	}
	if err := c.cache.SaveChannel(ctx, record); err != nil {
		slog.Warn("channel cache write error", "channel", chat.ID, "error", err)
	}
}

// Reply sends a plain text message to peer.
func (c *Client) Reply(ctx context.Context, to Peer, text string) error {
	_, err := c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:      to,
		Message:   text,
		NoWebpage: true,
		RandomID:  randomID(),
	})
	if err != nil {
		return fmt.Errorf("failed to send reply with %w", Classify(err))
	}
	return nil
}

// SendText re-sends the text of msg with its formatting.
func (c *Client) SendText(ctx context.Context, to Peer, msg Message) error {
	_, err := c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     to,
		Message:  msg.Text,
		Entities: msg.Entities,
		RandomID: randomID(),
	})
	if err != nil {
		return fmt.Errorf("failed to send text with %w", Classify(err))
	}
	return nil
}

// SendPhoto re-sends the photo of msg with its caption.
func (c *Client) SendPhoto(ctx context.Context, to Peer, msg Message) error {
	if msg.Photo == nil {
		return fmt.Errorf("message %d carries no photo", msg.ID)
	}
	media, err := c.photoMedia(ctx, msg)
	if err != nil {
		return err
	}
	return c.sendMedia(ctx, to, msg, media)
}

// SendVideo re-sends the video of msg with its caption.
func (c *Client) SendVideo(ctx context.Context, to Peer, msg Message) error {
	return c.SendDocument(ctx, to, msg)
}

// SendDocument re-sends the document of msg with its caption.
func (c *Client) SendDocument(ctx context.Context, to Peer, msg Message) error {
	if msg.Document == nil {
		return fmt.Errorf("message %d carries no document", msg.ID)
	}
	media, err := c.documentMedia(ctx, msg)
	if err != nil {
		return err
	}
	return c.sendMedia(ctx, to, msg, media)
}

func (c *Client) sendMedia(ctx context.Context, to Peer, msg Message, media tg.InputMediaClass) error {
	_, err := c.api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
		Peer:     to,
		Media:    media,
		Message:  msg.Text,
		Entities: msg.Entities,
		RandomID: randomID(),
	})
	if err != nil {
		return fmt.Errorf("failed to send %s with %w", msg.Kind, Classify(err))
	}
	return nil
}

func randomID() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
