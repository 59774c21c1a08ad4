package link

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// MaxRangeSize is the largest number of messages a single range link may name.
const MaxRangeSize = 50

// Link is the result of parsing user input. It is one of Invite, Post or
// Unrecognized.
type Link interface {
	isLink()
}

// Invite references a joinable channel by its invite hash.
type Invite struct {
	Hash string
}

// Post references one message, or a range of messages, in a channel.
// Exactly one of ChannelID and Username is set.
type Post struct {
	ChannelID     int64
	Username      string
	MessageID     int
	LastMessageID int // equals MessageID for single-message links
}

// Unrecognized is any input that is neither an invite nor a post link.
type Unrecognized struct {
	Text string
}

func (Invite) isLink()       {}
func (Post) isLink()         {}
func (Unrecognized) isLink() {}

// IDs expands the post into the list of message IDs it names.
func (p Post) IDs() []int {
	n := p.LastMessageID - p.MessageID + 1
	if n <= 0 {
		return nil
	}
	ids := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, p.MessageID+i)
	}
	return ids
}

// IsRange reports whether the post names more than one message.
func (p Post) IsRange() bool {
	return p.LastMessageID > p.MessageID
}

// Source returns a printable channel reference.
func (p Post) Source() string {
	if p.Username != "" {
		return "@" + p.Username
	}
	return strconv.FormatInt(p.ChannelID, 10)
}

func (p Post) String() string {
	if p.IsRange() {
		return fmt.Sprintf("%s/%d-%d", p.Source(), p.MessageID, p.LastMessageID)
	}
	return fmt.Sprintf("%s/%d", p.Source(), p.MessageID)
}

var (
	// t.me/c/<channel>/<message> or t.me/c/<channel>/<thread>/<message>
	privatePostRe = regexp.MustCompile(`^c/(\d+)/(?:\d+/)?(\d+)(?:-(\d+))?$`)
	publicPostRe  = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]{3,31})/(?:\d+/)?(\d+)(?:-(\d+))?$`)
	chatIDPostRe  = regexp.MustCompile(`^-100(\d+)/(\d+)(?:-(\d+))?$`)
	inviteHashRe  = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// Parse classifies text as an invite link, a post link, or neither.
// Supports:
//   - https://t.me/+HASH, t.me/joinchat/HASH
//   - https://t.me/c/123456/42, t.me/c/123456/7/42 (forum topic)
//   - https://t.me/channelname/42
//   - -100123456/42
//   - any post form with a range suffix, e.g. t.me/c/123456/42-45
func Parse(text string) Link {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return Unrecognized{Text: text}
	}

	if m := chatIDPostRe.FindStringSubmatch(raw); m != nil {
		if post, ok := newPost(m[1], "", m[2], m[3]); ok {
			return post
		}
		return Unrecognized{Text: text}
	}

	rest, ok := trimHost(raw)
	if !ok {
		return Unrecognized{Text: text}
	}

	// Drop query and fragment, e.g. ?single or ?comment=1
	if idx := strings.IndexAny(rest, "?#"); idx >= 0 {
		rest = rest[:idx]
	}
	rest = strings.TrimSuffix(rest, "/")

	if hash, ok := inviteHash(rest); ok {
		return Invite{Hash: hash}
	}

	if m := privatePostRe.FindStringSubmatch(rest); m != nil {
		if post, ok := newPost(m[1], "", m[2], m[3]); ok {
			return post
		}
		return Unrecognized{Text: text}
	}

	if m := publicPostRe.FindStringSubmatch(rest); m != nil {
		if post, ok := newPost("", m[1], m[2], m[3]); ok {
			return post
		}
	}

	return Unrecognized{Text: text}
}

// trimHost strips the scheme and t.me host, returning the path.
func trimHost(s string) (string, bool) {
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")

	for _, host := range []string{"t.me/", "telegram.me/", "telegram.dog/"} {
		if len(s) >= len(host) && strings.EqualFold(s[:len(host)], host) {
			return s[len(host):], true
		}
	}
	return "", false
}

func inviteHash(path string) (string, bool) {
	var hash string
	switch {
	case strings.HasPrefix(path, "+"):
		hash = strings.TrimPrefix(path, "+")
	case strings.HasPrefix(path, "joinchat/"):
		hash = strings.TrimPrefix(path, "joinchat/")
	default:
		return "", false
	}
	if !inviteHashRe.MatchString(hash) {
		return "", false
	}
	return hash, true
}

// newPost rejects ids outside the int32 range Telegram uses for messages
func newPost(channel, username, first, last string) (Post, bool) {
	var post Post
	if channel != "" {
		id, err := strconv.ParseInt(channel, 10, 64)
		if err != nil || id <= 0 {
			return post, false
		}
		post.ChannelID = id
	}
	post.Username = username

	msgID, err := strconv.Atoi(first)
	if err != nil || msgID <= 0 || msgID > math.MaxInt32 {
		return post, false
	}
	post.MessageID = msgID
	post.LastMessageID = msgID

	if last != "" {
		lastID, err := strconv.Atoi(last)
		if err != nil || lastID < msgID || lastID > math.MaxInt32 {
			return post, false
		}
		// Cap the range instead of rejecting it
		if lastID-msgID+1 > MaxRangeSize {
			lastID = msgID + MaxRangeSize - 1
		}
		post.LastMessageID = lastID
	}

	return post, true
}
