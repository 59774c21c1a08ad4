package telegram

import (
	"fmt"
	"strings"

	"github.com/gotd/td/tg"
)

// Peer addresses a conversation the bot can send to.
type Peer = tg.InputPeerClass

// Kind is the content kind carried by a fetched message.
type Kind int

const (
	KindUnsupported Kind = iota
	KindText
	KindPhoto
	KindVideo
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindPhoto:
		return "photo"
	case KindVideo:
		return "video"
	case KindDocument:
		return "document"
	default:
		return "unsupported"
	}
}

// Message is a fetched channel post. It is used once to relay its content
// and then discarded.
type Message struct {
	ChannelID int64
	ID        int
	Kind      Kind
	Text      string
	Entities  []tg.MessageEntityClass
	// Protected is set when the source forbids forwarding, so media must be
	// re-uploaded instead of sent by reference.
	Protected bool

	Photo    *tg.Photo
	Document *tg.Document
	FileName string
	MimeType string
	Size     int64
}

// Chat is a channel or group the session is a member of.
type Chat struct {
	ID         int64
	AccessHash int64
	Title      string
	Username   string
}

// newMessage converts a raw Telegram message into a Message.
func newMessage(channelID int64, msg *tg.Message) Message {
	m := Message{
		ChannelID: channelID,
		ID:        msg.ID,
		Text:      msg.Message,
		Entities:  msg.Entities,
		Protected: msg.Noforwards,
	}

	switch media := msg.Media.(type) {
	case *tg.MessageMediaPhoto:
		if photo, ok := media.Photo.(*tg.Photo); ok {
			m.Kind = KindPhoto
			m.Photo = photo
			m.FileName = fmt.Sprintf("photo_%d_%d.jpg", channelID, msg.ID)
			m.MimeType = "image/jpeg"
			if size := largestPhotoSize(photo.Sizes); size != nil {
				m.Size = int64(size.Size)
			}
			return m
		}
	case *tg.MessageMediaDocument:
		if doc, ok := media.Document.(*tg.Document); ok {
			info := documentInfo(doc)
			m.Kind = KindDocument
			if info.isVideo {
				m.Kind = KindVideo
			}
			m.Document = doc
			m.FileName = info.fileName
			if m.FileName == "" {
				m.FileName = fmt.Sprintf("document_%d_%d.%s", channelID, msg.ID, extFromMime(doc.MimeType))
			}
			m.MimeType = doc.MimeType
			m.Size = doc.Size
			return m
		}
	}

	// Web page previews, polls, geo and other media fall back to their text.
	if strings.TrimSpace(msg.Message) != "" {
		m.Kind = KindText
	}
	return m
}

type docInfo struct {
	fileName string
	isVideo  bool
}

func documentInfo(doc *tg.Document) docInfo {
	var info docInfo
	for _, attr := range doc.Attributes {
		switch a := attr.(type) {
		case *tg.DocumentAttributeFilename:
			info.fileName = a.FileName
		case *tg.DocumentAttributeVideo:
			info.isVideo = true
		}
	}
	return info
}

// largestPhotoSize finds the photo size with the most pixels. Progressive
// sizes are converted so they can be addressed by type.
func largestPhotoSize(sizes []tg.PhotoSizeClass) *tg.PhotoSize {
	var largest *tg.PhotoSize
	var maxPixels int

	for _, sizeClass := range sizes {
		switch size := sizeClass.(type) {
		case *tg.PhotoSize:
			if pixels := size.W * size.H; pixels > maxPixels {
				maxPixels = pixels
				largest = size
			}
		case *tg.PhotoSizeProgressive:
			if pixels := size.W * size.H; pixels > maxPixels {
				maxPixels = pixels
				var total int
				if n := len(size.Sizes); n > 0 {
					total = size.Sizes[n-1]
				}
				largest = &tg.PhotoSize{
					Type: size.Type,
					W:    size.W,
					H:    size.H,
					Size: total,
				}
			}
		}
	}

	return largest
}

func extFromMime(mime string) string {
	switch mime {
	case "video/mp4":
		return "mp4"
	case "video/webm":
		return "webm"
	case "video/quicktime":
		return "mov"
	case "audio/mpeg":
		return "mp3"
	case "audio/ogg":
		return "ogg"
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "application/pdf":
		return "pdf"
	case "application/zip":
		return "zip"
	default:
		return "bin"
	}
}

// chatFromClass extracts a Chat from a Telegram chat object.
func chatFromClass(c tg.ChatClass) (Chat, bool) {
	switch ch := c.(type) {
	case *tg.Channel:
		return Chat{
			ID:         ch.ID,
			AccessHash: ch.AccessHash,
			Title:      ch.Title,
			Username:   ch.Username,
		}, true
	case *tg.Chat:
		return Chat{ID: ch.ID, Title: ch.Title}, true
	}
	return Chat{}, false
}

// truncateText truncates text to maxLen runes, adding "..." if truncated
func truncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}

	truncated := string(runes[:maxLen])
	if idx := strings.LastIndex(truncated, " "); idx > len(truncated)/2 {
		truncated = truncated[:idx]
	}

	return truncated + "..."
}
