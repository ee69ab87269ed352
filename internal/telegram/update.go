// Package telegram implements the webhook-driven update dispatcher: client
// binding via organization search, staff binding via one-time codes, and task
// submission from bound clients. One Dispatch call handles one webhook
// delivery; all outcomes are acknowledged upstream with 200 regardless of
// processing result.
package telegram

import (
	"fmt"
	"strings"
)

// Update is the inbound webhook payload. Exactly one of Message or
// CallbackQuery is set per delivery.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// User is the Telegram account that produced an update.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// DisplayName joins the user's first and last name.
func (u *User) DisplayName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// Chat identifies the conversation an update belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// FileRef references an uploaded file (voice note, document).
type FileRef struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// PhotoSize is one rendition of an uploaded photo; Telegram sends several,
// smallest first.
type PhotoSize struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Message is an inbound chat message in bot API shape.
type Message struct {
	MessageID int64       `json:"message_id"`
	From      *User       `json:"from,omitempty"`
	Chat      Chat        `json:"chat"`
	Text      string      `json:"text,omitempty"`
	Caption   string      `json:"caption,omitempty"`
	Voice     *FileRef    `json:"voice,omitempty"`
	Photo     []PhotoSize `json:"photo,omitempty"`
	Document  *FileRef    `json:"document,omitempty"`
}

// CallbackQuery is an inline-keyboard button press.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// Incoming is the tagged variant a Message normalizes to. The dispatcher
// switches over the concrete types exhaustively instead of sniffing field
// presence.
type Incoming interface {
	incoming()
	// Meta returns the fields every variant shares.
	Meta() MessageMeta
}

// MessageMeta is the channel envelope common to all variants.
type MessageMeta struct {
	ChatID    int64
	MessageID int64
	From      *User
}

// DedupID renders the stable per-message identity used for receipts.
func (m MessageMeta) DedupID() string {
	return fmt.Sprintf("%d:%d", m.ChatID, m.MessageID)
}

// TextMessage is a plain text message.
type TextMessage struct {
	MessageMeta
	Text string
}

// VoiceMessage carries a voice note with an optional caption.
type VoiceMessage struct {
	MessageMeta
	File    FileRef
	Caption string
}

// PhotoMessage carries the largest rendition of an uploaded photo.
type PhotoMessage struct {
	MessageMeta
	File    PhotoSize
	Caption string
}

// DocumentMessage carries an arbitrary file upload.
type DocumentMessage struct {
	MessageMeta
	File    FileRef
	Caption string
}

func (TextMessage) incoming()     {}
func (VoiceMessage) incoming()    {}
func (PhotoMessage) incoming()    {}
func (DocumentMessage) incoming() {}

func (m TextMessage) Meta() MessageMeta     { return m.MessageMeta }
func (m VoiceMessage) Meta() MessageMeta    { return m.MessageMeta }
func (m PhotoMessage) Meta() MessageMeta    { return m.MessageMeta }
func (m DocumentMessage) Meta() MessageMeta { return m.MessageMeta }

// NormalizeMessage converts a raw bot API message into its tagged variant.
// Messages with none of the supported payloads (stickers, locations, service
// messages) yield nil.
func NormalizeMessage(msg *Message) Incoming {
	if msg == nil {
		return nil
	}
	meta := MessageMeta{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		From:      msg.From,
	}
	switch {
	case msg.Voice != nil:
		return VoiceMessage{MessageMeta: meta, File: *msg.Voice, Caption: msg.Caption}
	case len(msg.Photo) > 0:
		// The last rendition is the largest.
		return PhotoMessage{MessageMeta: meta, File: msg.Photo[len(msg.Photo)-1], Caption: msg.Caption}
	case msg.Document != nil:
		return DocumentMessage{MessageMeta: meta, File: *msg.Document, Caption: msg.Caption}
	case strings.TrimSpace(msg.Text) != "":
		return TextMessage{MessageMeta: meta, Text: strings.TrimSpace(msg.Text)}
	default:
		return nil
	}
}
