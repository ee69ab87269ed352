// Package normalize converts channel-specific inbound payloads (raw IMAP
// messages, Telegram updates) into one canonical Message shape consumed by the
// task materializer. Channel adapters do the transport work; this package owns
// the text rules: HTML stripping, title derivation, attachment ceilings.
package normalize

import (
	"fmt"
	"strings"
	"time"
)

// MaxAttachmentBytes is the per-attachment size ceiling. Larger attachments
// are dropped from the normalized message and only logged by callers.
const MaxAttachmentBytes = 10 * 1024 * 1024

// titleRuneLimit caps derived titles before the ellipsis is appended.
const titleRuneLimit = 50

// Attachment describes one file carried by an inbound message. URL points at
// wherever the channel serves the content from (a Telegram file URL, a saved
// object path); the normalizer never downloads bodies.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
}

// Message is the canonical inbound message. Exactly one is produced per
// physical email or Telegram update, regardless of channel.
type Message struct {
	// Channel is a domain.Source* constant; Provider narrows it further
	// ("mailru", "generic", "telegram").
	Channel  string
	Provider string

	// MessageID is the channel-native unique id. Together with Provider it
	// forms the dedup key, so it must be stable across redeliveries.
	MessageID string

	// SenderID is the resolvable identity: lower-cased email address or
	// numeric Telegram chat id rendered as a string.
	SenderID   string
	SenderName string

	Title       string
	Body        string
	Attachments []Attachment

	ReceivedAt time.Time
}

// DedupKey returns the "<provider>:<message-id>" receipt key.
func (m *Message) DedupKey() string {
	return fmt.Sprintf("%s:%s", m.Provider, m.MessageID)
}

// DeriveTitle builds a task title from free text: the first line, cut at 50
// runes with a trailing ellipsis when truncated. Empty input yields the
// fallback.
func DeriveTitle(text, fallback string) string {
	line := strings.TrimSpace(text)
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" {
		return fallback
	}
	runes := []rune(line)
	if len(runes) <= titleRuneLimit {
		return line
	}
	return string(runes[:titleRuneLimit]) + "..."
}

// StripHTML converts an HTML fragment to plain text: script/style subtrees
// removed, tags dropped with a separating space, whitespace collapsed.
func StripHTML(html string) string {
	text := removeTagContent(html, "script")
	text = removeTagContent(text, "style")

	var b strings.Builder
	inTag := false
	for i, r := range text {
		if r == '<' {
			inTag = true
			continue
		}
		if r == '>' {
			inTag = false
			if i+1 < len(text) && text[i+1] != ' ' && text[i+1] != '\n' {
				b.WriteRune(' ')
			}
			continue
		}
		if !inTag {
			b.WriteRune(r)
		}
	}

	cleaned := strings.TrimSpace(b.String())
	cleaned = strings.ReplaceAll(cleaned, "\n\n\n", "\n\n")
	for strings.Contains(cleaned, "  ") {
		cleaned = strings.ReplaceAll(cleaned, "  ", " ")
	}
	return cleaned
}

// removeTagContent strips <tag ...>...</tag> spans, including unbalanced
// opening tags.
func removeTagContent(html, tag string) string {
	startTag := "<" + tag
	endTag := "</" + tag + ">"

	for {
		low := strings.ToLower(html)
		start := strings.Index(low, startTag)
		if start == -1 {
			break
		}
		openEnd := strings.Index(html[start:], ">")
		if openEnd == -1 {
			break
		}
		openEnd += start + 1

		closeIdx := strings.Index(strings.ToLower(html[openEnd:]), endTag)
		if closeIdx == -1 {
			html = html[:start] + html[openEnd:]
			continue
		}
		closeIdx += openEnd + len(endTag)
		html = html[:start] + html[closeIdx:]
	}
	return html
}
