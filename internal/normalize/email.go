// Package normalize converts channel-specific inbound payloads into the
// canonical Message shape. This file parses raw RFC 5322 email bodies with
// go-message: text/plain parts are preferred, text/html parts are flattened
// with StripHTML, and attachment metadata is collected without saving bodies.
package normalize

import (
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	// Registers decoders for legacy charsets (KOI8-R, Windows-1251) common
	// in Russian-language mail.
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/cleanops/go-intake-backend/internal/domain"
)

// EmailSource identifies where an email came from when building the message.
type EmailSource struct {
	Provider string // "mailru" or "generic"
}

// ParseEmail reads a full RFC 5322 message and produces the canonical
// Message. Oversized attachments are skipped; their bodies are discarded so
// the reader can continue to the next part.
func ParseEmail(r io.Reader, src EmailSource) (*Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse email: %w", err)
	}
	defer mr.Close()

	msg := &Message{
		Channel:    domain.SourceEmail,
		Provider:   src.Provider,
		ReceivedAt: time.Now().UTC(),
	}

	if subj, err := mr.Header.Subject(); err == nil {
		msg.Title = strings.TrimSpace(subj)
	}
	if mid, err := mr.Header.MessageID(); err == nil && mid != "" {
		msg.MessageID = mid
	}
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.SenderID = strings.ToLower(strings.TrimSpace(from[0].Address))
		msg.SenderName = strings.TrimSpace(from[0].Name)
	}
	if date, err := mr.Header.Date(); err == nil && !date.IsZero() {
		msg.ReceivedAt = date.UTC()
	}

	var textParts, htmlParts []string

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Broken parts should not sink the whole message.
			continue
		}

		switch h := p.Header.(type) {
		case *mail.AttachmentHeader:
			att, keep := attachmentMeta(h, p.Body)
			if keep {
				msg.Attachments = append(msg.Attachments, att)
			}
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			limited := io.LimitReader(p.Body, MaxAttachmentBytes)
			body, err := io.ReadAll(limited)
			if err != nil || len(body) == 0 {
				continue
			}
			s := strings.TrimSpace(string(body))
			if s == "" {
				continue
			}
			switch {
			case strings.HasPrefix(ct, "text/plain"):
				textParts = append(textParts, s)
			case strings.HasPrefix(ct, "text/html"):
				htmlParts = append(htmlParts, s)
			case strings.HasPrefix(ct, "text/"):
				textParts = append(textParts, s)
			}
		}
	}

	switch {
	case len(textParts) > 0:
		msg.Body = strings.TrimSpace(strings.Join(textParts, "\n\n"))
	case len(htmlParts) > 0:
		msg.Body = StripHTML(strings.Join(htmlParts, "\n\n"))
	}

	if msg.MessageID == "" {
		// Rare, but some senders omit Message-ID. Fall back to a digest of the
		// stable header fields so the dedup key stays deterministic.
		msg.MessageID = fmt.Sprintf("synthetic:%s:%d:%s",
			msg.SenderID, msg.ReceivedAt.Unix(), msg.Title)
	}
	if msg.Title == "" {
		msg.Title = DeriveTitle(msg.Body, "(no subject)")
	}
	return msg, nil
}

// attachmentMeta extracts metadata for one attachment part. The body is
// consumed to measure the real size; anything over MaxAttachmentBytes is
// dropped.
func attachmentMeta(h *mail.AttachmentHeader, body io.Reader) (Attachment, bool) {
	filename, _ := h.Filename()
	filename = decodeFilename(strings.TrimSpace(filename))
	ct, _, _ := h.ContentType()

	n, _ := io.Copy(io.Discard, io.LimitReader(body, MaxAttachmentBytes+1))
	if n > MaxAttachmentBytes {
		return Attachment{}, false
	}
	if filename == "" {
		filename = "attachment"
	}
	return Attachment{
		Filename:    filename,
		ContentType: ct,
		Size:        n,
	}, true
}

var filenameDecoder = new(mime.WordDecoder)

// decodeFilename resolves RFC 2047 encoded-words in attachment names.
func decodeFilename(s string) string {
	if s == "" || !strings.Contains(s, "=?") {
		return s
	}
	decoded, err := filenameDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(decoded)
}
