// Package services – Materializer
//
// This file implements task materialization: turning a normalized inbound
// message plus a resolved binding into exactly one persisted AdditionalTask
// with its audit record. An intake receipt keyed "<provider>:<message-id>"
// is claimed in the same transaction, so a redelivered message becomes a
// no-op instead of a duplicate task.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/cleanops/go-intake-backend/internal/domain"
	"github.com/cleanops/go-intake-backend/internal/normalize"
	"github.com/cleanops/go-intake-backend/internal/repo"
)

// spamSenderRe matches automated mailer addresses that must never produce
// tasks or replies.
var spamSenderRe = regexp.MustCompile(`(?i)(noreply|no-reply|donotreply|mailer-daemon|postmaster)@`)

// IsSpamSender reports whether an email address belongs to an automated
// mailer.
func IsSpamSender(email string) bool {
	return spamSenderRe.MatchString(email)
}

// Materializer creates tasks from normalized messages.
type Materializer struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// DedupTTL bounds how long an intake receipt blocks reprocessing.
	DedupTTL time.Duration
}

// NewMaterializer constructs a Materializer with the given receipt TTL.
func NewMaterializer(db *gorm.DB, dedupTTL time.Duration) *Materializer {
	if dedupTTL <= 0 {
		dedupTTL = 7 * 24 * time.Hour
	}
	return &Materializer{DB: db, DedupTTL: dedupTTL}
}

// Materialize persists one task for msg routed to binding's object manager.
// The returned bool is false when the message was already materialized by an
// earlier delivery (receipt hit); the existing task is not re-fetched.
//
// Email senders matching the automated-mailer denylist yield ErrSpamSender.
// Attachments above the size ceiling are excluded; the task is still created.
func (m *Materializer) Materialize(ctx context.Context, msg *normalize.Message, binding *domain.ClientBinding) (*domain.AdditionalTask, bool, error) {
	tr := otel.Tracer("services/Materializer")
	ctx, span := tr.Start(ctx, "Materialize",
		trace.WithAttributes(
			attribute.String("message.channel", msg.Channel),
			attribute.String("object.id", binding.ObjectID),
		),
	)
	defer span.End()

	if msg.Channel == domain.SourceEmail && IsSpamSender(msg.SenderID) {
		return nil, false, ErrSpamSender
	}
	if binding.Object.ManagerID == nil {
		return nil, false, ErrNoManager
	}

	body := strings.TrimSpace(msg.Body)
	attachments := filterAttachments(msg.Attachments)
	if body == "" && len(attachments) == 0 {
		return nil, false, ErrEmptyMessage
	}

	title := strings.TrimSpace(msg.Title)
	if title == "" {
		title = normalize.DeriveTitle(body, "Заявка без темы")
	}
	if body == "" {
		body = title
	}

	// Fast path: a receipt already exists, nothing to do.
	if _, err := repo.GetReceipt(ctx, m.DB, msg.DedupKey(), time.Now().UTC()); err == nil {
		return nil, false, nil
	}

	task := &domain.AdditionalTask{
		Title:   title,
		Content: body,
		Source:  msg.Channel,
		SourceDetails: domain.JSONMap{
			"provider":    msg.Provider,
			"message_id":  msg.MessageID,
			"sender":      msg.SenderID,
			"sender_name": msg.SenderName,
		},
		Attachments:  attachments,
		ObjectID:     binding.ObjectID,
		AssignedToID: *binding.Object.ManagerID,
		Status:       domain.StatusNew,
		ReceivedAt:   msg.ReceivedAt,
	}

	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.CreateTaskWithAudit(ctx, tx, task); err != nil {
			return err
		}
		if _, err := repo.ClaimReceipt(ctx, tx, msg.DedupKey(), msg.Channel, task.ID, m.DedupTTL); err != nil {
			return err
		}
		return nil
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// A concurrent delivery won the race; its task stands.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

// filterAttachments drops attachments over the size ceiling and returns the
// remaining download URLs.
func filterAttachments(atts []normalize.Attachment) domain.StringList {
	var out domain.StringList
	for _, a := range atts {
		if a.Size > normalize.MaxAttachmentBytes {
			continue
		}
		if a.URL != "" {
			out = append(out, a.URL)
		} else if a.Filename != "" {
			out = append(out, a.Filename)
		}
	}
	return out
}
