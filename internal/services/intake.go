// Package services – EmailIntake
//
// This file orchestrates the email channel: a fetched raw message is parsed,
// resolved and materialized, and the sender receives the channel-appropriate
// templated reply. The returned error decides the seen-flag: nil lets the
// mailbox session flag the message seen, anything else leaves it for retry.
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cleanops/go-intake-backend/internal/domain"
	"github.com/cleanops/go-intake-backend/internal/mailbox"
	"github.com/cleanops/go-intake-backend/internal/normalize"
	"github.com/cleanops/go-intake-backend/internal/notify"
	"github.com/cleanops/go-intake-backend/internal/observability"
)

// MailSender sends one templated HTML email.
type MailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// StaffNotifier pushes a Telegram alert to a staff chat id.
type StaffNotifier interface {
	Enabled() bool
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *notify.InlineKeyboard) (int64, error)
}

// EmailIntake processes inbound email end to end.
type EmailIntake struct {
	Resolver     *Resolver
	Materializer *Materializer
	Mailer       MailSender
	Bot          StaffNotifier

	// BaseURL parameterizes the object-selection link sent to unbound
	// senders.
	BaseURL string
}

// Handler adapts the intake flow to the mailbox session callback for one
// provider profile.
func (s *EmailIntake) Handler(provider string) mailbox.Handler {
	return func(ctx context.Context, raw mailbox.RawMessage) error {
		return s.Process(ctx, provider, raw.Body)
	}
}

// Process runs one raw email through the pipeline.
//
// Outcome mapping:
//   - parse failure: error (message stays unseen, retried next cycle)
//   - spam sender: nil, silent drop, no reply
//   - not bound: nil after the object-selection email
//   - no manager: nil after the no-manager notice
//   - materialization failure: error after the processing-error notice
//   - success or duplicate: nil, confirmation sent on first creation only
func (s *EmailIntake) Process(ctx context.Context, provider string, rawBody []byte) error {
	tr := otel.Tracer("services/EmailIntake")
	ctx, span := tr.Start(ctx, "Process",
		trace.WithAttributes(attribute.String("provider", provider)),
	)
	defer span.End()

	msg, err := normalize.ParseEmail(bytes.NewReader(rawBody), normalize.EmailSource{Provider: provider})
	if err != nil {
		log.Error().Err(err).Str("provider", provider).Msg("email parse failed")
		observability.CountIntake(provider, observability.OutcomeError)
		return fmt.Errorf("parse: %w", err)
	}

	lg := log.With().
		Str("provider", provider).
		Str("sender", msg.SenderID).
		Str("message_id", msg.MessageID).
		Logger()

	if IsSpamSender(msg.SenderID) {
		lg.Debug().Msg("automated sender, dropping silently")
		observability.CountIntake(provider, observability.OutcomeDropped)
		return nil
	}

	binding, err := s.Resolver.Resolve(ctx, msg)
	switch {
	case errors.Is(err, ErrNotBound):
		subject, body := notify.ChooseObjectEmail(s.BaseURL, msg.SenderID)
		s.reply(ctx, msg.SenderID, subject, body)
		observability.CountIntake(provider, observability.OutcomeDropped)
		return nil
	case errors.Is(err, ErrNoManager):
		subject, body := notify.NoManagerEmail(binding.Object.Name)
		s.reply(ctx, msg.SenderID, subject, body)
		observability.CountIntake(provider, observability.OutcomeDropped)
		return nil
	case err != nil:
		lg.Error().Err(err).Msg("binding resolution failed")
		observability.CountIntake(provider, observability.OutcomeError)
		return fmt.Errorf("resolve: %w", err)
	}

	task, created, err := s.Materializer.Materialize(ctx, msg, binding)
	if errors.Is(err, ErrSpamSender) || errors.Is(err, ErrEmptyMessage) {
		lg.Debug().Err(err).Msg("message not materialized")
		observability.CountIntake(provider, observability.OutcomeDropped)
		return nil
	}
	if err != nil {
		lg.Error().Err(err).Msg("task creation failed")
		subject, body := notify.ProcessingErrorEmail()
		s.reply(ctx, msg.SenderID, subject, body)
		observability.CountIntake(provider, observability.OutcomeError)
		return fmt.Errorf("materialize: %w", err)
	}
	if !created {
		lg.Info().Msg("duplicate delivery, task already exists")
		observability.CountIntake(provider, observability.OutcomeDuplicate)
		return nil
	}

	lg.Info().Str("task_id", task.ID).Msg("task created from email")
	observability.CountIntake(provider, observability.OutcomeCreated)

	subject, body := notify.TaskCreatedEmail(binding.Object.Name, task.ID)
	s.reply(ctx, msg.SenderID, subject, body)
	s.AlertManager(ctx, &binding.Object, task.ID, task.Title)
	return nil
}

// reply sends a templated email; failures are logged, never propagated.
func (s *EmailIntake) reply(ctx context.Context, to, subject, body string) {
	if s.Mailer == nil {
		return
	}
	if err := s.Mailer.Send(ctx, to, subject, body); err != nil {
		log.Error().Err(err).Str("to", to).Str("subject", subject).Msg("outbound email failed")
	}
}

// AlertManager pushes a Telegram notification to the object manager when the
// manager has a bound Telegram account. Failures are logged only.
func (s *EmailIntake) AlertManager(ctx context.Context, obj *domain.CleaningObject, taskID, title string) {
	if s.Bot == nil || !s.Bot.Enabled() {
		return
	}
	if obj.Manager == nil || obj.Manager.TelegramID == nil {
		return
	}
	chatID, err := strconv.ParseInt(*obj.Manager.TelegramID, 10, 64)
	if err != nil {
		log.Warn().Err(err).Str("telegram_id", *obj.Manager.TelegramID).Msg("manager telegram id invalid")
		return
	}
	text := notify.ManagerAlertText(obj.Name, title, taskID)
	if _, err := s.Bot.SendMessage(ctx, chatID, text, nil); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("manager alert failed")
	}
}
