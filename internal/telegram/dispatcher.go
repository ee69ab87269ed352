// Package telegram – Dispatcher
//
// This file implements the webhook dispatch table: callback queries finalize
// client bindings, /start and free text drive the organization search,
// /bind links staff accounts, and any payload from a settled binding becomes
// a task submission.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/cleanops/go-intake-backend/internal/domain"
	"github.com/cleanops/go-intake-backend/internal/normalize"
	"github.com/cleanops/go-intake-backend/internal/notify"
	"github.com/cleanops/go-intake-backend/internal/observability"
	"github.com/cleanops/go-intake-backend/internal/repo"
	"github.com/cleanops/go-intake-backend/internal/search"
	"github.com/cleanops/go-intake-backend/internal/services"
)

const (
	// callbackConfirmPrefix carries the object id chosen from the inline
	// keyboard.
	callbackConfirmPrefix = "confirm_object_"
	callbackSearchAgain   = "search_again"

	// bindingSettleWindow guards against the confirmation flow's trailing
	// text message being read as a task submission.
	bindingSettleWindow = 5 * time.Second

	searchResultCap = 5

	// fuzzyCorpusCap bounds how many objects the in-memory matcher loads.
	fuzzyCorpusCap = 500
)

// Bot is the outbound bot API surface the dispatcher needs.
type Bot interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *notify.InlineKeyboard) (int64, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
	FileURL(ctx context.Context, fileID string) (string, error)
}

// Dispatcher handles one webhook Update per call. It is stateless; all
// conversation state lives in the database.
type Dispatcher struct {
	// DB is the GORM handle used for persistence.
	DB           *gorm.DB
	Bot          Bot
	Materializer *services.Materializer

	// now is swapped in tests.
	now func() time.Time
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(db *gorm.DB, bot Bot, m *services.Materializer) *Dispatcher {
	return &Dispatcher{DB: db, Bot: bot, Materializer: m, now: time.Now}
}

// Dispatch routes one update. Errors are returned for logging only; the
// webhook handler acknowledges Telegram regardless.
func (d *Dispatcher) Dispatch(ctx context.Context, upd *Update) error {
	tr := otel.Tracer("telegram/Dispatcher")
	ctx, span := tr.Start(ctx, "Dispatch",
		trace.WithAttributes(attribute.Int64("update.id", upd.UpdateID)),
	)
	defer span.End()

	switch {
	case upd.CallbackQuery != nil:
		return d.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		return d.handleMessage(ctx, upd.Message)
	default:
		log.Debug().Int64("update_id", upd.UpdateID).Msg("update carries no message or callback")
		return nil
	}
}

// handleCallback processes inline keyboard presses. The callback is always
// answered first so the client stops its spinner.
func (d *Dispatcher) handleCallback(ctx context.Context, cb *CallbackQuery) error {
	if err := d.Bot.AnswerCallbackQuery(ctx, cb.ID); err != nil {
		log.Warn().Err(err).Str("callback_id", cb.ID).Msg("answerCallbackQuery failed")
	}
	if cb.Message == nil {
		return nil
	}
	chatID := cb.Message.Chat.ID

	switch {
	case cb.Data == callbackSearchAgain:
		_, err := d.Bot.SendMessage(ctx, chatID, notify.StartPromptText(strconv.FormatInt(cb.From.ID, 10)), nil)
		return err

	case strings.HasPrefix(cb.Data, callbackConfirmPrefix):
		objectID := strings.TrimPrefix(cb.Data, callbackConfirmPrefix)
		return d.confirmBinding(ctx, cb, chatID, objectID)

	default:
		log.Debug().Str("data", cb.Data).Msg("unknown callback data")
		return nil
	}
}

// confirmBinding finalizes a client binding chosen from the keyboard and
// edits the original message into the confirmation. Re-sending the same
// callback updates the existing row instead of duplicating it.
func (d *Dispatcher) confirmBinding(ctx context.Context, cb *CallbackQuery, chatID int64, objectID string) error {
	obj, err := repo.GetObject(ctx, d.DB, objectID)
	if errors.Is(err, repo.ErrNotFound) {
		return d.edit(ctx, chatID, cb.Message.MessageID, notify.SearchNoResultsText(objectID))
	}
	if err != nil {
		return fmt.Errorf("load object: %w", err)
	}
	if obj.ManagerID == nil {
		return d.edit(ctx, chatID, cb.Message.MessageID, notify.NoManagerText(obj.Name))
	}

	tgID := strconv.FormatInt(cb.From.ID, 10)
	binding := &domain.ClientBinding{
		TelegramID: &tgID,
		ObjectID:   obj.ID,
	}
	if name := cb.From.DisplayName(); name != "" {
		binding.DisplayName = &name
	}
	if cb.From.Username != "" {
		binding.TelegramUsername = &cb.From.Username
	}
	if cb.From.FirstName != "" {
		binding.FirstName = &cb.From.FirstName
	}
	if cb.From.LastName != "" {
		binding.LastName = &cb.From.LastName
	}
	if _, err := repo.UpsertBinding(ctx, d.DB, binding); err != nil {
		return fmt.Errorf("upsert binding: %w", err)
	}
	return d.edit(ctx, chatID, cb.Message.MessageID, notify.BindingConfirmedText(obj.Name))
}

func (d *Dispatcher) edit(ctx context.Context, chatID, messageID int64, text string) error {
	if err := d.Bot.EditMessageText(ctx, chatID, messageID, text); err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("editMessageText failed")
	}
	return nil
}

// handleMessage routes a chat message through the tagged-variant switch.
func (d *Dispatcher) handleMessage(ctx context.Context, msg *Message) error {
	in := NormalizeMessage(msg)
	if in == nil {
		log.Debug().Int64("chat_id", msg.Chat.ID).Msg("unsupported message payload")
		return nil
	}

	switch v := in.(type) {
	case TextMessage:
		return d.handleText(ctx, v)
	case VoiceMessage:
		return d.handleSubmission(ctx, v.MessageMeta, v.Caption, &attachmentRef{FileID: v.File.FileID, Size: v.File.FileSize, ContentType: v.File.MimeType, Filename: "voice.oga"})
	case PhotoMessage:
		return d.handleSubmission(ctx, v.MessageMeta, v.Caption, &attachmentRef{FileID: v.File.FileID, Size: v.File.FileSize, ContentType: "image/jpeg", Filename: "photo.jpg"})
	case DocumentMessage:
		name := v.File.FileName
		if name == "" {
			name = "document"
		}
		return d.handleSubmission(ctx, v.MessageMeta, v.Caption, &attachmentRef{FileID: v.File.FileID, Size: v.File.FileSize, ContentType: v.File.MimeType, Filename: name})
	default:
		return nil
	}
}

// handleText covers commands, the organization search, and text task
// submissions.
func (d *Dispatcher) handleText(ctx context.Context, msg TextMessage) error {
	chatID := msg.ChatID
	tgID := strconv.FormatInt(chatID, 10)

	if msg.Text == "/start" {
		binding, err := repo.FindBindingByTelegramID(ctx, d.DB, tgID)
		if err == nil {
			_, serr := d.Bot.SendMessage(ctx, chatID, notify.StartBoundText(binding.Object.Name), nil)
			return serr
		}
		_, serr := d.Bot.SendMessage(ctx, chatID, notify.StartPromptText(tgID), nil)
		return serr
	}

	if strings.HasPrefix(msg.Text, "/bind") {
		return d.handleStaffBind(ctx, msg)
	}

	binding, err := repo.FindBindingByTelegramID(ctx, d.DB, tgID)
	if errors.Is(err, repo.ErrNotFound) {
		return d.handleSearch(ctx, chatID, msg.Text)
	}
	if err != nil {
		return fmt.Errorf("find binding: %w", err)
	}

	if binding.Age(d.now()) < bindingSettleWindow {
		// The trailing message of the confirmation flow, not a task.
		log.Debug().Int64("chat_id", chatID).Msg("binding not settled, ignoring text")
		return nil
	}
	return d.submitTask(ctx, binding, msg.MessageMeta, msg.Text, nil)
}

// handleSearch runs the organization lookup for an unbound user. The
// substring search is tried first; when it finds nothing, the token matcher
// gets a second chance so reordered or padded queries still resolve.
func (d *Dispatcher) handleSearch(ctx context.Context, chatID int64, query string) error {
	objects, err := repo.SearchObjects(ctx, d.DB, query, searchResultCap)
	if err != nil {
		return fmt.Errorf("search objects: %w", err)
	}
	if len(objects) == 0 {
		objects, err = d.fuzzySearch(ctx, query)
		if err != nil {
			return fmt.Errorf("fuzzy search objects: %w", err)
		}
	}

	switch len(objects) {
	case 0:
		_, serr := d.Bot.SendMessage(ctx, chatID, notify.SearchNoResultsText(query), nil)
		return serr
	case 1:
		obj := objects[0]
		kb := notify.SingleRowKeyboard(
			notify.InlineButton{Text: "Да, это мой объект", CallbackData: callbackConfirmPrefix + obj.ID},
			notify.InlineButton{Text: "Искать снова", CallbackData: callbackSearchAgain},
		)
		_, serr := d.Bot.SendMessage(ctx, chatID, notify.SearchConfirmText(obj.Name, obj.Address), kb)
		return serr
	default:
		buttons := make([]notify.InlineButton, 0, len(objects))
		for _, obj := range objects {
			buttons = append(buttons, notify.InlineButton{
				Text:         obj.Name,
				CallbackData: callbackConfirmPrefix + obj.ID,
			})
		}
		_, serr := d.Bot.SendMessage(ctx, chatID, notify.SearchManyText(), notify.SingleRowKeyboard(buttons...))
		return serr
	}
}

// fuzzySearch ranks the object inventory by token overlap with the query.
func (d *Dispatcher) fuzzySearch(ctx context.Context, query string) ([]domain.CleaningObject, error) {
	corpus, err := repo.ListObjects(ctx, d.DB, fuzzyCorpusCap)
	if err != nil {
		return nil, err
	}
	matches := search.NewMatcher(corpus).TopK(query, searchResultCap)
	objects := make([]domain.CleaningObject, 0, len(matches))
	for _, m := range matches {
		objects = append(objects, m.Object)
	}
	return objects, nil
}

// handleStaffBind redeems a one-time binding code and attaches the Telegram
// identity to a staff account. Each failure mode gets its own reply.
func (d *Dispatcher) handleStaffBind(ctx context.Context, msg TextMessage) error {
	chatID := msg.ChatID
	fields := strings.Fields(msg.Text)
	if len(fields) != 2 {
		_, err := d.Bot.SendMessage(ctx, chatID, notify.BindCodeUsageText, nil)
		return err
	}
	code := fields[1]

	rec, err := repo.FindBindingCode(ctx, d.DB, code)
	if errors.Is(err, repo.ErrNotFound) {
		_, serr := d.Bot.SendMessage(ctx, chatID, notify.BindCodeNotFoundText, nil)
		return serr
	}
	if err != nil {
		return fmt.Errorf("find code: %w", err)
	}
	if rec.Expired(d.now()) {
		// Delete on detection so an expired code cannot be raced.
		if derr := repo.DeleteBindingCode(ctx, d.DB, code); derr != nil {
			log.Warn().Err(derr).Str("code", code).Msg("expired code delete failed")
		}
		_, serr := d.Bot.SendMessage(ctx, chatID, notify.BindCodeExpiredText, nil)
		return serr
	}

	tgID := strconv.FormatInt(chatID, 10)
	if rec.User.TelegramID != nil && *rec.User.TelegramID != tgID {
		_, serr := d.Bot.SendMessage(ctx, chatID, notify.BindAlreadyBoundText, nil)
		return serr
	}
	if other, err := repo.FindUserByTelegramID(ctx, d.DB, tgID); err == nil && other.ID != rec.UserID {
		_, serr := d.Bot.SendMessage(ctx, chatID, notify.BindIDTakenText, nil)
		return serr
	}

	ident := repo.TelegramIdentity{TelegramID: tgID}
	if msg.From != nil {
		if msg.From.Username != "" {
			ident.Username = &msg.From.Username
		}
		if msg.From.FirstName != "" {
			ident.FirstName = &msg.From.FirstName
		}
		if msg.From.LastName != "" {
			ident.LastName = &msg.From.LastName
		}
	}
	if err := repo.AttachTelegram(ctx, d.DB, rec.UserID, ident); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			_, serr := d.Bot.SendMessage(ctx, chatID, notify.BindIDTakenText, nil)
			return serr
		}
		return fmt.Errorf("attach telegram: %w", err)
	}
	if err := repo.DeleteBindingCode(ctx, d.DB, code); err != nil {
		log.Warn().Err(err).Str("code", code).Msg("consumed code delete failed")
	}
	_, serr := d.Bot.SendMessage(ctx, chatID, notify.BindSuccessText(rec.User.Name), nil)
	return serr
}

// attachmentRef is a media payload pending URL resolution.
type attachmentRef struct {
	FileID      string
	Size        int64
	ContentType string
	Filename    string
}

// handleSubmission treats a media message from a bound user as a task
// submission; unbound users are prompted to bind first.
func (d *Dispatcher) handleSubmission(ctx context.Context, meta MessageMeta, caption string, att *attachmentRef) error {
	tgID := strconv.FormatInt(meta.ChatID, 10)
	binding, err := repo.FindBindingByTelegramID(ctx, d.DB, tgID)
	if errors.Is(err, repo.ErrNotFound) {
		_, serr := d.Bot.SendMessage(ctx, meta.ChatID, notify.StartPromptText(tgID), nil)
		return serr
	}
	if err != nil {
		return fmt.Errorf("find binding: %w", err)
	}
	if binding.Age(d.now()) < bindingSettleWindow {
		log.Debug().Int64("chat_id", meta.ChatID).Msg("binding not settled, ignoring media")
		return nil
	}
	return d.submitTask(ctx, binding, meta, caption, att)
}

// submitTask materializes a task from a settled binding's message and sends
// the confirmations.
func (d *Dispatcher) submitTask(ctx context.Context, binding *domain.ClientBinding, meta MessageMeta, content string, att *attachmentRef) error {
	msg := &normalize.Message{
		Channel:    domain.SourceTelegram,
		Provider:   "telegram",
		MessageID:  meta.DedupID(),
		SenderID:   strconv.FormatInt(meta.ChatID, 10),
		Body:       strings.TrimSpace(content),
		ReceivedAt: d.now().UTC(),
	}
	if meta.From != nil {
		msg.SenderName = meta.From.DisplayName()
	}
	msg.Title = normalize.DeriveTitle(msg.Body, "Заявка из Telegram")

	if att != nil {
		url, err := d.Bot.FileURL(ctx, att.FileID)
		if err != nil {
			log.Warn().Err(err).Str("file_id", att.FileID).Msg("file URL resolution failed")
		} else {
			msg.Attachments = append(msg.Attachments, normalize.Attachment{
				Filename:    att.Filename,
				ContentType: att.ContentType,
				Size:        att.Size,
				URL:         url,
			})
		}
	}

	task, created, err := d.Materializer.Materialize(ctx, msg, binding)
	switch {
	case errors.Is(err, services.ErrNoManager):
		observability.CountIntake("telegram", observability.OutcomeDropped)
		_, serr := d.Bot.SendMessage(ctx, meta.ChatID, notify.NoManagerText(binding.Object.Name), nil)
		return serr
	case errors.Is(err, services.ErrEmptyMessage):
		log.Debug().Int64("chat_id", meta.ChatID).Msg("empty submission, nothing to materialize")
		observability.CountIntake("telegram", observability.OutcomeDropped)
		return nil
	case err != nil:
		// The webhook contract still answers ok; the failure only reaches
		// the logs.
		observability.CountIntake("telegram", observability.OutcomeError)
		return fmt.Errorf("materialize: %w", err)
	case !created:
		log.Info().Int64("chat_id", meta.ChatID).Msg("duplicate delivery, task already exists")
		observability.CountIntake("telegram", observability.OutcomeDuplicate)
		return nil
	}

	observability.CountIntake("telegram", observability.OutcomeCreated)
	if _, err := d.Bot.SendMessage(ctx, meta.ChatID, notify.TaskCreatedText(binding.Object.Name, task.ID), nil); err != nil {
		log.Warn().Err(err).Int64("chat_id", meta.ChatID).Msg("confirmation send failed")
	}
	d.alertManager(ctx, &binding.Object, task)
	return nil
}

// alertManager notifies the object manager when a Telegram identity is
// attached to the manager account.
func (d *Dispatcher) alertManager(ctx context.Context, obj *domain.CleaningObject, task *domain.AdditionalTask) {
	if obj.Manager == nil || obj.Manager.TelegramID == nil {
		return
	}
	chatID, err := strconv.ParseInt(*obj.Manager.TelegramID, 10, 64)
	if err != nil {
		log.Warn().Err(err).Str("telegram_id", *obj.Manager.TelegramID).Msg("manager telegram id invalid")
		return
	}
	if _, err := d.Bot.SendMessage(ctx, chatID, notify.ManagerAlertText(obj.Name, task.Title, task.ID), nil); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("manager alert failed")
	}
}
