package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cleanops/go-intake-backend/internal/domain"
	"gorm.io/gorm"
)

func newIntake(db *gorm.DB, mailer *fakeMailer, bot *fakeBot) *EmailIntake {
	return &EmailIntake{
		Resolver:     NewResolver(db),
		Materializer: NewMaterializer(db, time.Hour),
		Mailer:       mailer,
		Bot:          bot,
		BaseURL:      "https://cleaning.example",
	}
}

func TestIntake_UnboundSenderGetsSelectionLink(t *testing.T) {
	db := newTestDB(t)
	seedWorld(t, db)
	mailer := &fakeMailer{}
	s := newIntake(db, mailer, &fakeBot{})

	raw := testEmail("client@newfirm.com", "Leak in room 4", "There is a leak in room 4")
	if err := s.Process(context.Background(), "mailru", raw); err != nil {
		t.Fatalf("process: %v", err)
	}

	if n := countTasks(t, db); n != 0 {
		t.Fatalf("unbound sender created %d tasks", n)
	}
	mail := mailer.last(t)
	if mail.To != "client@newfirm.com" {
		t.Fatalf("reply to: %s", mail.To)
	}
	if !strings.Contains(mail.Body, "choose-object?email=client%40newfirm.com") {
		t.Fatalf("selection link missing or unencoded: %s", mail.Body)
	}
}

func TestIntake_NoManagerNotice(t *testing.T) {
	db := newTestDB(t)
	obj := &domain.CleaningObject{ID: "o-x", Name: "Паркинг"}
	if err := db.Create(obj).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	email := "tenant@firm.com"
	if err := db.Create(&domain.ClientBinding{
		ID: "b-x", Email: &email, ObjectID: obj.ID,
	}).Error; err != nil {
		t.Fatalf("bind: %v", err)
	}
	mailer := &fakeMailer{}
	s := newIntake(db, mailer, &fakeBot{})

	raw := testEmail("tenant@firm.com", "Мусор у входа", "Просьба убрать")
	if err := s.Process(context.Background(), "generic", raw); err != nil {
		t.Fatalf("process: %v", err)
	}

	if n := countTasks(t, db); n != 0 {
		t.Fatalf("no-manager flow created %d tasks", n)
	}
	mail := mailer.last(t)
	if !strings.Contains(mail.Body, "Паркинг") {
		t.Fatalf("notice lacks object name: %s", mail.Body)
	}
}

func TestIntake_SpamDroppedSilently(t *testing.T) {
	db := newTestDB(t)
	seedWorld(t, db)
	mailer := &fakeMailer{}
	s := newIntake(db, mailer, &fakeBot{})

	raw := testEmail("mailer-daemon@mx.ru", "Delivery failure", "bounce")
	if err := s.Process(context.Background(), "mailru", raw); err != nil {
		t.Fatalf("process: %v", err)
	}
	if mailer.count() != 0 {
		t.Fatal("spam sender must get no reply")
	}
	if n := countTasks(t, db); n != 0 {
		t.Fatalf("spam created %d tasks", n)
	}
}

func TestIntake_BoundSenderCreatesTaskAndAlerts(t *testing.T) {
	db := newTestDB(t)
	seedWorld(t, db)
	mailer := &fakeMailer{}
	bot := &fakeBot{enabled: true}
	s := newIntake(db, mailer, bot)

	raw := testEmail("client@firm.com", "Протечка", "Вода в комнате 4")
	if err := s.Process(context.Background(), "mailru", raw); err != nil {
		t.Fatalf("process: %v", err)
	}

	if n := countTasks(t, db); n != 1 {
		t.Fatalf("task count = %d", n)
	}
	mail := mailer.last(t)
	if !strings.Contains(mail.Body, "Бизнес-центр Орион") {
		t.Fatalf("confirmation lacks object name: %s", mail.Body)
	}

	if bot.count() != 1 {
		t.Fatalf("manager alert count = %d", bot.count())
	}
	bot.mu.Lock()
	alert := bot.messages[0]
	bot.mu.Unlock()
	if alert.ChatID != 900100 {
		t.Fatalf("alert chat id = %d", alert.ChatID)
	}
	if !strings.Contains(alert.Text, "Протечка") {
		t.Fatalf("alert text: %s", alert.Text)
	}
}

func TestIntake_RedeliveryIsNoOp(t *testing.T) {
	db := newTestDB(t)
	seedWorld(t, db)
	mailer := &fakeMailer{}
	s := newIntake(db, mailer, &fakeBot{})

	raw := testEmail("client@firm.com", "Same message", "body")
	if err := s.Process(context.Background(), "mailru", raw); err != nil {
		t.Fatalf("first: %v", err)
	}
	firstMails := mailer.count()
	if err := s.Process(context.Background(), "mailru", raw); err != nil {
		t.Fatalf("second: %v", err)
	}
	if n := countTasks(t, db); n != 1 {
		t.Fatalf("redelivery created tasks: %d", n)
	}
	if mailer.count() != firstMails {
		t.Fatal("redelivery must not resend the confirmation")
	}
}

func TestIntake_MailerFailureDoesNotFailPipeline(t *testing.T) {
	db := newTestDB(t)
	seedWorld(t, db)
	mailer := &fakeMailer{err: context.DeadlineExceeded}
	s := newIntake(db, mailer, &fakeBot{})

	raw := testEmail("client@firm.com", "Уборка", "Нужна уборка")
	if err := s.Process(context.Background(), "mailru", raw); err != nil {
		t.Fatalf("notification failure must not propagate: %v", err)
	}
	if n := countTasks(t, db); n != 1 {
		t.Fatalf("task count = %d", n)
	}
}
