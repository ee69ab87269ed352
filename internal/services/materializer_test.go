package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cleanops/go-intake-backend/internal/domain"
	"github.com/cleanops/go-intake-backend/internal/normalize"
)

func emailMessage(sender, id, title, body string) *normalize.Message {
	return &normalize.Message{
		Channel:    domain.SourceEmail,
		Provider:   "mailru",
		MessageID:  id,
		SenderID:   sender,
		Title:      title,
		Body:       body,
		ReceivedAt: time.Now().UTC(),
	}
}

func TestMaterialize_CreatesTaskOnce(t *testing.T) {
	db := newTestDB(t)
	mgr, _, binding := seedWorld(t, db)
	m := NewMaterializer(db, time.Hour)

	msg := emailMessage("client@firm.com", "<m1@test>", "Протечка в комнате 4", "Вода на полу")
	task, created, err := m.Materialize(context.Background(), msg, binding)
	if err != nil || !created {
		t.Fatalf("materialize: created=%v err=%v", created, err)
	}
	if task.AssignedToID != mgr.ID {
		t.Fatalf("assigned to %s, want %s", task.AssignedToID, mgr.ID)
	}
	if task.Status != domain.StatusNew {
		t.Fatalf("status: %s", task.Status)
	}
	if task.SourceDetails["message_id"] != "<m1@test>" {
		t.Fatalf("source details: %v", task.SourceDetails)
	}

	// Redelivery of the same physical message is a no-op.
	task2, created2, err := m.Materialize(context.Background(), msg, binding)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if created2 || task2 != nil {
		t.Fatal("redelivery must not create a second task")
	}
	if n := countTasks(t, db); n != 1 {
		t.Fatalf("task count = %d", n)
	}
}

func TestMaterialize_SpamSender(t *testing.T) {
	db := newTestDB(t)
	_, _, binding := seedWorld(t, db)
	m := NewMaterializer(db, time.Hour)

	for _, sender := range []string{
		"noreply@x.com", "no-reply@shop.ru", "donotreply@bank.com",
		"mailer-daemon@mx.ru", "postmaster@x.com",
	} {
		msg := emailMessage(sender, "<s-"+sender+">", "t", "b")
		if _, _, err := m.Materialize(context.Background(), msg, binding); !errors.Is(err, ErrSpamSender) {
			t.Fatalf("%s: expected ErrSpamSender, got %v", sender, err)
		}
	}
	if n := countTasks(t, db); n != 0 {
		t.Fatalf("spam created %d tasks", n)
	}

	msg := emailMessage("client@company.com", "<ok@test>", "t", "b")
	if _, created, err := m.Materialize(context.Background(), msg, binding); err != nil || !created {
		t.Fatalf("legitimate sender blocked: created=%v err=%v", created, err)
	}
}

func TestMaterialize_AttachmentCeiling(t *testing.T) {
	db := newTestDB(t)
	_, _, binding := seedWorld(t, db)
	m := NewMaterializer(db, time.Hour)

	msg := emailMessage("client@firm.com", "<att@test>", "Фото", "См. вложения")
	msg.Attachments = []normalize.Attachment{
		{Filename: "small.jpg", Size: 1024, URL: "https://files/small.jpg"},
		{Filename: "huge.mov", Size: 11 * 1024 * 1024, URL: "https://files/huge.mov"},
	}

	task, created, err := m.Materialize(context.Background(), msg, binding)
	if err != nil || !created {
		t.Fatalf("materialize: created=%v err=%v", created, err)
	}
	if len(task.Attachments) != 1 || task.Attachments[0] != "https://files/small.jpg" {
		t.Fatalf("attachments: %v", task.Attachments)
	}
}

func TestMaterialize_EmptyMessage(t *testing.T) {
	db := newTestDB(t)
	_, _, binding := seedWorld(t, db)
	m := NewMaterializer(db, time.Hour)

	msg := emailMessage("client@firm.com", "<empty@test>", "", "   ")
	if _, _, err := m.Materialize(context.Background(), msg, binding); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestMaterialize_TitleDerivedFromBody(t *testing.T) {
	db := newTestDB(t)
	_, _, binding := seedWorld(t, db)
	m := NewMaterializer(db, time.Hour)

	longBody := "Нужна уборка после ремонта во всех помещениях на третьем этаже здания"
	msg := emailMessage("client@firm.com", "<derive@test>", "", longBody)
	task, _, err := m.Materialize(context.Background(), msg, binding)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	want := string([]rune(longBody)[:50]) + "..."
	if task.Title != want {
		t.Fatalf("title = %q, want %q", task.Title, want)
	}
}

func TestIsSpamSender(t *testing.T) {
	if IsSpamSender("client@company.com") {
		t.Fatal("legitimate address flagged")
	}
	if !IsSpamSender("NoReply@X.com") {
		t.Fatal("denylist must be case-insensitive")
	}
}
