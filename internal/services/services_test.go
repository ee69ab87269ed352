package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cleanops/go-intake-backend/internal/domain"
	"github.com/cleanops/go-intake-backend/internal/notify"
	"github.com/cleanops/go-intake-backend/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Use a unique in-memory database per test to avoid schema leakage across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func strptr(s string) *string { return &s }

// seedWorld creates a manager, an object owned by that manager, and an email
// binding for client@firm.com.
func seedWorld(t *testing.T, db *gorm.DB) (*domain.User, *domain.CleaningObject, *domain.ClientBinding) {
	t.Helper()
	mgr := &domain.User{
		ID: "mgr-1", Name: "Olga", Email: "olga@cleaning.example", Role: "MANAGER",
		TelegramID: strptr("900100"),
	}
	if err := db.Create(mgr).Error; err != nil {
		t.Fatalf("seed manager: %v", err)
	}
	obj := &domain.CleaningObject{
		ID: "obj-1", Name: "Бизнес-центр Орион", Address: "ул. Ленина, 1", ManagerID: &mgr.ID,
	}
	if err := db.Create(obj).Error; err != nil {
		t.Fatalf("seed object: %v", err)
	}
	b, err := repo.UpsertBinding(context.Background(), db, &domain.ClientBinding{
		Email: strptr("client@firm.com"), ObjectID: obj.ID,
	})
	if err != nil {
		t.Fatalf("seed binding: %v", err)
	}
	return mgr, obj, b
}

// fakeMailer records outbound email.
type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no email sent")
	}
	return f.sent[len(f.sent)-1]
}

// fakeBot records Telegram alerts.
type fakeBot struct {
	mu       sync.Mutex
	enabled  bool
	messages []struct {
		ChatID int64
		Text   string
	}
}

func (f *fakeBot) Enabled() bool { return f.enabled }

func (f *fakeBot) SendMessage(_ context.Context, chatID int64, text string, _ *notify.InlineKeyboard) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, struct {
		ChatID int64
		Text   string
	}{chatID, text})
	return int64(len(f.messages)), nil
}

func (f *fakeBot) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func countTasks(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&domain.AdditionalTask{}).Count(&n).Error; err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	return n
}

func testEmail(from, subject, body string) []byte {
	id := strings.ReplaceAll(subject, " ", "-")
	return []byte("From: " + from + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Message-Id: <" + id + "@test>\r\n" +
		"Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		body + "\r\n")
}
