package repo

import (
	"context"
	"testing"

	"github.com/cleanops/go-intake-backend/internal/domain"
)

func TestFindBindingByEmail_NormalizesAndPreloads(t *testing.T) {
	db := newTestDB(t)
	mgr := seedUser(t, db, "u1", "Anna", "anna@example.com")
	seedObject(t, db, "o1", "Office Park", "1 Main St", &mgr.ID)

	if _, err := UpsertBinding(context.Background(), db, &domain.ClientBinding{
		Email:    strptr("Client@Example.COM"),
		ObjectID: "o1",
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	b, err := FindBindingByEmail(context.Background(), db, "  CLIENT@example.com ")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if b.Email == nil || *b.Email != "client@example.com" {
		t.Fatalf("email not normalized: %v", b.Email)
	}
	if b.Object.Name != "Office Park" {
		t.Fatalf("object not preloaded: %+v", b.Object)
	}
	if b.Object.Manager == nil || b.Object.Manager.ID != "u1" {
		t.Fatalf("manager not preloaded: %+v", b.Object.Manager)
	}
}

func TestFindBindingByEmail_EmptyOrMissing(t *testing.T) {
	db := newTestDB(t)

	if _, err := FindBindingByEmail(context.Background(), db, "   "); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for blank email, got %v", err)
	}
	if _, err := FindBindingByEmail(context.Background(), db, "nobody@example.com"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for missing email, got %v", err)
	}
}

func TestFindBindingByTelegramID(t *testing.T) {
	db := newTestDB(t)
	seedObject(t, db, "o1", "Warehouse", "2 Dock Rd", nil)

	if _, err := UpsertBinding(context.Background(), db, &domain.ClientBinding{
		TelegramID: strptr("123456"),
		ObjectID:   "o1",
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	b, err := FindBindingByTelegramID(context.Background(), db, "123456")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if b.Object.Name != "Warehouse" {
		t.Fatalf("object not preloaded: %+v", b.Object)
	}

	if _, err := FindBindingByTelegramID(context.Background(), db, "999"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertBinding_UpdatesInsteadOfDuplicating(t *testing.T) {
	db := newTestDB(t)
	seedObject(t, db, "o1", "Mall", "3 Center Ave", nil)

	first, err := UpsertBinding(context.Background(), db, &domain.ClientBinding{
		TelegramID:  strptr("777"),
		ObjectID:    "o1",
		DisplayName: strptr("Old Name"),
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second, err := UpsertBinding(context.Background(), db, &domain.ClientBinding{
		TelegramID:  strptr("777"),
		ObjectID:    "o1",
		DisplayName: strptr("New Name"),
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected update of existing row, got new id %s != %s", second.ID, first.ID)
	}

	var count int64
	db.Model(&domain.ClientBinding{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 binding row, got %d", count)
	}

	fresh, err := FindBindingByTelegramID(context.Background(), db, "777")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if fresh.DisplayName == nil || *fresh.DisplayName != "New Name" {
		t.Fatalf("display name not refreshed: %v", fresh.DisplayName)
	}
}

func TestUpsertBinding_NoIdentity(t *testing.T) {
	db := newTestDB(t)
	seedObject(t, db, "o1", "Mall", "3 Center Ave", nil)

	if _, err := UpsertBinding(context.Background(), db, &domain.ClientBinding{ObjectID: "o1"}); err == nil {
		t.Fatal("expected error for binding without identity")
	}
}

func TestUpsertBinding_SameIdentityDifferentObjects(t *testing.T) {
	db := newTestDB(t)
	seedObject(t, db, "o1", "Site A", "", nil)
	seedObject(t, db, "o2", "Site B", "", nil)

	if _, err := UpsertBinding(context.Background(), db, &domain.ClientBinding{
		Email: strptr("c@example.com"), ObjectID: "o1",
	}); err != nil {
		t.Fatalf("upsert o1: %v", err)
	}
	if _, err := UpsertBinding(context.Background(), db, &domain.ClientBinding{
		Email: strptr("c@example.com"), ObjectID: "o2",
	}); err != nil {
		t.Fatalf("upsert o2: %v", err)
	}

	var count int64
	db.Model(&domain.ClientBinding{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 binding rows, got %d", count)
	}
}
