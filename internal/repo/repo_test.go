package repo

import (
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cleanops/go-intake-backend/internal/domain"
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
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, id, name, email string) *domain.User {
	t.Helper()
	u := &domain.User{ID: id, Name: name, Email: email, Role: "MANAGER"}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return u
}

func seedObject(t *testing.T, db *gorm.DB, id, name, address string, managerID *string) *domain.CleaningObject {
	t.Helper()
	o := &domain.CleaningObject{ID: id, Name: name, Address: address, ManagerID: managerID}
	if err := db.Create(o).Error; err != nil {
		t.Fatalf("seed object %s: %v", id, err)
	}
	return o
}

func strptr(s string) *string { return &s }
