// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the IntakeReceipt
// model used to implement exactly-once materialization of inbound messages.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cleanops/go-intake-backend/internal/domain"
)

// ErrDuplicate indicates that a receipt already exists for the given key.
var ErrDuplicate = errors.New("duplicate")

// GetReceipt returns a non-expired receipt for the key, or ErrNotFound.
func GetReceipt(ctx context.Context, db *gorm.DB, key string, now time.Time) (*domain.IntakeReceipt, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.IntakeReceipt
	err := db.WithContext(ctx).
		Where("key = ? AND expires_at > ?", key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ClaimReceipt inserts a receipt and returns ErrDuplicate on unique violation.
// A duplicate means some earlier delivery of the same message already created
// its task; callers must treat that as a silent no-op.
func ClaimReceipt(ctx context.Context, db *gorm.DB, key, channel, taskID string, ttl time.Duration) (*domain.IntakeReceipt, error) {
	now := time.Now().UTC()
	rec := &domain.IntakeReceipt{
		ID:        uuid.NewString(),
		Key:       key,
		Channel:   channel,
		TaskID:    taskID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeExpiredReceipts deletes receipts past their TTL and reports how many
// rows were removed.
func PurgeExpiredReceipts(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&domain.IntakeReceipt{})
	return res.RowsAffected, res.Error
}
