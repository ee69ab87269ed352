// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ClientBinding model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a binding is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - FindBindingByEmail(ctx, db, email) -> *domain.ClientBinding, error
//     Resolves the unique binding for a (lower-cased) email address, with
//     the serviced object and its manager preloaded.
//
//   - FindBindingByTelegramID(ctx, db, telegramID) -> *domain.ClientBinding, error
//     Resolves the unique binding for a Telegram chat id, with the serviced
//     object and its manager preloaded.
//
//   - UpsertBinding(ctx, db, b) -> *domain.ClientBinding, error
//     Creates a binding keyed on (identity, object) or, when that pair
//     already exists, refreshes the row's display metadata in place.
//
// This repository is designed to be wrapped by a higher-level service
// (see services.Resolver) which enforces business rules on top of it.
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

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// FindBindingByEmail returns the binding whose email matches (case
// insensitively), with Object and Object.Manager preloaded, or ErrNotFound.
func FindBindingByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.ClientBinding, error) {
	addr := strings.ToLower(strings.TrimSpace(email))
	if addr == "" {
		return nil, ErrNotFound
	}
	var b domain.ClientBinding
	err := db.WithContext(ctx).
		Preload("Object").
		Preload("Object.Manager").
		Where("email = ?", addr).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// FindBindingByTelegramID returns the binding for a Telegram chat id, with
// Object and Object.Manager preloaded, or ErrNotFound.
func FindBindingByTelegramID(ctx context.Context, db *gorm.DB, telegramID string) (*domain.ClientBinding, error) {
	id := strings.TrimSpace(telegramID)
	if id == "" {
		return nil, ErrNotFound
	}
	var b domain.ClientBinding
	err := db.WithContext(ctx).
		Preload("Object").
		Preload("Object.Manager").
		Where("telegram_id = ?", id).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpsertBinding inserts a binding or, when one already exists for the same
// (identity, object) pair, updates its display metadata. Email identities are
// normalized to lower case before writing. The returned row reflects the
// state after the write.
func UpsertBinding(ctx context.Context, db *gorm.DB, b *domain.ClientBinding) (*domain.ClientBinding, error) {
	if b.Email != nil {
		low := strings.ToLower(strings.TrimSpace(*b.Email))
		b.Email = &low
	}

	q := db.WithContext(ctx).Model(&domain.ClientBinding{}).Where("object_id = ?", b.ObjectID)
	switch {
	case b.Email != nil:
		q = q.Where("email = ?", *b.Email)
	case b.TelegramID != nil:
		q = q.Where("telegram_id = ?", *b.TelegramID)
	default:
		return nil, errors.New("binding has no identity")
	}

	var existing domain.ClientBinding
	err := q.First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"display_name":      b.DisplayName,
			"telegram_username": b.TelegramUsername,
			"first_name":        b.FirstName,
			"last_name":         b.LastName,
			"updated_at":        time.Now().UTC(),
		}
		if err := db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		b.ID = uuid.NewString()
		b.CreatedAt = time.Now().UTC()
		if err := db.WithContext(ctx).Create(b).Error; err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, err
	}
}
