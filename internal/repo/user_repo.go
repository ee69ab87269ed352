// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User and
// TelegramBindingCode models used by the staff binding flow.
//
// Functions:
//
//   - FindUserByTelegramID(ctx, db, telegramID) -> *domain.User, error
//     Looks up the staff account already holding a Telegram identity.
//
//   - AttachTelegram(ctx, db, userID, identity) -> error
//     Writes the telegram_* columns of a staff account.
//
//   - FindBindingCode(ctx, db, code) -> *domain.TelegramBindingCode, error
//     Fetches a one-time binding code with its user preloaded.
//
//   - DeleteBindingCode(ctx, db, code) -> error
//     Removes a consumed or expired code.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/cleanops/go-intake-backend/internal/domain"
)

// TelegramIdentity is the set of Telegram profile fields written onto a staff
// account when a binding code is redeemed.
type TelegramIdentity struct {
	TelegramID string
	Username   *string
	FirstName  *string
	LastName   *string
}

// FindUserByTelegramID returns the user bound to the given Telegram id, or
// ErrNotFound.
func FindUserByTelegramID(ctx context.Context, db *gorm.DB, telegramID string) (*domain.User, error) {
	id := strings.TrimSpace(telegramID)
	if id == "" {
		return nil, ErrNotFound
	}
	var u domain.User
	err := db.WithContext(ctx).Where("telegram_id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// AttachTelegram writes the Telegram identity onto a staff account. Returns
// ErrNotFound when the account does not exist and ErrDuplicate when the
// Telegram id is already held by another account.
func AttachTelegram(ctx context.Context, db *gorm.DB, userID string, ident TelegramIdentity) error {
	res := db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"telegram_id":         ident.TelegramID,
			"telegram_username":   ident.Username,
			"telegram_first_name": ident.FirstName,
			"telegram_last_name":  ident.LastName,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		low := strings.ToLower(res.Error.Error())
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindBindingCode fetches a code with its user preloaded, or ErrNotFound.
// Expiry is not checked here; callers decide how to treat expired codes.
func FindBindingCode(ctx context.Context, db *gorm.DB, code string) (*domain.TelegramBindingCode, error) {
	c := strings.TrimSpace(code)
	if c == "" {
		return nil, ErrNotFound
	}
	var rec domain.TelegramBindingCode
	err := db.WithContext(ctx).Preload("User").Where("code = ?", c).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteBindingCode removes a code. Deleting a missing code is not an error.
func DeleteBindingCode(ctx context.Context, db *gorm.DB, code string) error {
	return db.WithContext(ctx).Where("code = ?", code).Delete(&domain.TelegramBindingCode{}).Error
}
