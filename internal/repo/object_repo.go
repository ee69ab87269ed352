// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// CleaningObject model.
//
// Functions:
//
//   - GetObject(ctx, db, id) -> *domain.CleaningObject, error
//     Fetches a single object by ID with its manager preloaded, or
//     ErrNotFound if missing.
//
//   - SearchObjects(ctx, db, query, limit) -> []domain.CleaningObject, error
//     Case-insensitive substring search over name, address and description,
//     capped at limit rows.
//
//   - ListObjects(ctx, db, limit) -> []domain.CleaningObject, error
//     Full inventory scan feeding the in-memory fuzzy matcher.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/cleanops/go-intake-backend/internal/domain"
)

// GetObject fetches a cleaning object by id with its Manager preloaded.
// Returns ErrNotFound when no such object exists.
func GetObject(ctx context.Context, db *gorm.DB, id string) (*domain.CleaningObject, error) {
	var o domain.CleaningObject
	err := db.WithContext(ctx).
		Preload("Manager").
		Where("id = ?", id).
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// SearchObjects returns up to limit objects whose name, address or
// description contains the query (case insensitive). An empty query yields
// an empty result rather than the full table.
func SearchObjects(ctx context.Context, db *gorm.DB, query string, limit int) ([]domain.CleaningObject, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return []domain.CleaningObject{}, nil
	}
	if limit <= 0 {
		limit = 5
	}
	pattern := "%" + strings.ToLower(q) + "%"

	var out []domain.CleaningObject
	err := db.WithContext(ctx).
		Where("LOWER(name) LIKE ? OR LOWER(address) LIKE ? OR LOWER(description) LIKE ?",
			pattern, pattern, pattern).
		Order("name asc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListObjects returns up to limit objects ordered by name. It feeds the
// fuzzy matcher used as a second chance when the substring search comes up
// empty; limit bounds memory on oversized inventories.
func ListObjects(ctx context.Context, db *gorm.DB, limit int) ([]domain.CleaningObject, error) {
	if limit <= 0 {
		limit = 500
	}
	var out []domain.CleaningObject
	err := db.WithContext(ctx).
		Order("name asc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
