// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// AdditionalTask and AuditLog models.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cleanops/go-intake-backend/internal/domain"
)

// CreateTaskWithAudit inserts a task and its audit record in one transaction.
// The task ID is a randomly generated UUID and CreatedAt is set to UTC. The
// audit entry is attributed to the task's assignee and carries the task's
// source metadata so the trail survives task edits.
func CreateTaskWithAudit(ctx context.Context, db *gorm.DB, task *domain.AdditionalTask) (*domain.AdditionalTask, error) {
	now := time.Now().UTC()
	task.ID = uuid.NewString()
	task.CreatedAt = now
	if task.Status == "" {
		task.Status = domain.StatusNew
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(task).Error; err != nil {
			return err
		}
		audit := &domain.AuditLog{
			ID:         uuid.NewString(),
			UserID:     task.AssignedToID,
			Action:     domain.ActionCreateTask,
			EntityType: "AdditionalTask",
			EntityID:   task.ID,
			Details: domain.JSONMap{
				"source":         task.Source,
				"source_details": map[string]any(task.SourceDetails),
				"object_id":      task.ObjectID,
			},
			CreatedAt: now,
		}
		return tx.Create(audit).Error
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasksByObject returns tasks for an object, most recent first.
func ListTasksByObject(ctx context.Context, db *gorm.DB, objectID string, limit int) ([]domain.AdditionalTask, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.AdditionalTask
	err := db.WithContext(ctx).
		Where("object_id = ?", objectID).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
