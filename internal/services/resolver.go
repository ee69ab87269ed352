// Package services – Resolver
//
// This file implements the identity resolver: it maps a normalized message's
// sender identity (email address or Telegram chat id) onto a persisted client
// binding, including the serviced object and its responsible manager.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/cleanops/go-intake-backend/internal/domain"
	"github.com/cleanops/go-intake-backend/internal/normalize"
	"github.com/cleanops/go-intake-backend/internal/repo"
)

// Resolver maps sender identities to client bindings.
type Resolver struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewResolver constructs a Resolver.
func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{DB: db}
}

// Resolve finds the binding for msg's sender. It returns ErrNotBound when no
// binding exists and ErrNoManager when the bound object has no assigned
// manager. On success the binding carries the preloaded object and manager.
func (r *Resolver) Resolve(ctx context.Context, msg *normalize.Message) (*domain.ClientBinding, error) {
	tr := otel.Tracer("services/Resolver")
	ctx, span := tr.Start(ctx, "Resolve",
		trace.WithAttributes(
			attribute.String("message.channel", msg.Channel),
			attribute.String("message.provider", msg.Provider),
		),
	)
	defer span.End()

	var (
		binding *domain.ClientBinding
		err     error
	)
	switch msg.Channel {
	case domain.SourceEmail:
		binding, err = repo.FindBindingByEmail(ctx, r.DB, strings.ToLower(msg.SenderID))
	case domain.SourceTelegram:
		binding, err = repo.FindBindingByTelegramID(ctx, r.DB, msg.SenderID)
	default:
		return nil, ErrNotBound
	}
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotBound
	}
	if err != nil {
		return nil, err
	}

	if binding.Object.ManagerID == nil || binding.Object.Manager == nil {
		return binding, ErrNoManager
	}
	return binding, nil
}
