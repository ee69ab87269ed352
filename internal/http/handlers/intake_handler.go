// Package handlers provides HTTP handler implementations for the public API.
//
// This file implements the intake surface:
//
//   - POST /webhooks/telegram     – bot webhook receiver (always 200 {ok:true})
//   - GET  /api/v1/objects        – organization search for the binding page
//   - POST /api/v1/bindings/email – bind a sender address to an object
//   - GET  /api/v1/objects/:id/tasks – recent tasks for an object
//
// The webhook handler never propagates processing failures to the response:
// Telegram retries deliveries on non-2xx, and every retryable condition in the
// pipeline is already covered by the intake receipt dedup, so a failed update
// is logged and acknowledged.
package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cleanops/go-intake-backend/internal/domain"
	"github.com/cleanops/go-intake-backend/internal/http/middleware"
	"github.com/cleanops/go-intake-backend/internal/repo"
	"github.com/cleanops/go-intake-backend/internal/telegram"
	"github.com/cleanops/go-intake-backend/internal/utils"
)

// Handler aggregates the dependencies of all HTTP endpoints.
type Handler struct {
	DB         *gorm.DB
	Dispatcher *telegram.Dispatcher
}

// New constructs a Handler.
func New(db *gorm.DB, d *telegram.Dispatcher) *Handler {
	return &Handler{DB: db, Dispatcher: d}
}

// webhookAck is the fixed acknowledgement body returned to Telegram.
var webhookAck = gin.H{"ok": true}

// TelegramWebhook receives one bot API update.
//
// The response is 200 {"ok":true} regardless of the processing outcome:
// malformed payloads and handler failures are logged, never surfaced, so
// Telegram does not redeliver them indefinitely.
func (h *Handler) TelegramWebhook(c *gin.Context) {
	var upd telegram.Update
	if err := c.ShouldBindJSON(&upd); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("webhook payload rejected")
		ok(c, http.StatusOK, webhookAck)
		return
	}
	if err := h.Dispatcher.Dispatch(c.Request.Context(), &upd); err != nil {
		middleware.LoggerFrom(c).Error().
			Err(err).
			Int64("update_id", upd.UpdateID).
			Msg("update processing failed")
	}
	ok(c, http.StatusOK, webhookAck)
}

// objectDTO is the public projection of a serviced object. Manager identity
// and internal metadata stay server-side.
type objectDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// ListObjects handles GET /objects?q=&limit=.
//
// An empty query yields an empty list rather than the full inventory.
func (h *Handler) ListObjects(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	limit := utils.AtoiDefault(c.Query("limit"), 5)
	if limit > 25 {
		limit = 25
	}

	objects, err := repo.SearchObjects(c.Request.Context(), h.DB, q, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "object search failed")
		return
	}

	items := make([]objectDTO, 0, len(objects))
	for _, o := range objects {
		items = append(items, objectDTO{ID: o.ID, Name: o.Name, Address: o.Address})
	}
	ok(c, http.StatusOK, gin.H{"items": items})
}

// emailBindingRequest is the body of POST /bindings/email.
type emailBindingRequest struct {
	Email    string `json:"email" binding:"required"`
	ObjectID string `json:"object_id" binding:"required"`
}

// CreateEmailBinding handles POST /bindings/email, the endpoint behind the
// object-selection link sent to unbound senders.
//
// Responses:
//   - 201 with the binding on success (idempotent: repeat calls update the row)
//   - 400 bad_request when the address does not parse
//   - 404 not_found when the object does not exist
//   - 409 conflict when the object has no manager to receive tasks
func (h *Handler) CreateEmailBinding(c *gin.Context) {
	var req emailBindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and object_id are required")
		return
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid email address")
		return
	}

	obj, err := repo.GetObject(c.Request.Context(), h.DB, req.ObjectID)
	if errors.Is(err, repo.ErrNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "object not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "object lookup failed")
		return
	}
	if obj.ManagerID == nil {
		fail(c, http.StatusConflict, ErrCodeConflict, "object has no manager assigned")
		return
	}

	email := strings.ToLower(addr.Address)
	binding, err := repo.UpsertBinding(c.Request.Context(), h.DB, &domain.ClientBinding{
		Email:    &email,
		ObjectID: obj.ID,
	})
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, "binding could not be saved")
		return
	}
	ok(c, http.StatusCreated, binding)
}

// ListObjectTasks handles GET /objects/:id/tasks?limit=, returning the most
// recently received tasks first.
func (h *Handler) ListObjectTasks(c *gin.Context) {
	id := c.Param("id")
	if _, err := repo.GetObject(c.Request.Context(), h.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "object not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "object lookup failed")
		return
	}

	limit := utils.AtoiDefault(c.Query("limit"), 20)
	if limit > 100 {
		limit = 100
	}
	tasks, err := repo.ListTasksByObject(c.Request.Context(), h.DB, id, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "task listing failed")
		return
	}
	ok(c, http.StatusOK, gin.H{"items": tasks})
}
