// Package domain defines the persistence models for the cleaning-service
// intake pipeline: serviced objects, staff users, client bindings, the tasks
// materialized from inbound messages, and the audit trail. These types are
// mapped with GORM and form the core data layer of the application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Task sources.
const (
	SourceEmail    = "EMAIL"
	SourceTelegram = "TELEGRAM"
	SourceManual   = "MANUAL"
)

// Task statuses. Only StatusNew is written by the pipeline; the remaining
// transitions belong to out-of-scope management flows.
const (
	StatusNew        = "NEW"
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
)

// ActionCreateTask is the audit action tag recorded when an inbound message
// is materialized into a task.
const ActionCreateTask = "CREATE_ADDITIONAL_TASK"

// User represents a staff account (manager, admin). The pipeline only reads
// users as task assignees and writes the telegram_* fields during the /bind
// staff-binding flow.
type User struct {
	ID    string `json:"id"    gorm:"type:char(36);primaryKey"`
	Name  string `json:"name"  gorm:"type:varchar(255);not null"`
	Email string `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	Role  string `json:"role"  gorm:"type:varchar(32);not null;default:'MANAGER'"`

	// Telegram identity, attached via a one-time binding code. TelegramID is
	// unique so one Telegram account can drive at most one staff account.
	TelegramID        *string `json:"telegram_id,omitempty"        gorm:"type:varchar(32);uniqueIndex"`
	TelegramUsername  *string `json:"telegram_username,omitempty"  gorm:"type:varchar(64)"`
	TelegramFirstName *string `json:"telegram_first_name,omitempty" gorm:"type:varchar(128)"`
	TelegramLastName  *string `json:"telegram_last_name,omitempty"  gorm:"type:varchar(128)"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// CleaningObject represents a serviced site. The pipeline reads objects when
// resolving bindings and searches them by name/address/description during the
// Telegram binding flow; it never mutates them.
type CleaningObject struct {
	ID          string  `json:"id"          gorm:"type:char(36);primaryKey"`
	Name        string  `json:"name"        gorm:"type:varchar(255);not null;index"`
	Address     string  `json:"address"     gorm:"type:varchar(512)"`
	Description string  `json:"description" gorm:"type:text"`
	ManagerID   *string `json:"manager_id,omitempty" gorm:"type:char(36);index"`

	// Manager is the responsible staff user, nullable until assigned.
	Manager *User `json:"manager,omitempty" gorm:"foreignKey:ManagerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for CleaningObject.
func (CleaningObject) TableName() string { return "cleaning_objects" }

// ClientBinding associates one external contact with one serviced object.
// Exactly one of Email / TelegramID is set, depending on the channel. The
// composite unique indexes enforce at most one binding per (identity, object).
//
// A binding younger than the suppression window (see the telegram dispatcher)
// is treated as "unstable": the free-text message that created it must not be
// reinterpreted as a task.
type ClientBinding struct {
	ID string `json:"id" gorm:"type:char(36);primaryKey"`

	// Identity key: email for the mail channel, numeric Telegram id (as a
	// string) for the bot channel. Email is stored lower-cased.
	Email      *string `json:"email,omitempty"       gorm:"type:varchar(255);index;uniqueIndex:ux_binding_email_object"`
	TelegramID *string `json:"telegram_id,omitempty" gorm:"type:varchar(32);index;uniqueIndex:ux_binding_telegram_object"`

	ObjectID string         `json:"object_id" gorm:"type:char(36);not null;uniqueIndex:ux_binding_email_object;uniqueIndex:ux_binding_telegram_object"`
	Object   CleaningObject `json:"-" gorm:"foreignKey:ObjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	// Display metadata, refreshed on upsert but never part of the identity.
	DisplayName      *string `json:"display_name,omitempty"      gorm:"type:varchar(255)"`
	TelegramUsername *string `json:"telegram_username,omitempty" gorm:"type:varchar(64)"`
	FirstName        *string `json:"first_name,omitempty"        gorm:"type:varchar(128)"`
	LastName         *string `json:"last_name,omitempty"         gorm:"type:varchar(128)"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for ClientBinding.
func (ClientBinding) TableName() string { return "client_bindings" }

// Age reports how long ago the binding was created.
func (b *ClientBinding) Age(now time.Time) time.Duration {
	return now.Sub(b.CreatedAt)
}

// AdditionalTask is the unit of work created from an inbound client message.
// Created exactly once per normalized message with StatusNew; later status
// transitions happen in out-of-scope management flows.
type AdditionalTask struct {
	ID      string `json:"id"      gorm:"type:char(36);primaryKey"`
	Title   string `json:"title"   gorm:"type:varchar(255);not null"`
	Content string `json:"content" gorm:"type:text;not null"`

	// Source is the originating channel, SourceDetails its channel-specific
	// metadata (message id, provider, sender identity).
	Source        string  `json:"source"         gorm:"type:varchar(16);not null;check:source IN ('EMAIL','TELEGRAM','MANUAL')"`
	SourceDetails JSONMap `json:"source_details" gorm:"type:text"`

	Attachments StringList `json:"attachments" gorm:"type:text"`

	ObjectID string         `json:"object_id" gorm:"type:char(36);not null;index"`
	Object   CleaningObject `json:"-" gorm:"foreignKey:ObjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	AssignedToID string `json:"assigned_to_id" gorm:"type:char(36);not null;index"`
	AssignedTo   User   `json:"-" gorm:"foreignKey:AssignedToID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`

	Status     string    `json:"status"      gorm:"type:varchar(16);not null;default:'NEW'"`
	ReceivedAt time.Time `json:"received_at" gorm:"not null"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for AdditionalTask.
func (AdditionalTask) TableName() string { return "additional_tasks" }

// AuditLog is an immutable record of a pipeline action, written in the same
// transaction as the entity it references.
type AuditLog struct {
	ID         string  `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID     string  `json:"user_id"     gorm:"type:char(36);not null;index"`
	Action     string  `json:"action"      gorm:"type:varchar(64);not null"`
	EntityType string  `json:"entity_type" gorm:"type:varchar(64);not null"`
	EntityID   string  `json:"entity_id"   gorm:"type:char(36);not null;index"`
	Details    JSONMap `json:"details"     gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for AuditLog.
func (AuditLog) TableName() string { return "audit_logs" }

// TelegramBindingCode is a short-lived one-time code linking a staff Telegram
// account to a system user. Consumed (deleted) on successful use; expired
// codes are deleted when detected.
type TelegramBindingCode struct {
	Code   string `json:"code"    gorm:"type:varchar(16);primaryKey"`
	UserID string `json:"user_id" gorm:"type:char(36);not null;index"`
	User   User   `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for TelegramBindingCode.
func (TelegramBindingCode) TableName() string { return "telegram_binding_codes" }

// Expired reports whether the code is past its expiry.
func (c *TelegramBindingCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
