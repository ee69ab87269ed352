// Package domain defines the core persistence models for the application.
package domain

import "time"

// IntakeReceipt records that a physical inbound message has already been
// materialized into a task, keyed by "<provider>:<message-id>". It closes the
// redelivery gap left by the IMAP \Seen flag and Telegram's own delivery
// guarantees: claiming an existing key makes a second materialization of the
// same message a no-op instead of a duplicate task.
type IntakeReceipt struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_receipt_key"`
	Channel   string    `gorm:"type:TEXT NOT NULL"`
	TaskID    string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (IntakeReceipt) TableName() string { return "intake_receipts" }
