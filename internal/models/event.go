package models

import (
	"time"

	"gorm.io/datatypes"
)

// Event notification types.
const (
	EventRepositoryCreated = "repository.created"
	EventCommitCreated     = "commit.created"
	EventStoragePurchased  = "storage.purchased"
	EventStorageUsed       = "storage.used"
)

// Event records a domain notification emitted by an entry operation. Rows are
// written in the same transaction as the mutation they describe and are never
// read back by core logic.
type Event struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	EventType string         `gorm:"type:text;not null;index"`         // Notification type.
	Payload   datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'"` // Notification payload.

	EmittedAt time.Time `gorm:"not null;autoCreateTime;index"` // Emission timestamp.
}
