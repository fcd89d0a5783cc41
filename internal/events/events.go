package events

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/models"
)

// RepositoryCreated is emitted when a repository is created.
type RepositoryCreated struct {
	RepoID string `json:"repo_id"`
	Owner  string `json:"owner"`
	Name   string `json:"name"`
}

// CommitCreated is emitted when a commit is appended to a repository.
type CommitCreated struct {
	CommitID string `json:"commit_id"`
	RepoID   string `json:"repo_id"`
	Author   string `json:"author"`
	Message  string `json:"message"`
}

// StoragePurchased is emitted when a quota purchase settles.
type StoragePurchased struct {
	Buyer      string `json:"buyer"`
	AmountPaid int64  `json:"amount_paid"`
	BytesAdded int64  `json:"bytes_added"`
}

// StorageUsed is emitted when storage capacity is consumed.
type StorageUsed struct {
	User           string `json:"user"`
	BytesUsed      int64  `json:"bytes_used"`
	BytesRemaining int64  `json:"bytes_remaining"`
}

// Record writes an event row inside the caller's transaction, so the event
// persists exactly when the mutation it describes does.
func Record(tx *gorm.DB, eventType string, payload any) error {
	data, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return fmt.Errorf("events: marshal %s: %w", eventType, errMarshal)
	}
	row := models.Event{
		EventType: eventType,
		Payload:   data,
	}
	if errCreate := tx.Create(&row).Error; errCreate != nil {
		return fmt.Errorf("events: record %s: %w", eventType, errCreate)
	}
	return nil
}
