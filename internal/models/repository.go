package models

import "time"

// Repository represents a version-controlled repository and its current head.
type Repository struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	RepoID string `gorm:"type:text;not null;uniqueIndex"` // Public repository identifier.

	Name        string `gorm:"type:text;not null"` // Human-readable name.
	Description string `gorm:"type:text"`          // Free-form description.

	OwnerAddress string `gorm:"type:text;not null;index"` // Owning account address.

	HeadPointer   string `gorm:"type:text"`                       // Content pointer of the latest commit.
	DefaultBranch string `gorm:"type:text;not null;default:'main'"` // Default branch name.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
