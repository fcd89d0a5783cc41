package models

import "time"

// Commit represents one immutable entry in a repository's history. Rows are
// append-only; nothing updates a commit after creation.
type Commit struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CommitID string `gorm:"type:text;not null;uniqueIndex"` // Public commit identifier.

	RepositoryID uint64      `gorm:"not null;index"`          // Related repository ID.
	Repository   *Repository `gorm:"foreignKey:RepositoryID"` // Repository record.

	Message        string `gorm:"type:text;not null"`       // Commit message.
	AuthorAddress  string `gorm:"type:text;not null;index"` // Authoring account address.
	ContentPointer string `gorm:"type:text;not null"`       // Opaque content-store pointer.
	SizeBytes      int64  `gorm:"not null;default:0"`       // Declared payload size in bytes.

	ParentCommitID *string `gorm:"type:text;index"` // Parent commit identifier, if any.

	TimestampMS int64 `gorm:"not null"` // Caller-context timestamp in milliseconds.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
