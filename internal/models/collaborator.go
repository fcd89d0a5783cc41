package models

import "time"

// Collaborator grants an account a permission level on a repository.
type Collaborator struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	RepositoryID uint64      `gorm:"not null;uniqueIndex:idx_collaborator_repo_address"` // Related repository ID.
	Repository   *Repository `gorm:"foreignKey:RepositoryID"`                            // Repository record.

	Address string `gorm:"type:text;not null;uniqueIndex:idx_collaborator_repo_address;index"` // Collaborator account address.
	Level   string `gorm:"type:text;not null"`                                                 // Permission level: read, write, or admin.

	GrantedBy string `gorm:"type:text;not null"` // Address that granted the level.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
