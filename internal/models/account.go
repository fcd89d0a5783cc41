package models

import "time"

// Account represents a platform account addressed by an opaque identity string.
type Account struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Address  string `gorm:"type:text;not null;uniqueIndex"` // Immutable account address.
	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Email    string `gorm:"type:text"`                      // Contact email, optional.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	CreditBalance int64 `gorm:"not null;default:0"` // Spendable credit units, never negative.

	Disabled bool `gorm:"not null;default:false"` // Blocks sign-in and API keys when true.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
