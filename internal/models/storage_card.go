package models

import "time"

// StorageCard represents an operator-minted card redeemable for credit units.
// A card redeems at most once.
type StorageCard struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name     string `gorm:"type:text;not null"`             // Card display name.
	CardSN   string `gorm:"type:text;not null;uniqueIndex"` // Unique card serial number.
	Password string `gorm:"type:text;not null"`             // Redemption password.
	Units    int64  `gorm:"not null"`                       // Credit units granted on redemption.

	ValidDays int        `gorm:"not null;default:0"` // Validity window in days.
	ExpiresAt *time.Time // Expiration time, if any.

	IsEnabled bool `gorm:"not null;default:true"` // Whether the card can be redeemed.

	RedeemedBy *string    `gorm:"type:text;index"` // Address that redeemed the card.
	RedeemedAt *time.Time // Redemption time, if redeemed.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
