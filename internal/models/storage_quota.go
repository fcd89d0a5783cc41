package models

import "time"

// StorageQuota tracks purchased and consumed storage capacity for one owner.
// BytesAvailable and BytesUsed never go negative; consumption moves bytes from
// one counter to the other so their sum equals everything ever purchased.
type StorageQuota struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	QuotaID string `gorm:"type:text;not null;uniqueIndex"` // Public quota identifier.

	OwnerAddress string `gorm:"type:text;not null;uniqueIndex"` // Owning account address, one quota per owner.

	BytesAvailable int64 `gorm:"not null;default:0"` // Purchased capacity not yet consumed.
	BytesUsed      int64 `gorm:"not null;default:0"` // Capacity consumed so far.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
