package models

import "time"

// Ledger entry reason codes.
const (
	LedgerReasonCardRedeem      = "card_redeem"      // Card redemption credited an account.
	LedgerReasonStoragePurchase = "storage_purchase" // Storage purchase paid the treasury.
)

// LedgerMintAddress is the synthetic source address for credits minted by
// card redemption.
const LedgerMintAddress = "mint"

// LedgerEntry records a single credit transfer between accounts.
type LedgerEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	FromAddress string `gorm:"type:text;not null;index"` // Paying account address.
	ToAddress   string `gorm:"type:text;not null;index"` // Receiving account address.
	Amount      int64  `gorm:"not null"`                 // Transferred credit units, always positive.

	Reason  string  `gorm:"type:text;not null;index"` // Transfer reason code.
	QuotaID *string `gorm:"type:text"`                // Related quota identifier, if any.
	CardSN  *string `gorm:"type:text"`                // Related card serial, if any.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
