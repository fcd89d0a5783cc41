package ledger

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/access"
	"github.com/gitledger/gitledger/internal/db"
	"github.com/gitledger/gitledger/internal/models"
)

// Storage card redemption errors.
var (
	// ErrCardNotFound indicates no card matches the serial number.
	ErrCardNotFound = errors.New("card not found")
	// ErrCardPassword indicates the redemption password does not match.
	ErrCardPassword = errors.New("card password mismatch")
	// ErrCardDisabled indicates the card has been disabled by an operator.
	ErrCardDisabled = errors.New("card disabled")
	// ErrCardRedeemed indicates the card was already redeemed.
	ErrCardRedeemed = errors.New("card already redeemed")
	// ErrCardExpired indicates the card passed its expiry before redemption.
	ErrCardExpired = errors.New("card expired")
)

// RedeemCard credits the card's units to the caller and marks the card
// redeemed. A card redeems exactly once; the credit is minted rather than
// moved from another account.
func (s *Service) RedeemCard(ctx context.Context, cardSN, password, caller string) (*models.Account, error) {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return nil, access.ErrNotAuthorized
	}
	cardSN = strings.ToUpper(strings.TrimSpace(cardSN))

	var account models.Account
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var card models.StorageCard
		if errFind := db.LockForUpdate(tx).Where("card_sn = ?", cardSN).First(&card).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrCardNotFound
			}
			return errFind
		}
		if card.Password != strings.TrimSpace(password) {
			return ErrCardPassword
		}
		if !card.IsEnabled {
			return ErrCardDisabled
		}
		if card.RedeemedBy != nil {
			return ErrCardRedeemed
		}
		now := s.clock()
		if card.ExpiresAt != nil && card.ExpiresAt.Before(now) {
			return ErrCardExpired
		}

		if errFind := db.LockForUpdate(tx).Where("address = ?", caller).First(&account).Error; errFind != nil {
			return errFind
		}
		account.CreditBalance += card.Units
		if errCredit := tx.Model(&models.Account{}).Where("id = ?", account.ID).
			Update("credit_balance", account.CreditBalance).Error; errCredit != nil {
			return errCredit
		}

		if errMark := tx.Model(&models.StorageCard{}).Where("id = ?", card.ID).Updates(map[string]any{
			"redeemed_by": caller,
			"redeemed_at": now,
		}).Error; errMark != nil {
			return errMark
		}

		entry := models.LedgerEntry{
			FromAddress: models.LedgerMintAddress,
			ToAddress:   caller,
			Amount:      card.Units,
			Reason:      models.LedgerReasonCardRedeem,
			CardSN:      &card.CardSN,
		}
		return tx.Create(&entry).Error
	})
	if errTx != nil {
		return nil, errTx
	}
	return &account, nil
}
