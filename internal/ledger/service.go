package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/access"
	"github.com/gitledger/gitledger/internal/config"
	"github.com/gitledger/gitledger/internal/db"
	"github.com/gitledger/gitledger/internal/events"
	"github.com/gitledger/gitledger/internal/models"
	"github.com/gitledger/gitledger/internal/security"
)

// Storage accounting errors.
var (
	// ErrInsufficientFunds indicates the payer cannot cover a purchase.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInsufficientStorage indicates a consume exceeds available bytes.
	ErrInsufficientStorage = errors.New("insufficient storage")
	// ErrQuotaExists indicates the owner already holds a quota.
	ErrQuotaExists = errors.New("storage quota already exists")
	// ErrInvalidBytes indicates a non-positive or oversized byte amount.
	ErrInvalidBytes = errors.New("bytes must be positive")
	// ErrSelfTransfer indicates payer and payee are the same account.
	ErrSelfTransfer = errors.New("payer and payee are the same account")
)

// Service executes storage accounting operations. Every mutation runs in a
// single transaction with the affected rows locked, so balance and counter
// checks hold until the writes land.
type Service struct {
	db                    *gorm.DB
	pricing               config.PricingConfig
	allowDelegatedConsume bool
	publisher             *events.Publisher
	clock                 func() time.Time
}

// NewService constructs a ledger Service. publisher may be nil.
func NewService(conn *gorm.DB, pricing config.PricingConfig, behavior config.LedgerConfig, publisher *events.Publisher) *Service {
	return &Service{
		db:                    conn,
		pricing:               pricing,
		allowDelegatedConsume: behavior.AllowDelegatedConsume,
		publisher:             publisher,
		clock:                 time.Now,
	}
}

// CreateQuota creates the caller's storage quota with zeroed counters. Each
// owner holds at most one quota.
func (s *Service) CreateQuota(ctx context.Context, caller string) (*models.StorageQuota, error) {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return nil, access.ErrNotAuthorized
	}

	quotaID, errID := security.NewQuotaID()
	if errID != nil {
		return nil, errID
	}
	quota := models.StorageQuota{QuotaID: quotaID, OwnerAddress: caller}

	// The unique index on owner_address decides concurrent creates; a
	// losing insert means the owner already holds a quota.
	if errCreate := s.db.WithContext(ctx).Create(&quota).Error; errCreate != nil {
		var existing models.StorageQuota
		if errFind := s.db.WithContext(ctx).Where("owner_address = ?", caller).First(&existing).Error; errFind == nil {
			return nil, ErrQuotaExists
		}
		return nil, errCreate
	}
	return &quota, nil
}

// PurchaseStorage charges the caller for bytes of capacity and adds them to
// the quota. The caller must own the quota and hold enough credits; the
// exact cost moves to the treasury and nothing else changes on failure.
func (s *Service) PurchaseStorage(ctx context.Context, quotaID string, bytes int64, caller string) (*models.StorageQuota, error) {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return nil, access.ErrNotAuthorized
	}
	if bytes <= 0 || bytes > MaxRequestBytes {
		return nil, ErrInvalidBytes
	}

	var quota models.StorageQuota
	var purchased events.StoragePurchased
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := db.LockForUpdate(tx).Where("quota_id = ?", strings.TrimSpace(quotaID)).First(&quota).Error; errFind != nil {
			return errFind
		}
		if quota.OwnerAddress != caller {
			return access.ErrNotAuthorized
		}

		cost := StorageCost(bytes, s.pricing.BytesPerUnit, s.pricing.PricePerUnit)
		if cost > 0 {
			if errPay := s.transferCredits(tx, caller, s.pricing.TreasuryAddress, cost, models.LedgerReasonStoragePurchase, &quota.QuotaID, nil); errPay != nil {
				return errPay
			}
		}

		quota.BytesAvailable += bytes
		if errUpdate := tx.Model(&models.StorageQuota{}).Where("id = ?", quota.ID).
			Update("bytes_available", quota.BytesAvailable).Error; errUpdate != nil {
			return errUpdate
		}

		purchased = events.StoragePurchased{Buyer: caller, AmountPaid: cost, BytesAdded: bytes}
		return events.Record(tx, models.EventStoragePurchased, purchased)
	})
	if errTx != nil {
		return nil, errTx
	}

	s.publisher.Publish(ctx, models.EventStoragePurchased, purchased)
	return &quota, nil
}

// ConsumeStorage moves bytes from available to used on the quota. The quota
// owner may always consume; other callers are rejected unless delegated
// consumption is enabled.
func (s *Service) ConsumeStorage(ctx context.Context, quotaID string, bytes int64, caller string) (*models.StorageQuota, error) {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return nil, access.ErrNotAuthorized
	}
	if bytes <= 0 || bytes > MaxRequestBytes {
		return nil, ErrInvalidBytes
	}

	var quota models.StorageQuota
	var used events.StorageUsed
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := db.LockForUpdate(tx).Where("quota_id = ?", strings.TrimSpace(quotaID)).First(&quota).Error; errFind != nil {
			return errFind
		}
		if quota.OwnerAddress != caller && !s.allowDelegatedConsume {
			return access.ErrNotAuthorized
		}
		var errConsume error
		used, errConsume = consumeQuota(tx, &quota, bytes)
		return errConsume
	})
	if errTx != nil {
		return nil, errTx
	}

	s.publisher.Publish(ctx, models.EventStorageUsed, used)
	return &quota, nil
}

// DebitForCommit consumes bytes from the author's quota inside the caller's
// transaction, for commit creation with auto-debit on. A missing quota reads
// as zero capacity. The returned payload is already recorded; the caller
// publishes it after its transaction commits.
func (s *Service) DebitForCommit(tx *gorm.DB, author string, bytes int64) (events.StorageUsed, error) {
	if bytes <= 0 {
		return events.StorageUsed{}, ErrInvalidBytes
	}
	var quota models.StorageQuota
	if errFind := db.LockForUpdate(tx).Where("owner_address = ?", author).First(&quota).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return events.StorageUsed{}, fmt.Errorf("no storage quota for %s: %w", author, ErrInsufficientStorage)
		}
		return events.StorageUsed{}, errFind
	}
	return consumeQuota(tx, &quota, bytes)
}

// consumeQuota performs the guarded counter move and records the event.
// Callers hold the quota row lock.
func consumeQuota(tx *gorm.DB, quota *models.StorageQuota, bytes int64) (events.StorageUsed, error) {
	if quota.BytesAvailable < bytes {
		return events.StorageUsed{}, ErrInsufficientStorage
	}
	quota.BytesAvailable -= bytes
	quota.BytesUsed += bytes
	if errUpdate := tx.Model(&models.StorageQuota{}).Where("id = ?", quota.ID).Updates(map[string]any{
		"bytes_available": quota.BytesAvailable,
		"bytes_used":      quota.BytesUsed,
	}).Error; errUpdate != nil {
		return events.StorageUsed{}, errUpdate
	}

	used := events.StorageUsed{
		User:           quota.OwnerAddress,
		BytesUsed:      bytes,
		BytesRemaining: quota.BytesAvailable,
	}
	return used, events.Record(tx, models.EventStorageUsed, used)
}

// transferCredits moves amount between accounts under row locks and records
// the ledger entry. The payer is locked before the payee so concurrent
// transfers settle in a consistent order.
func (s *Service) transferCredits(tx *gorm.DB, from, to string, amount int64, reason string, quotaID, cardSN *string) error {
	// A single account can never be both payer and payee; the two balance
	// writes would otherwise net the account +amount.
	if from == to {
		return ErrSelfTransfer
	}
	var payer models.Account
	if errFind := db.LockForUpdate(tx).Where("address = ?", from).First(&payer).Error; errFind != nil {
		return fmt.Errorf("load payer account: %w", errFind)
	}
	if payer.CreditBalance < amount {
		return ErrInsufficientFunds
	}

	var payee models.Account
	if errFind := db.LockForUpdate(tx).Where("address = ?", to).First(&payee).Error; errFind != nil {
		return fmt.Errorf("load payee account: %w", errFind)
	}

	if errDebit := tx.Model(&models.Account{}).Where("id = ?", payer.ID).
		Update("credit_balance", payer.CreditBalance-amount).Error; errDebit != nil {
		return errDebit
	}
	if errCredit := tx.Model(&models.Account{}).Where("id = ?", payee.ID).
		Update("credit_balance", payee.CreditBalance+amount).Error; errCredit != nil {
		return errCredit
	}

	entry := models.LedgerEntry{
		FromAddress: from,
		ToAddress:   to,
		Amount:      amount,
		Reason:      reason,
		QuotaID:     quotaID,
		CardSN:      cardSN,
	}
	return tx.Create(&entry).Error
}

// QuotaByOwner returns the owner's quota.
func (s *Service) QuotaByOwner(ctx context.Context, owner string) (*models.StorageQuota, error) {
	var quota models.StorageQuota
	if errFind := s.db.WithContext(ctx).Where("owner_address = ?", strings.TrimSpace(owner)).First(&quota).Error; errFind != nil {
		return nil, errFind
	}
	return &quota, nil
}

// QuotaByID returns a quota by public identifier.
func (s *Service) QuotaByID(ctx context.Context, quotaID string) (*models.StorageQuota, error) {
	var quota models.StorageQuota
	if errFind := s.db.WithContext(ctx).Where("quota_id = ?", strings.TrimSpace(quotaID)).First(&quota).Error; errFind != nil {
		return nil, errFind
	}
	return &quota, nil
}

// Balance returns the account's spendable credit units.
func (s *Service) Balance(ctx context.Context, address string) (int64, error) {
	var account models.Account
	if errFind := s.db.WithContext(ctx).Where("address = ?", strings.TrimSpace(address)).First(&account).Error; errFind != nil {
		return 0, errFind
	}
	return account.CreditBalance, nil
}

// Entries returns the account's ledger entries newest first, with the total
// count for paging.
func (s *Service) Entries(ctx context.Context, address string, page, pageSize int) ([]models.LedgerEntry, int64, error) {
	address = strings.TrimSpace(address)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("from_address = ? OR to_address = ?", address, address)

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		return nil, 0, errCount
	}

	var rows []models.LedgerEntry
	if errFind := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; errFind != nil {
		return nil, 0, errFind
	}
	return rows, total, nil
}
