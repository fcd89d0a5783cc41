package db

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/models"
)

// Migrate creates or updates the schema for every model.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("db: nil connection")
	}
	if err := conn.AutoMigrate(
		&models.Account{},
		&models.APIKey{},
		&models.Repository{},
		&models.Collaborator{},
		&models.Commit{},
		&models.StorageQuota{},
		&models.StorageCard{},
		&models.LedgerEntry{},
		&models.Event{},
		&models.Operator{},
		&models.Setting{},
	); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return nil
}

// EnsureTreasury creates the treasury account row when it does not exist.
// The treasury holds purchase proceeds; it is disabled so nobody signs in
// with it.
func EnsureTreasury(conn *gorm.DB, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return errors.New("db: empty treasury address")
	}
	treasury := models.Account{
		Address:  address,
		Username: "treasury",
		Password: "",
		Disabled: true,
	}
	if err := conn.Where("address = ?", address).FirstOrCreate(&treasury).Error; err != nil {
		return fmt.Errorf("db: ensure treasury: %w", err)
	}
	return nil
}
