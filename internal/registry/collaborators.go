package registry

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/access"
	"github.com/gitledger/gitledger/internal/db"
	"github.com/gitledger/gitledger/internal/models"
)

// Collaborator grant errors.
var (
	// ErrInvalidLevel indicates an unknown permission level.
	ErrInvalidLevel = errors.New("invalid permission level")
	// ErrOwnerGrant indicates an attempt to grant a level to the owner.
	ErrOwnerGrant = errors.New("owner cannot hold a collaborator grant")
)

// UpsertCollaborator grants or updates a permission level for an account on
// a repository. The caller needs admin access. The owner never holds a
// grant; ownership already carries every permission.
func (s *Service) UpsertCollaborator(ctx context.Context, repoID, caller, address, level string) (*models.Collaborator, error) {
	caller = strings.TrimSpace(caller)
	address = strings.TrimSpace(address)
	level = strings.ToLower(strings.TrimSpace(level))
	if !access.ValidLevel(level) {
		return nil, ErrInvalidLevel
	}
	if address == "" {
		return nil, ErrUnknownAccount
	}

	var grant models.Collaborator
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var repo models.Repository
		if errFind := db.LockForUpdate(tx).Where("repo_id = ?", strings.TrimSpace(repoID)).First(&repo).Error; errFind != nil {
			return errFind
		}
		if errAuth := access.AssertCanAdminister(tx, &repo, caller); errAuth != nil {
			return errAuth
		}
		if address == repo.OwnerAddress {
			return ErrOwnerGrant
		}

		var target models.Account
		if errFind := tx.Where("address = ?", address).First(&target).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrUnknownAccount
			}
			return errFind
		}

		errFind := tx.Where("repository_id = ? AND address = ?", repo.ID, address).First(&grant).Error
		if errFind == nil {
			grant.Level = level
			grant.GrantedBy = caller
			return tx.Model(&models.Collaborator{}).Where("id = ?", grant.ID).Updates(map[string]any{
				"level":      level,
				"granted_by": caller,
			}).Error
		}
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			return errFind
		}
		grant = models.Collaborator{
			RepositoryID: repo.ID,
			Address:      address,
			Level:        level,
			GrantedBy:    caller,
		}
		return tx.Create(&grant).Error
	})
	if errTx != nil {
		return nil, errTx
	}
	return &grant, nil
}

// RemoveCollaborator drops an account's grant on a repository. Admins may
// remove anyone; a collaborator may remove their own grant.
func (s *Service) RemoveCollaborator(ctx context.Context, repoID, caller, address string) error {
	caller = strings.TrimSpace(caller)
	address = strings.TrimSpace(address)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var repo models.Repository
		if errFind := db.LockForUpdate(tx).Where("repo_id = ?", strings.TrimSpace(repoID)).First(&repo).Error; errFind != nil {
			return errFind
		}
		if caller != address {
			if errAuth := access.AssertCanAdminister(tx, &repo, caller); errAuth != nil {
				return errAuth
			}
		}

		result := tx.Where("repository_id = ? AND address = ?", repo.ID, address).Delete(&models.Collaborator{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ListCollaborators returns all grants on a repository.
func (s *Service) ListCollaborators(ctx context.Context, repoID string) ([]models.Collaborator, error) {
	var repo models.Repository
	if errFind := s.db.WithContext(ctx).Where("repo_id = ?", strings.TrimSpace(repoID)).First(&repo).Error; errFind != nil {
		return nil, errFind
	}
	var rows []models.Collaborator
	if errFind := s.db.WithContext(ctx).Where("repository_id = ?", repo.ID).
		Order("id ASC").Find(&rows).Error; errFind != nil {
		return nil, errFind
	}
	return rows, nil
}
