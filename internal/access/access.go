package access

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/models"
)

// ErrNotAuthorized indicates the caller lacks permission for an operation.
var ErrNotAuthorized = errors.New("not authorized")

// Collaborator permission levels.
const (
	LevelRead  = "read"
	LevelWrite = "write"
	LevelAdmin = "admin"
)

// ValidLevel reports whether level is a known permission level.
func ValidLevel(level string) bool {
	switch level {
	case LevelRead, LevelWrite, LevelAdmin:
		return true
	}
	return false
}

// LevelAllowsWrite reports whether a grant level permits mutation.
func LevelAllowsWrite(level string) bool {
	return level == LevelWrite || level == LevelAdmin
}

// CanWrite reports whether caller may mutate the repository. grant is the
// caller's collaborator row, nil when none exists.
func CanWrite(repo *models.Repository, grant *models.Collaborator, caller string) bool {
	if repo == nil || strings.TrimSpace(caller) == "" {
		return false
	}
	if repo.OwnerAddress == caller {
		return true
	}
	return grant != nil && LevelAllowsWrite(grant.Level)
}

// CanAdminister reports whether caller may manage collaborator grants on the
// repository. Ownership or an admin-level grant qualifies.
func CanAdminister(repo *models.Repository, grant *models.Collaborator, caller string) bool {
	if repo == nil || strings.TrimSpace(caller) == "" {
		return false
	}
	if repo.OwnerAddress == caller {
		return true
	}
	return grant != nil && grant.Level == LevelAdmin
}

// Grant loads the caller's collaborator row for a repository. Returns nil
// without error when no grant exists.
func Grant(tx *gorm.DB, repositoryID uint64, caller string) (*models.Collaborator, error) {
	var row models.Collaborator
	err := tx.Where("repository_id = ? AND address = ?", repositoryID, caller).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// AssertCanWrite returns ErrNotAuthorized unless the caller owns the
// repository or holds a write-level grant. Entry operations call this before
// mutating anything.
func AssertCanWrite(tx *gorm.DB, repo *models.Repository, caller string) error {
	if repo == nil || strings.TrimSpace(caller) == "" {
		return ErrNotAuthorized
	}
	if repo.OwnerAddress == caller {
		return nil
	}
	grant, err := Grant(tx, repo.ID, caller)
	if err != nil {
		return err
	}
	if CanWrite(repo, grant, caller) {
		return nil
	}
	return ErrNotAuthorized
}

// AssertCanAdminister returns ErrNotAuthorized unless the caller owns the
// repository or holds an admin-level grant.
func AssertCanAdminister(tx *gorm.DB, repo *models.Repository, caller string) error {
	if repo == nil || strings.TrimSpace(caller) == "" {
		return ErrNotAuthorized
	}
	if repo.OwnerAddress == caller {
		return nil
	}
	grant, err := Grant(tx, repo.ID, caller)
	if err != nil {
		return err
	}
	if CanAdminister(repo, grant, caller) {
		return nil
	}
	return ErrNotAuthorized
}
