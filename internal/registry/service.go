package registry

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/access"
	"github.com/gitledger/gitledger/internal/db"
	"github.com/gitledger/gitledger/internal/events"
	"github.com/gitledger/gitledger/internal/models"
	"github.com/gitledger/gitledger/internal/security"
)

// Repository registry errors.
var (
	// ErrInvalidName indicates a repository name outside the allowed form.
	ErrInvalidName = errors.New("invalid repository name")
	// ErrUnknownAccount indicates the referenced address has no account.
	ErrUnknownAccount = errors.New("account not registered")
)

const maxNameLength = 190

var repoNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidRepositoryName reports whether name may be used for a repository.
// Names start with a letter or digit and contain only letters, digits,
// dots, hyphens, and underscores.
func ValidRepositoryName(name string) bool {
	return name != "" && len(name) <= maxNameLength && repoNamePattern.MatchString(name)
}

// Service manages repositories and their collaborator grants.
type Service struct {
	db        *gorm.DB
	publisher *events.Publisher
}

// NewService constructs a registry Service. publisher may be nil.
func NewService(conn *gorm.DB, publisher *events.Publisher) *Service {
	return &Service{db: conn, publisher: publisher}
}

// CreateParams carries the inputs for CreateRepository.
type CreateParams struct {
	Caller                string
	Name                  string
	Description           string
	InitialContentPointer string
	DefaultBranch         string
}

// CreateRepository registers a new repository owned by the caller. Any
// registered account may create repositories; names need not be unique.
// An initial content pointer, when supplied, becomes the repository head;
// the default branch falls back to "main" when blank.
func (s *Service) CreateRepository(ctx context.Context, params CreateParams) (*models.Repository, error) {
	caller := strings.TrimSpace(params.Caller)
	if caller == "" {
		return nil, access.ErrNotAuthorized
	}
	name := strings.TrimSpace(params.Name)
	if !ValidRepositoryName(name) {
		return nil, ErrInvalidName
	}
	branch := strings.TrimSpace(params.DefaultBranch)
	if branch == "" {
		branch = "main"
	}

	repoID, errID := security.NewRepoID()
	if errID != nil {
		return nil, errID
	}
	repo := models.Repository{
		RepoID:        repoID,
		Name:          name,
		Description:   strings.TrimSpace(params.Description),
		OwnerAddress:  caller,
		HeadPointer:   strings.TrimSpace(params.InitialContentPointer),
		DefaultBranch: branch,
	}

	created := events.RepositoryCreated{RepoID: repoID, Owner: caller, Name: name}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&repo).Error; errCreate != nil {
			return errCreate
		}
		return events.Record(tx, models.EventRepositoryCreated, created)
	})
	if errTx != nil {
		return nil, errTx
	}

	s.publisher.Publish(ctx, models.EventRepositoryCreated, created)
	return &repo, nil
}

// UpdateRepository changes the repository description. The caller needs
// write access; nothing else about the repository is editable this way.
func (s *Service) UpdateRepository(ctx context.Context, repoID, caller, description string) (*models.Repository, error) {
	caller = strings.TrimSpace(caller)
	description = strings.TrimSpace(description)

	var repo models.Repository
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := db.LockForUpdate(tx).Where("repo_id = ?", strings.TrimSpace(repoID)).First(&repo).Error; errFind != nil {
			return errFind
		}
		if errAuth := access.AssertCanWrite(tx, &repo, caller); errAuth != nil {
			return errAuth
		}
		repo.Description = description
		return tx.Model(&models.Repository{}).Where("id = ?", repo.ID).
			Update("description", description).Error
	})
	if errTx != nil {
		return nil, errTx
	}
	return &repo, nil
}

// TransferOwnership moves a repository to another registered account. Only
// the current owner may transfer; an admin grant is not enough. Any grant
// the new owner held on the repository is dropped since ownership
// supersedes it.
func (s *Service) TransferOwnership(ctx context.Context, repoID, caller, newOwner string) (*models.Repository, error) {
	caller = strings.TrimSpace(caller)
	newOwner = strings.TrimSpace(newOwner)
	if newOwner == "" {
		return nil, ErrUnknownAccount
	}

	var repo models.Repository
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errFind := db.LockForUpdate(tx).Where("repo_id = ?", strings.TrimSpace(repoID)).First(&repo).Error; errFind != nil {
			return errFind
		}
		if caller == "" || repo.OwnerAddress != caller {
			return access.ErrNotAuthorized
		}

		var target models.Account
		if errFind := tx.Where("address = ?", newOwner).First(&target).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrUnknownAccount
			}
			return errFind
		}

		if errDrop := tx.Where("repository_id = ? AND address = ?", repo.ID, newOwner).
			Delete(&models.Collaborator{}).Error; errDrop != nil {
			return errDrop
		}

		repo.OwnerAddress = newOwner
		return tx.Model(&models.Repository{}).Where("id = ?", repo.ID).
			Update("owner_address", newOwner).Error
	})
	if errTx != nil {
		return nil, errTx
	}
	return &repo, nil
}

// Get returns a repository by public identifier.
func (s *Service) Get(ctx context.Context, repoID string) (*models.Repository, error) {
	var repo models.Repository
	if errFind := s.db.WithContext(ctx).Where("repo_id = ?", strings.TrimSpace(repoID)).First(&repo).Error; errFind != nil {
		return nil, errFind
	}
	return &repo, nil
}

// ListByAddress returns repositories the address owns or collaborates on,
// newest first, with the total count for paging.
func (s *Service) ListByAddress(ctx context.Context, address string, page, pageSize int) ([]models.Repository, int64, error) {
	address = strings.TrimSpace(address)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	grantSubquery := s.db.Model(&models.Collaborator{}).
		Select("repository_id").
		Where("address = ?", address)
	query := s.db.WithContext(ctx).Model(&models.Repository{}).
		Where("owner_address = ? OR id IN (?)", address, grantSubquery)

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		return nil, 0, errCount
	}

	var rows []models.Repository
	if errFind := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; errFind != nil {
		return nil, 0, errFind
	}
	return rows, total, nil
}
