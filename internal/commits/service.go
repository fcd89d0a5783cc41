package commits

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/access"
	"github.com/gitledger/gitledger/internal/config"
	"github.com/gitledger/gitledger/internal/db"
	"github.com/gitledger/gitledger/internal/events"
	"github.com/gitledger/gitledger/internal/ledger"
	"github.com/gitledger/gitledger/internal/models"
	"github.com/gitledger/gitledger/internal/security"
)

// Commit creation errors.
var (
	// ErrDanglingParent indicates the referenced parent commit does not
	// exist in the repository.
	ErrDanglingParent = errors.New("parent commit not found")
	// ErrEmptyMessage indicates a missing commit message.
	ErrEmptyMessage = errors.New("commit message required")
	// ErrEmptyPointer indicates a missing content pointer.
	ErrEmptyPointer = errors.New("content pointer required")
	// ErrInvalidSize indicates a negative or oversized payload size.
	ErrInvalidSize = errors.New("invalid payload size")
)

// Service appends commits to repository histories. Creation is all or
// nothing: the access check, parent validation, head advance, and storage
// debit share one transaction.
type Service struct {
	db                    *gorm.DB
	ledger                *ledger.Service
	autoDebit             bool
	allowCrossRepoParents bool
	publisher             *events.Publisher
	clock                 func() time.Time
}

// NewService constructs a commits Service. publisher may be nil.
func NewService(conn *gorm.DB, ledgerService *ledger.Service, behavior config.CommitConfig, publisher *events.Publisher) *Service {
	return &Service{
		db:                    conn,
		ledger:                ledgerService,
		autoDebit:             behavior.AutoDebit,
		allowCrossRepoParents: behavior.AllowCrossRepoParents,
		publisher:             publisher,
		clock:                 time.Now,
	}
}

// CreateParams carries the caller's commit request. The author is always
// the caller; it cannot be supplied from outside.
type CreateParams struct {
	RepoID         string
	Message        string
	ContentPointer string
	SizeBytes      int64
	ParentCommitID *string
	Caller         string
}

// CreateCommit appends a commit to the repository and advances its head.
// The caller needs write access. With auto-debit on, a non-zero payload
// size consumes that many bytes from the author's storage quota; if the
// quota cannot cover it, nothing is written.
func (s *Service) CreateCommit(ctx context.Context, params CreateParams) (*models.Commit, error) {
	caller := strings.TrimSpace(params.Caller)
	if caller == "" {
		return nil, access.ErrNotAuthorized
	}
	message := strings.TrimSpace(params.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	pointer := strings.TrimSpace(params.ContentPointer)
	if pointer == "" {
		return nil, ErrEmptyPointer
	}
	if params.SizeBytes < 0 || params.SizeBytes > ledger.MaxRequestBytes {
		return nil, ErrInvalidSize
	}

	commitID, errID := security.NewCommitID()
	if errID != nil {
		return nil, errID
	}

	var commit models.Commit
	var created events.CommitCreated
	var used events.StorageUsed
	var debited bool
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var repo models.Repository
		if errFind := db.LockForUpdate(tx).Where("repo_id = ?", strings.TrimSpace(params.RepoID)).First(&repo).Error; errFind != nil {
			return errFind
		}
		if errAuth := access.AssertCanWrite(tx, &repo, caller); errAuth != nil {
			return errAuth
		}

		parentID, errParent := s.resolveParent(tx, &repo, params.ParentCommitID)
		if errParent != nil {
			return errParent
		}

		commit = models.Commit{
			CommitID:       commitID,
			RepositoryID:   repo.ID,
			Message:        message,
			AuthorAddress:  caller,
			ContentPointer: pointer,
			SizeBytes:      params.SizeBytes,
			ParentCommitID: parentID,
			TimestampMS:    s.clock().UnixMilli(),
		}
		if errCreate := tx.Create(&commit).Error; errCreate != nil {
			return errCreate
		}

		if errHead := tx.Model(&models.Repository{}).Where("id = ?", repo.ID).
			Update("head_pointer", pointer).Error; errHead != nil {
			return errHead
		}

		if s.autoDebit && params.SizeBytes > 0 {
			var errDebit error
			used, errDebit = s.ledger.DebitForCommit(tx, caller, params.SizeBytes)
			if errDebit != nil {
				return errDebit
			}
			debited = true
		}

		created = events.CommitCreated{CommitID: commitID, RepoID: repo.RepoID, Author: caller, Message: message}
		return events.Record(tx, models.EventCommitCreated, created)
	})
	if errTx != nil {
		return nil, errTx
	}

	s.publisher.Publish(ctx, models.EventCommitCreated, created)
	if debited {
		s.publisher.Publish(ctx, models.EventStorageUsed, used)
	}
	return &commit, nil
}

// resolveParent validates an optional parent reference. The parent must
// exist and, unless cross-repository parents are enabled, belong to the
// same repository.
func (s *Service) resolveParent(tx *gorm.DB, repo *models.Repository, ref *string) (*string, error) {
	if ref == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*ref)
	if trimmed == "" {
		return nil, nil
	}

	var parent models.Commit
	if errFind := tx.Where("commit_id = ?", trimmed).First(&parent).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrDanglingParent
		}
		return nil, errFind
	}
	if parent.RepositoryID != repo.ID && !s.allowCrossRepoParents {
		return nil, ErrDanglingParent
	}
	return &trimmed, nil
}

// ByID returns a commit with its repository preloaded.
func (s *Service) ByID(ctx context.Context, commitID string) (*models.Commit, error) {
	var commit models.Commit
	if errFind := s.db.WithContext(ctx).Preload("Repository").
		Where("commit_id = ?", strings.TrimSpace(commitID)).First(&commit).Error; errFind != nil {
		return nil, errFind
	}
	return &commit, nil
}

// ListByRepo returns a repository's commits newest first, with the total
// count for paging.
func (s *Service) ListByRepo(ctx context.Context, repoID string, page, pageSize int) ([]models.Commit, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	var repo models.Repository
	if errFind := s.db.WithContext(ctx).Where("repo_id = ?", strings.TrimSpace(repoID)).First(&repo).Error; errFind != nil {
		return nil, 0, errFind
	}

	query := s.db.WithContext(ctx).Model(&models.Commit{}).Where("repository_id = ?", repo.ID)
	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		return nil, 0, errCount
	}

	var rows []models.Commit
	if errFind := query.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; errFind != nil {
		return nil, 0, errFind
	}
	return rows, total, nil
}

const maxAncestrySteps = 100

// Ancestry walks the parent chain starting at a commit, newest first. The
// walk stops at the root or after limit steps, capped at 100.
func (s *Service) Ancestry(ctx context.Context, commitID string, limit int) ([]models.Commit, error) {
	if limit < 1 || limit > maxAncestrySteps {
		limit = maxAncestrySteps
	}

	chain := make([]models.Commit, 0, limit)
	next := strings.TrimSpace(commitID)
	for len(chain) < limit && next != "" {
		var commit models.Commit
		if errFind := s.db.WithContext(ctx).Where("commit_id = ?", next).First(&commit).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) && len(chain) > 0 {
				break
			}
			return nil, errFind
		}
		chain = append(chain, commit)
		if commit.ParentCommitID == nil {
			break
		}
		next = *commit.ParentCommitID
	}
	return chain, nil
}
