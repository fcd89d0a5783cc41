package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/access"
	"github.com/gitledger/gitledger/internal/commits"
	"github.com/gitledger/gitledger/internal/ledger"
	"github.com/gitledger/gitledger/internal/models"
)

// CommitHandler handles commit endpoints for account holders.
type CommitHandler struct {
	commits *commits.Service
}

// NewCommitHandler constructs a CommitHandler.
func NewCommitHandler(commitsSvc *commits.Service) *CommitHandler {
	return &CommitHandler{commits: commitsSvc}
}

// serializeCommit converts a model to an API response payload. repoID may be
// empty when the repository is not resolved for the row.
func serializeCommit(row *models.Commit, repoID string) gin.H {
	out := gin.H{
		"commit_id":        row.CommitID,
		"message":          row.Message,
		"author":           row.AuthorAddress,
		"content_pointer":  row.ContentPointer,
		"size_bytes":       row.SizeBytes,
		"parent_commit_id": row.ParentCommitID,
		"timestamp_ms":     row.TimestampMS,
		"created_at":       row.CreatedAt,
	}
	if repoID != "" {
		out["repo_id"] = repoID
	}
	return out
}

// createCommitRequest defines the request body for creating commits.
type createCommitRequest struct {
	Message        string  `json:"message"`
	ContentPointer string  `json:"content_pointer"`
	SizeBytes      int64   `json:"size_bytes"`
	ParentCommitID *string `json:"parent_commit_id"`
}

// Create appends a commit to the repository. The caller needs write access
// and becomes the commit author.
func (h *CommitHandler) Create(c *gin.Context) {
	address := getAccountAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	repoID := strings.TrimSpace(c.Param("repo_id"))

	var body createCommitRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	commit, errCreate := h.commits.CreateCommit(c.Request.Context(), commits.CreateParams{
		RepoID:         repoID,
		Message:        body.Message,
		ContentPointer: body.ContentPointer,
		SizeBytes:      body.SizeBytes,
		ParentCommitID: body.ParentCommitID,
		Caller:         address,
	})
	if errCreate != nil {
		switch {
		case errors.Is(errCreate, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
		case errors.Is(errCreate, access.ErrNotAuthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
		case errors.Is(errCreate, commits.ErrDanglingParent):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "parent commit not found"})
		case errors.Is(errCreate, ledger.ErrInsufficientStorage):
			c.JSON(http.StatusConflict, gin.H{"error": "insufficient storage"})
		case errors.Is(errCreate, commits.ErrEmptyMessage),
			errors.Is(errCreate, commits.ErrEmptyPointer),
			errors.Is(errCreate, commits.ErrInvalidSize):
			c.JSON(http.StatusBadRequest, gin.H{"error": errCreate.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create commit failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, serializeCommit(commit, repoID))
}

// listCommitsQuery defines query parameters for listing commits.
type listCommitsQuery struct {
	Page  int `form:"page,default=1"`
	Limit int `form:"limit,default=20"`
}

// List returns a repository's commits, newest first.
func (h *CommitHandler) List(c *gin.Context) {
	repoID := strings.TrimSpace(c.Param("repo_id"))
	if repoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing repo_id"})
		return
	}

	var q listCommitsQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}

	rows, total, errList := h.commits.ListByRepo(c.Request.Context(), repoID, q.Page, q.Limit)
	if errList != nil {
		if errors.Is(errList, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list commits failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, serializeCommit(&rows[i], repoID))
	}
	c.JSON(http.StatusOK, gin.H{
		"commits": out,
		"total":   total,
		"page":    q.Page,
		"limit":   q.Limit,
	})
}

// Get returns a single commit by its public identifier.
func (h *CommitHandler) Get(c *gin.Context) {
	commitID := strings.TrimSpace(c.Param("commit_id"))
	if commitID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing commit_id"})
		return
	}

	commit, errGet := h.commits.ByID(c.Request.Context(), commitID)
	if errGet != nil {
		if errors.Is(errGet, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "commit not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	repoID := ""
	if commit.Repository != nil {
		repoID = commit.Repository.RepoID
	}
	c.JSON(http.StatusOK, serializeCommit(commit, repoID))
}

// ancestryQuery defines query parameters for the ancestry walk.
type ancestryQuery struct {
	Limit int `form:"limit,default=20"`
}

// Ancestry walks the parent chain from a commit, oldest link last.
func (h *CommitHandler) Ancestry(c *gin.Context) {
	commitID := strings.TrimSpace(c.Param("commit_id"))
	if commitID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing commit_id"})
		return
	}

	var q ancestryQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}

	rows, errWalk := h.commits.Ancestry(c.Request.Context(), commitID, q.Limit)
	if errWalk != nil {
		if errors.Is(errWalk, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "commit not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ancestry walk failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, serializeCommit(&rows[i], ""))
	}
	c.JSON(http.StatusOK, gin.H{"commits": out})
}
