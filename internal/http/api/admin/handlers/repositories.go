package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	dbutil "github.com/gitledger/gitledger/internal/db"
	"github.com/gitledger/gitledger/internal/models"
)

// RepositoryOversightHandler exposes read-only repository endpoints for
// operators.
type RepositoryOversightHandler struct {
	db *gorm.DB
}

// NewRepositoryOversightHandler constructs a RepositoryOversightHandler.
func NewRepositoryOversightHandler(db *gorm.DB) *RepositoryOversightHandler {
	return &RepositoryOversightHandler{db: db}
}

// listRepositoriesQuery captures query parameters for listing repositories.
type listRepositoriesQuery struct {
	Page  int    `form:"page,default=1"`
	Limit int    `form:"limit,default=20"`
	Name  string `form:"name"`
	Owner string `form:"owner"`
}

// formatRepository maps a repository model into a response payload.
func formatRepository(repo *models.Repository) gin.H {
	return gin.H{
		"repo_id":        repo.RepoID,
		"name":           repo.Name,
		"description":    repo.Description,
		"owner":          repo.OwnerAddress,
		"head_pointer":   repo.HeadPointer,
		"default_branch": repo.DefaultBranch,
		"created_at":     repo.CreatedAt,
		"updated_at":     repo.UpdatedAt,
	}
}

// List returns repositories with optional name and owner filters.
func (h *RepositoryOversightHandler) List(c *gin.Context) {
	var query listRepositoriesQuery
	if errBind := c.ShouldBindQuery(&query); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit < 1 || query.Limit > 100 {
		query.Limit = 20
	}

	q := h.db.WithContext(c.Request.Context()).Model(&models.Repository{})
	if name := strings.TrimSpace(query.Name); name != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+name+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "name"), pattern)
	}
	if owner := strings.TrimSpace(query.Owner); owner != "" {
		q = q.Where("owner_address = ?", owner)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count repositories failed"})
		return
	}

	var rows []models.Repository
	if errFind := q.Order("created_at DESC").
		Offset((query.Page - 1) * query.Limit).
		Limit(query.Limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list repositories failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatRepository(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"repositories": out,
		"total":        total,
		"page":         query.Page,
		"limit":        query.Limit,
	})
}

// Get returns a single repository with its collaborators.
func (h *RepositoryOversightHandler) Get(c *gin.Context) {
	repoID := strings.TrimSpace(c.Param("repo_id"))
	if repoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing repo_id"})
		return
	}
	var repo models.Repository
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("repo_id = ?", repoID).
		First(&repo).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	var collaborators []models.Collaborator
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("repository_id = ?", repo.ID).
		Order("created_at ASC").
		Find(&collaborators).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list collaborators failed"})
		return
	}

	collabOut := make([]gin.H, 0, len(collaborators))
	for _, collab := range collaborators {
		collabOut = append(collabOut, gin.H{
			"address":    collab.Address,
			"level":      collab.Level,
			"granted_by": collab.GrantedBy,
			"created_at": collab.CreatedAt,
		})
	}

	body := formatRepository(&repo)
	body["collaborators"] = collabOut
	c.JSON(http.StatusOK, body)
}

// listRepoCommitsQuery captures query parameters for listing commits.
type listRepoCommitsQuery struct {
	Page  int `form:"page,default=1"`
	Limit int `form:"limit,default=20"`
}

// ListCommits returns the commits of a repository, newest first.
func (h *RepositoryOversightHandler) ListCommits(c *gin.Context) {
	repoID := strings.TrimSpace(c.Param("repo_id"))
	if repoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing repo_id"})
		return
	}
	var query listRepoCommitsQuery
	if errBind := c.ShouldBindQuery(&query); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit < 1 || query.Limit > 100 {
		query.Limit = 20
	}

	var repo models.Repository
	if errFind := h.db.WithContext(c.Request.Context()).
		Select("id", "repo_id").
		Where("repo_id = ?", repoID).
		First(&repo).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	q := h.db.WithContext(c.Request.Context()).Model(&models.Commit{}).
		Where("repository_id = ?", repo.ID)

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count commits failed"})
		return
	}

	var rows []models.Commit
	if errFind := q.Order("created_at DESC").
		Offset((query.Page - 1) * query.Limit).
		Limit(query.Limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list commits failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"commit_id":        row.CommitID,
			"repo_id":          repo.RepoID,
			"message":          row.Message,
			"author":           row.AuthorAddress,
			"content_pointer":  row.ContentPointer,
			"size_bytes":       row.SizeBytes,
			"parent_commit_id": row.ParentCommitID,
			"timestamp_ms":     row.TimestampMS,
			"created_at":       row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"commits": out,
		"total":   total,
		"page":    query.Page,
		"limit":   query.Limit,
	})
}
