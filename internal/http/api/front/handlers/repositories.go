package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/access"
	"github.com/gitledger/gitledger/internal/models"
	"github.com/gitledger/gitledger/internal/registry"
)

// RepositoryHandler handles repository endpoints for account holders.
type RepositoryHandler struct {
	registry *registry.Service
}

// NewRepositoryHandler constructs a RepositoryHandler.
func NewRepositoryHandler(registrySvc *registry.Service) *RepositoryHandler {
	return &RepositoryHandler{registry: registrySvc}
}

// serializeRepository converts a model to an API response payload.
func serializeRepository(row *models.Repository) gin.H {
	return gin.H{
		"repo_id":        row.RepoID,
		"name":           row.Name,
		"description":    row.Description,
		"owner":          row.OwnerAddress,
		"head_pointer":   row.HeadPointer,
		"default_branch": row.DefaultBranch,
		"created_at":     row.CreatedAt,
		"updated_at":     row.UpdatedAt,
	}
}

// createRepositoryRequest defines the request body for creating repositories.
type createRepositoryRequest struct {
	Name                  string `json:"name"`
	Description           string `json:"description"`
	InitialContentPointer string `json:"initial_content_pointer"`
	DefaultBranch         string `json:"default_branch"`
}

// Create registers a new repository owned by the caller.
func (h *RepositoryHandler) Create(c *gin.Context) {
	address := getAccountAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body createRepositoryRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	repo, errCreate := h.registry.CreateRepository(c.Request.Context(), registry.CreateParams{
		Caller:                address,
		Name:                  body.Name,
		Description:           body.Description,
		InitialContentPointer: body.InitialContentPointer,
		DefaultBranch:         body.DefaultBranch,
	})
	if errCreate != nil {
		if errors.Is(errCreate, registry.ErrInvalidName) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid repository name"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create repository failed"})
		return
	}
	c.JSON(http.StatusCreated, serializeRepository(repo))
}

// listRepositoriesQuery defines query parameters for listing repositories.
type listRepositoriesQuery struct {
	Page  int `form:"page,default=1"`
	Limit int `form:"limit,default=20"`
}

// List returns repositories the caller owns or collaborates on.
func (h *RepositoryHandler) List(c *gin.Context) {
	address := getAccountAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var q listRepositoriesQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}

	rows, total, errList := h.registry.ListByAddress(c.Request.Context(), address, q.Page, q.Limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list repositories failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, serializeRepository(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"repositories": out,
		"total":        total,
		"page":         q.Page,
		"limit":        q.Limit,
	})
}

// Get returns a single repository by its public identifier.
func (h *RepositoryHandler) Get(c *gin.Context) {
	repoID := strings.TrimSpace(c.Param("repo_id"))
	if repoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing repo_id"})
		return
	}

	repo, errGet := h.registry.Get(c.Request.Context(), repoID)
	if errGet != nil {
		if errors.Is(errGet, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, serializeRepository(repo))
}

// updateRepositoryRequest defines the request body for updating repositories.
type updateRepositoryRequest struct {
	Description string `json:"description"`
}

// Update changes a repository's description. Write access is required.
func (h *RepositoryHandler) Update(c *gin.Context) {
	address := getAccountAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	repoID := strings.TrimSpace(c.Param("repo_id"))

	var body updateRepositoryRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	repo, errUpdate := h.registry.UpdateRepository(c.Request.Context(), repoID, address, body.Description)
	if errUpdate != nil {
		switch {
		case errors.Is(errUpdate, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
		case errors.Is(errUpdate, access.ErrNotAuthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update repository failed"})
		}
		return
	}
	c.JSON(http.StatusOK, serializeRepository(repo))
}

// transferRepositoryRequest defines the request body for ownership transfer.
type transferRepositoryRequest struct {
	NewOwner string `json:"new_owner"`
}

// Transfer moves repository ownership to another registered account. Only
// the current owner may transfer.
func (h *RepositoryHandler) Transfer(c *gin.Context) {
	address := getAccountAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	repoID := strings.TrimSpace(c.Param("repo_id"))

	var body transferRepositoryRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	newOwner := strings.TrimSpace(body.NewOwner)
	if newOwner == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing new_owner"})
		return
	}

	repo, errTransfer := h.registry.TransferOwnership(c.Request.Context(), repoID, address, newOwner)
	if errTransfer != nil {
		switch {
		case errors.Is(errTransfer, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
		case errors.Is(errTransfer, access.ErrNotAuthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
		case errors.Is(errTransfer, registry.ErrUnknownAccount):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "account not registered"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "transfer repository failed"})
		}
		return
	}
	c.JSON(http.StatusOK, serializeRepository(repo))
}

// upsertCollaboratorRequest defines the request body for collaborator grants.
type upsertCollaboratorRequest struct {
	Address string `json:"address"`
	Level   string `json:"level"`
}

// UpsertCollaborator grants or updates a collaborator level. Admin access is
// required.
func (h *RepositoryHandler) UpsertCollaborator(c *gin.Context) {
	address := getAccountAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	repoID := strings.TrimSpace(c.Param("repo_id"))

	var body upsertCollaboratorRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	target := strings.TrimSpace(body.Address)
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing address"})
		return
	}

	grant, errUpsert := h.registry.UpsertCollaborator(c.Request.Context(), repoID, address, target, body.Level)
	if errUpsert != nil {
		switch {
		case errors.Is(errUpsert, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
		case errors.Is(errUpsert, access.ErrNotAuthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
		case errors.Is(errUpsert, registry.ErrInvalidLevel):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid permission level"})
		case errors.Is(errUpsert, registry.ErrOwnerGrant):
			c.JSON(http.StatusConflict, gin.H{"error": "owner cannot hold a collaborator grant"})
		case errors.Is(errUpsert, registry.ErrUnknownAccount):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "account not registered"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert collaborator failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":    grant.Address,
		"level":      grant.Level,
		"granted_by": grant.GrantedBy,
	})
}

// RemoveCollaborator deletes a collaborator grant. Admins can remove anyone;
// collaborators can remove themselves.
func (h *RepositoryHandler) RemoveCollaborator(c *gin.Context) {
	address := getAccountAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	repoID := strings.TrimSpace(c.Param("repo_id"))
	target := strings.TrimSpace(c.Param("address"))
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing address"})
		return
	}

	if errRemove := h.registry.RemoveCollaborator(c.Request.Context(), repoID, address, target); errRemove != nil {
		switch {
		case errors.Is(errRemove, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(errRemove, access.ErrNotAuthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "remove collaborator failed"})
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// ListCollaborators returns all collaborator grants on a repository.
func (h *RepositoryHandler) ListCollaborators(c *gin.Context) {
	repoID := strings.TrimSpace(c.Param("repo_id"))
	if repoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing repo_id"})
		return
	}

	rows, errList := h.registry.ListCollaborators(c.Request.Context(), repoID)
	if errList != nil {
		if errors.Is(errList, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "repository not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list collaborators failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"address":    row.Address,
			"level":      row.Level,
			"granted_by": row.GrantedBy,
			"created_at": row.CreatedAt,
			"updated_at": row.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"collaborators": out})
}
