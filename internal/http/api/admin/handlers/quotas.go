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

// QuotaOversightHandler exposes read-only storage quota endpoints for
// operators.
type QuotaOversightHandler struct {
	db *gorm.DB
}

// NewQuotaOversightHandler constructs a QuotaOversightHandler.
func NewQuotaOversightHandler(db *gorm.DB) *QuotaOversightHandler {
	return &QuotaOversightHandler{db: db}
}

// listQuotasQuery captures query parameters for listing storage quotas.
type listQuotasQuery struct {
	Page  int    `form:"page,default=1"`
	Limit int    `form:"limit,default=20"`
	Owner string `form:"owner"`
}

// formatQuota maps a storage quota model into a response payload.
func formatQuota(quota *models.StorageQuota) gin.H {
	return gin.H{
		"quota_id":        quota.QuotaID,
		"owner":           quota.OwnerAddress,
		"bytes_available": quota.BytesAvailable,
		"bytes_used":      quota.BytesUsed,
		"created_at":      quota.CreatedAt,
		"updated_at":      quota.UpdatedAt,
	}
}

// List returns storage quotas with an optional owner filter.
func (h *QuotaOversightHandler) List(c *gin.Context) {
	var query listQuotasQuery
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

	q := h.db.WithContext(c.Request.Context()).Model(&models.StorageQuota{})
	if owner := strings.TrimSpace(query.Owner); owner != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+owner+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "owner_address"), pattern)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count quotas failed"})
		return
	}

	var rows []models.StorageQuota
	if errFind := q.Order("created_at DESC").
		Offset((query.Page - 1) * query.Limit).
		Limit(query.Limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list quotas failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatQuota(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"quotas": out,
		"total":  total,
		"page":   query.Page,
		"limit":  query.Limit,
	})
}

// Get returns a single storage quota by its public identifier.
func (h *QuotaOversightHandler) Get(c *gin.Context) {
	quotaID := strings.TrimSpace(c.Param("quota_id"))
	if quotaID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing quota_id"})
		return
	}
	var quota models.StorageQuota
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("quota_id = ?", quotaID).
		First(&quota).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatQuota(&quota))
}
