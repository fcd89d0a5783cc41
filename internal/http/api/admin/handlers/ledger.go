package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/models"
)

// LedgerOversightHandler exposes the full credit ledger to operators.
type LedgerOversightHandler struct {
	db *gorm.DB
}

// NewLedgerOversightHandler constructs a LedgerOversightHandler.
func NewLedgerOversightHandler(db *gorm.DB) *LedgerOversightHandler {
	return &LedgerOversightHandler{db: db}
}

// listLedgerQuery captures query parameters for listing ledger entries.
type listLedgerQuery struct {
	Page    int    `form:"page,default=1"`
	Limit   int    `form:"limit,default=20"`
	Address string `form:"address"`
	Reason  string `form:"reason"`
}

// List returns ledger entries, newest first, with optional filters. The
// address filter matches either side of a transfer.
func (h *LedgerOversightHandler) List(c *gin.Context) {
	var query listLedgerQuery
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

	q := h.db.WithContext(c.Request.Context()).Model(&models.LedgerEntry{})
	if address := strings.TrimSpace(query.Address); address != "" {
		q = q.Where("from_address = ? OR to_address = ?", address, address)
	}
	if reason := strings.TrimSpace(query.Reason); reason != "" {
		q = q.Where("reason = ?", reason)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count ledger entries failed"})
		return
	}

	var rows []models.LedgerEntry
	if errFind := q.Order("created_at DESC").
		Offset((query.Page - 1) * query.Limit).
		Limit(query.Limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list ledger entries failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":         row.ID,
			"from":       row.FromAddress,
			"to":         row.ToAddress,
			"amount":     row.Amount,
			"reason":     row.Reason,
			"quota_id":   row.QuotaID,
			"card_sn":    row.CardSN,
			"created_at": row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": out,
		"total":   total,
		"page":    query.Page,
		"limit":   query.Limit,
	})
}
