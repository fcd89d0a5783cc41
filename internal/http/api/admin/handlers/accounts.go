package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	dbutil "github.com/gitledger/gitledger/internal/db"
	"github.com/gitledger/gitledger/internal/models"
)

// AccountHandler exposes oversight endpoints for platform accounts.
type AccountHandler struct {
	db *gorm.DB
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(db *gorm.DB) *AccountHandler {
	return &AccountHandler{db: db}
}

// listAccountsQuery captures query parameters for listing accounts.
type listAccountsQuery struct {
	Page     int    `form:"page,default=1"`
	Limit    int    `form:"limit,default=20"`
	Search   string `form:"search"`
	Disabled string `form:"disabled"`
}

// formatAccount maps an account model into a response payload.
func formatAccount(account *models.Account) gin.H {
	return gin.H{
		"id":             account.ID,
		"address":        account.Address,
		"username":       account.Username,
		"email":          account.Email,
		"credit_balance": account.CreditBalance,
		"disabled":       account.Disabled,
		"created_at":     account.CreatedAt,
		"updated_at":     account.UpdatedAt,
	}
}

// List returns accounts with optional search and status filters.
func (h *AccountHandler) List(c *gin.Context) {
	var query listAccountsQuery
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

	q := h.db.WithContext(c.Request.Context()).Model(&models.Account{})
	if search := strings.TrimSpace(query.Search); search != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+search+"%")
		q = q.Where(
			h.db.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "username"), pattern).
				Or(dbutil.CaseInsensitiveLikeExpr(h.db, "address"), pattern).
				Or(dbutil.CaseInsensitiveLikeExpr(h.db, "email"), pattern),
		)
	}
	if query.Disabled == "true" || query.Disabled == "1" {
		q = q.Where("disabled = ?", true)
	} else if query.Disabled == "false" || query.Disabled == "0" {
		q = q.Where("disabled = ?", false)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count accounts failed"})
		return
	}

	var rows []models.Account
	if errFind := q.Order("created_at DESC").
		Offset((query.Page - 1) * query.Limit).
		Limit(query.Limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list accounts failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatAccount(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"accounts": out,
		"total":    total,
		"page":     query.Page,
		"limit":    query.Limit,
	})
}

// Get returns a single account by ID.
func (h *AccountHandler) Get(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var account models.Account
	if errFind := h.db.WithContext(c.Request.Context()).First(&account, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, formatAccount(&account))
}

// Disable blocks an account from signing in or using API keys.
func (h *AccountHandler) Disable(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{"disabled": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Enable lifts the block on an account.
func (h *AccountHandler) Enable(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{"disabled": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enable failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
