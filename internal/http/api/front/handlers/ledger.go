package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/ledger"
)

// LedgerHandler handles credit balance and transfer history endpoints.
type LedgerHandler struct {
	ledger *ledger.Service
}

// NewLedgerHandler constructs a LedgerHandler.
func NewLedgerHandler(ledgerSvc *ledger.Service) *LedgerHandler {
	return &LedgerHandler{ledger: ledgerSvc}
}

// Balance returns the caller's spendable credit balance.
func (h *LedgerHandler) Balance(c *gin.Context) {
	address := getAccountAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	balance, errGet := h.ledger.Balance(c.Request.Context(), address)
	if errGet != nil {
		if errors.Is(errGet, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": address,
		"balance": balance,
	})
}

// listEntriesQuery defines query parameters for the transfer history.
type listEntriesQuery struct {
	Page  int `form:"page,default=1"`
	Limit int `form:"limit,default=20"`
}

// Entries returns transfers involving the caller, newest first.
func (h *LedgerHandler) Entries(c *gin.Context) {
	address := getAccountAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var q listEntriesQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}

	rows, total, errList := h.ledger.Entries(c.Request.Context(), address, q.Page, q.Limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list entries failed"})
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
		"page":    q.Page,
		"limit":   q.Limit,
	})
}
