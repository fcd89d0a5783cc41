package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/access"
	"github.com/gitledger/gitledger/internal/ledger"
	"github.com/gitledger/gitledger/internal/models"
)

// QuotaHandler handles storage quota endpoints for account holders.
type QuotaHandler struct {
	ledger *ledger.Service
}

// NewQuotaHandler constructs a QuotaHandler.
func NewQuotaHandler(ledgerSvc *ledger.Service) *QuotaHandler {
	return &QuotaHandler{ledger: ledgerSvc}
}

// serializeQuota converts a model to an API response payload.
func serializeQuota(row *models.StorageQuota) gin.H {
	return gin.H{
		"quota_id":        row.QuotaID,
		"owner":           row.OwnerAddress,
		"bytes_available": row.BytesAvailable,
		"bytes_used":      row.BytesUsed,
		"created_at":      row.CreatedAt,
		"updated_at":      row.UpdatedAt,
	}
}

// Create provisions the caller's storage quota. Each account holds at most
// one quota.
func (h *QuotaHandler) Create(c *gin.Context) {
	address := getAccountAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	quota, errCreate := h.ledger.CreateQuota(c.Request.Context(), address)
	if errCreate != nil {
		if errors.Is(errCreate, ledger.ErrQuotaExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "storage quota already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create quota failed"})
		return
	}
	c.JSON(http.StatusCreated, serializeQuota(quota))
}

// GetCurrent returns the caller's storage quota.
func (h *QuotaHandler) GetCurrent(c *gin.Context) {
	address := getAccountAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	quota, errGet := h.ledger.QuotaByOwner(c.Request.Context(), address)
	if errGet != nil {
		if errors.Is(errGet, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "storage quota not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, serializeQuota(quota))
}

// quotaBytesRequest defines the request body for purchase and consume calls.
// QuotaID defaults to the caller's own quota when omitted.
type quotaBytesRequest struct {
	QuotaID string `json:"quota_id"`
	Bytes   int64  `json:"bytes"`
}

// resolveQuotaID fills in the caller's quota ID when the request omits one.
func (h *QuotaHandler) resolveQuotaID(c *gin.Context, address, quotaID string) (string, bool) {
	quotaID = strings.TrimSpace(quotaID)
	if quotaID != "" {
		return quotaID, true
	}
	quota, errGet := h.ledger.QuotaByOwner(c.Request.Context(), address)
	if errGet != nil {
		if errors.Is(errGet, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "storage quota not found"})
			return "", false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return "", false
	}
	return quota.QuotaID, true
}

// Purchase buys storage capacity for a quota. The cost in credit units is
// charged to the caller and paid to the treasury.
func (h *QuotaHandler) Purchase(c *gin.Context) {
	address := getAccountAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body quotaBytesRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	quotaID, ok := h.resolveQuotaID(c, address, body.QuotaID)
	if !ok {
		return
	}

	quota, errPurchase := h.ledger.PurchaseStorage(c.Request.Context(), quotaID, body.Bytes, address)
	if errPurchase != nil {
		switch {
		case errors.Is(errPurchase, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "storage quota not found"})
		case errors.Is(errPurchase, access.ErrNotAuthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
		case errors.Is(errPurchase, ledger.ErrInvalidBytes):
			c.JSON(http.StatusBadRequest, gin.H{"error": "bytes must be positive"})
		case errors.Is(errPurchase, ledger.ErrInsufficientFunds):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient funds"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "purchase storage failed"})
		}
		return
	}
	c.JSON(http.StatusOK, serializeQuota(quota))
}

// Consume spends storage capacity from a quota.
func (h *QuotaHandler) Consume(c *gin.Context) {
	address := getAccountAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body quotaBytesRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	quotaID, ok := h.resolveQuotaID(c, address, body.QuotaID)
	if !ok {
		return
	}

	quota, errConsume := h.ledger.ConsumeStorage(c.Request.Context(), quotaID, body.Bytes, address)
	if errConsume != nil {
		switch {
		case errors.Is(errConsume, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "storage quota not found"})
		case errors.Is(errConsume, access.ErrNotAuthorized):
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
		case errors.Is(errConsume, ledger.ErrInvalidBytes):
			c.JSON(http.StatusBadRequest, gin.H{"error": "bytes must be positive"})
		case errors.Is(errConsume, ledger.ErrInsufficientStorage):
			c.JSON(http.StatusConflict, gin.H{"error": "insufficient storage"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "consume storage failed"})
		}
		return
	}
	c.JSON(http.StatusOK, serializeQuota(quota))
}
