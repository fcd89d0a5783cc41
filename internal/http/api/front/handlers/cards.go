package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/ledger"
	"github.com/gitledger/gitledger/internal/models"
)

// StorageCardFrontHandler handles card redemption for account holders.
type StorageCardFrontHandler struct {
	db     *gorm.DB
	ledger *ledger.Service
}

// NewStorageCardFrontHandler constructs a StorageCardFrontHandler.
func NewStorageCardFrontHandler(db *gorm.DB, ledgerSvc *ledger.Service) *StorageCardFrontHandler {
	return &StorageCardFrontHandler{db: db, ledger: ledgerSvc}
}

// redeemCardRequest defines the request body for card redemption.
type redeemCardRequest struct {
	CardSN   string `json:"card_sn"`
	Password string `json:"password"`
}

// Redeem credits the card's units to the caller's account. A card redeems at
// most once.
func (h *StorageCardFrontHandler) Redeem(c *gin.Context) {
	address := getAccountAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body redeemCardRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cardSN := strings.TrimSpace(body.CardSN)
	password := strings.TrimSpace(body.Password)
	if cardSN == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing card_sn or password"})
		return
	}

	account, errRedeem := h.ledger.RedeemCard(c.Request.Context(), cardSN, password, address)
	if errRedeem != nil {
		switch {
		case errors.Is(errRedeem, ledger.ErrCardNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "card not found"})
		case errors.Is(errRedeem, ledger.ErrCardPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid card password"})
		case errors.Is(errRedeem, ledger.ErrCardDisabled):
			c.JSON(http.StatusBadRequest, gin.H{"error": "card disabled"})
		case errors.Is(errRedeem, ledger.ErrCardExpired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "card expired"})
		case errors.Is(errRedeem, ledger.ErrCardRedeemed):
			c.JSON(http.StatusConflict, gin.H{"error": "card already redeemed"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "redeem card failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":             true,
		"credit_balance": account.CreditBalance,
	})
}

// List returns the cards the caller has redeemed, newest first.
func (h *StorageCardFrontHandler) List(c *gin.Context) {
	address := getAccountAddress(c)
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var rows []models.StorageCard
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("redeemed_by = ?", address).
		Order("redeemed_at DESC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list cards failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":          row.ID,
			"name":        row.Name,
			"card_sn":     row.CardSN,
			"units":       row.Units,
			"redeemed_at": row.RedeemedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"cards": out})
}
