package handlers

import (
	"crypto/rand"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	dbutil "github.com/gitledger/gitledger/internal/db"
	"github.com/gitledger/gitledger/internal/models"
	"github.com/gitledger/gitledger/internal/security"
)

// StorageCardHandler handles operator endpoints for storage cards.
type StorageCardHandler struct {
	db *gorm.DB
}

// NewStorageCardHandler constructs a StorageCardHandler.
func NewStorageCardHandler(db *gorm.DB) *StorageCardHandler {
	return &StorageCardHandler{db: db}
}

// createStorageCardRequest captures the payload for minting a single card.
type createStorageCardRequest struct {
	Name      string `json:"name"`       // Display name for the card.
	CardSN    string `json:"card_sn"`    // Optional serial, generated when empty.
	Password  string `json:"password"`   // Redemption password.
	Units     int64  `json:"units"`      // Credit units granted on redemption.
	ValidDays *int   `json:"valid_days"` // Optional validity period in days.
	IsEnabled *bool  `json:"is_enabled"` // Optional active flag.
}

// Create validates input and mints a new storage card.
func (h *StorageCardHandler) Create(c *gin.Context) {
	var body createStorageCardRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}
	password := strings.TrimSpace(body.Password)
	if password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing password"})
		return
	}
	if body.Units <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "units must be positive"})
		return
	}
	validDays := 0
	if body.ValidDays != nil {
		if *body.ValidDays < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "valid_days cannot be negative"})
			return
		}
		validDays = *body.ValidDays
	}

	cardSN := strings.TrimSpace(body.CardSN)
	if cardSN == "" {
		generated, errSN := security.NewCardSN()
		if errSN != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "generate card serial failed"})
			return
		}
		cardSN = generated
	}

	now := time.Now().UTC()
	isEnabled := true
	if body.IsEnabled != nil {
		isEnabled = *body.IsEnabled
	}
	card := models.StorageCard{
		Name:      name,
		CardSN:    cardSN,
		Password:  password,
		Units:     body.Units,
		ValidDays: validDays,
		IsEnabled: isEnabled,
		CreatedAt: now,
	}
	if validDays > 0 {
		expires := now.Add(time.Duration(validDays) * 24 * time.Hour)
		card.ExpiresAt = &expires
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&card).Error; errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create storage card failed"})
		return
	}
	c.JSON(http.StatusCreated, h.formatCard(&card))
}

// batchCreateStorageCardRequest captures the payload for batch card minting.
type batchCreateStorageCardRequest struct {
	Name           string `json:"name"`            // Display name for the cards.
	Units          int64  `json:"units"`           // Units to assign to each card.
	Count          int    `json:"count"`           // Number of cards to mint.
	CardSNPrefix   string `json:"card_sn_prefix"`  // Optional card serial prefix.
	PasswordLength int    `json:"password_length"` // Length of generated passwords.
	ValidDays      *int   `json:"valid_days"`      // Optional validity period in days.
	IsEnabled      *bool  `json:"is_enabled"`      // Optional active flag.
}

// BatchCreate mints multiple storage cards in a single transaction.
func (h *StorageCardHandler) BatchCreate(c *gin.Context) {
	var body batchCreateStorageCardRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}
	if body.Units <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "units must be positive"})
		return
	}
	if body.Count <= 0 || body.Count > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count must be between 1 and 1000"})
		return
	}

	passwordLength := body.PasswordLength
	if passwordLength <= 0 {
		passwordLength = 10
	}
	if passwordLength < 6 || passwordLength > 32 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password_length must be between 6 and 32"})
		return
	}
	validDays := 0
	if body.ValidDays != nil {
		if *body.ValidDays < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "valid_days cannot be negative"})
			return
		}
		validDays = *body.ValidDays
	}

	prefix := strings.TrimSpace(body.CardSNPrefix)
	isEnabled := true
	if body.IsEnabled != nil {
		isEnabled = *body.IsEnabled
	}
	now := time.Now().UTC()
	var expiresAt *time.Time
	if validDays > 0 {
		expires := now.Add(time.Duration(validDays) * 24 * time.Hour)
		expiresAt = &expires
	}
	created := make([]gin.H, 0, body.Count)
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		for i := 0; i < body.Count; i++ {
			cardSN, errSN := security.NewCardSN()
			if errSN != nil {
				return errSN
			}
			password, errPass := generateCode(passwordLength)
			if errPass != nil {
				return errPass
			}
			card := models.StorageCard{
				Name:      name,
				CardSN:    prefix + cardSN,
				Password:  password,
				Units:     body.Units,
				ValidDays: validDays,
				ExpiresAt: expiresAt,
				IsEnabled: isEnabled,
				CreatedAt: now,
			}
			if errCreate := tx.Create(&card).Error; errCreate != nil {
				return errCreate
			}
			created = append(created, h.formatCard(&card))
		}
		return nil
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "batch create storage cards failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"cards": created})
}

// List returns storage cards filtered by query parameters.
func (h *StorageCardHandler) List(c *gin.Context) {
	var (
		nameQ       = strings.TrimSpace(c.Query("name"))
		cardSNQ     = strings.TrimSpace(c.Query("card_sn"))
		redeemedQ   = strings.TrimSpace(c.Query("redeemed"))
		redeemedByQ = strings.TrimSpace(c.Query("redeemed_by"))
	)

	q := h.db.WithContext(c.Request.Context()).Model(&models.StorageCard{})
	if nameQ != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+nameQ+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "name"), pattern)
	}
	if cardSNQ != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+cardSNQ+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "card_sn"), pattern)
	}
	if redeemedByQ != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+redeemedByQ+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "redeemed_by"), pattern)
	}
	if redeemedQ == "true" || redeemedQ == "1" {
		q = q.Where("redeemed_at IS NOT NULL")
	} else if redeemedQ == "false" || redeemedQ == "0" {
		q = q.Where("redeemed_at IS NULL")
	}

	var rows []models.StorageCard
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list storage cards failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, h.formatCard(&row))
	}
	c.JSON(http.StatusOK, gin.H{"cards": out})
}

// Get fetches a single storage card by ID.
func (h *StorageCardHandler) Get(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var card models.StorageCard
	if errFind := h.db.WithContext(c.Request.Context()).First(&card, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, h.formatCard(&card))
}

// updateStorageCardRequest captures optional fields for card updates.
type updateStorageCardRequest struct {
	Name      *string `json:"name"`       // Optional updated name.
	Password  *string `json:"password"`   // Optional updated password.
	Units     *int64  `json:"units"`      // Optional updated unit grant.
	ValidDays *int    `json:"valid_days"` // Optional updated validity in days.
	IsEnabled *bool   `json:"is_enabled"` // Optional active flag.
}

// Update applies validated field changes to an unredeemed storage card.
func (h *StorageCardHandler) Update(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var card models.StorageCard
	if errFind := h.db.WithContext(c.Request.Context()).First(&card, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if card.RedeemedAt != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "card already redeemed"})
		return
	}
	var body updateStorageCardRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	updates := map[string]any{}
	if body.Name != nil {
		name := strings.TrimSpace(*body.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
			return
		}
		updates["name"] = name
	}
	if body.Password != nil {
		password := strings.TrimSpace(*body.Password)
		if password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "password cannot be empty"})
			return
		}
		updates["password"] = password
	}
	if body.Units != nil {
		if *body.Units <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "units must be positive"})
			return
		}
		updates["units"] = *body.Units
	}
	if body.ValidDays != nil {
		if *body.ValidDays < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "valid_days cannot be negative"})
			return
		}
		updates["valid_days"] = *body.ValidDays
		if *body.ValidDays > 0 {
			expires := card.CreatedAt.Add(time.Duration(*body.ValidDays) * 24 * time.Hour)
			updates["expires_at"] = expires
		} else {
			updates["expires_at"] = nil
		}
	}
	if body.IsEnabled != nil {
		updates["is_enabled"] = *body.IsEnabled
	}

	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).Model(&models.StorageCard{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes a storage card record by ID.
func (h *StorageCardHandler) Delete(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Delete(&models.StorageCard{}, id)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// formatCard maps a storage card model into a response payload.
func (h *StorageCardHandler) formatCard(card *models.StorageCard) gin.H {
	return gin.H{
		"id":          card.ID,
		"name":        card.Name,
		"card_sn":     card.CardSN,
		"password":    card.Password,
		"units":       card.Units,
		"valid_days":  card.ValidDays,
		"expires_at":  card.ExpiresAt,
		"is_enabled":  card.IsEnabled,
		"redeemed_by": card.RedeemedBy,
		"redeemed_at": card.RedeemedAt,
		"created_at":  card.CreatedAt,
	}
}

// generateCode returns a random uppercase token of the requested length.
func generateCode(length int) (string, error) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}
