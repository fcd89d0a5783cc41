package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gitledger/gitledger/internal/models"
	"github.com/gitledger/gitledger/internal/settings"
)

// SettingHandler manages DB-backed runtime settings.
type SettingHandler struct {
	db *gorm.DB
}

// NewSettingHandler constructs a SettingHandler.
func NewSettingHandler(db *gorm.DB) *SettingHandler {
	return &SettingHandler{db: db}
}

// Get returns all stored settings as raw JSON values.
func (h *SettingHandler) Get(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list settings failed"})
		return
	}

	values := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		value := json.RawMessage(row.Value)
		if len(bytes.TrimSpace(value)) == 0 {
			value = json.RawMessage("null")
		}
		values[key] = value
	}

	c.JSON(http.StatusOK, gin.H{
		"settings":   values,
		"updated_at": settings.DBConfigUpdatedAt(),
	})
}

// Update upserts the submitted settings and refreshes the in-memory snapshot.
// A JSON null value removes the key.
func (h *SettingHandler) Update(c *gin.Context) {
	var body map[string]json.RawMessage
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no settings to update"})
		return
	}

	now := time.Now().UTC()
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		for rawKey, rawValue := range body {
			key := strings.TrimSpace(rawKey)
			if key == "" {
				continue
			}
			trimmed := bytes.TrimSpace(rawValue)
			if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
				if errDelete := tx.Where("key = ?", key).Delete(&models.Setting{}).Error; errDelete != nil {
					return errDelete
				}
				continue
			}
			row := models.Setting{
				Key:       key,
				Value:     json.RawMessage(trimmed),
				UpdatedAt: now,
			}
			if errUpsert := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&row).Error; errUpsert != nil {
				return errUpsert
			}
		}
		return nil
	})
	if errTx != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update settings failed"})
		return
	}

	if errRefresh := settings.RefreshDBConfigSnapshot(c.Request.Context(), h.db); errRefresh != nil {
		log.WithError(errRefresh).Warn("settings snapshot refresh failed")
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
