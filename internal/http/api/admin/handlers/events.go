package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/models"
)

// EventHandler exposes the recorded notification feed to operators.
type EventHandler struct {
	db *gorm.DB
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(db *gorm.DB) *EventHandler {
	return &EventHandler{db: db}
}

// listEventsQuery captures query parameters for listing events.
type listEventsQuery struct {
	Page  int    `form:"page,default=1"`
	Limit int    `form:"limit,default=20"`
	Type  string `form:"type"`
}

// List returns recorded events, newest first, with an optional type filter.
func (h *EventHandler) List(c *gin.Context) {
	var query listEventsQuery
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

	q := h.db.WithContext(c.Request.Context()).Model(&models.Event{})
	if eventType := strings.TrimSpace(query.Type); eventType != "" {
		q = q.Where("event_type = ?", eventType)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count events failed"})
		return
	}

	var rows []models.Event
	if errFind := q.Order("emitted_at DESC").
		Offset((query.Page - 1) * query.Limit).
		Limit(query.Limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list events failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		payload := json.RawMessage(row.Payload)
		if len(payload) == 0 {
			payload = json.RawMessage("{}")
		}
		out = append(out, gin.H{
			"id":         row.ID,
			"event_type": row.EventType,
			"payload":    payload,
			"emitted_at": row.EmittedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"events": out,
		"total":  total,
		"page":   query.Page,
		"limit":  query.Limit,
	})
}
