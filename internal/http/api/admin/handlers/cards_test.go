package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/models"
)

func setupAdminCardDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:admincards_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.StorageCard{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newAdminCardRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewStorageCardHandler(db)
	router := gin.New()
	router.POST("/v0/admin/cards", handler.Create)
	router.POST("/v0/admin/cards/batch", handler.BatchCreate)
	router.PUT("/v0/admin/cards/:id", handler.Update)
	return router
}

func TestStorageCardCreateGeneratesSerial(t *testing.T) {
	db := setupAdminCardDB(t)
	router := newAdminCardRouter(db)

	w := doJSON(t, router, http.MethodPost, "/v0/admin/cards", `{"name": "single", "password": "redeem-me", "units": 5, "valid_days": 30}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID        uint64     `json:"id"`
		CardSN    string     `json:"card_sn"`
		Password  string     `json:"password"`
		Units     int64      `json:"units"`
		ValidDays int        `json:"valid_days"`
		ExpiresAt *time.Time `json:"expires_at"`
		IsEnabled bool       `json:"is_enabled"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.CardSN) != 20 {
		t.Fatalf("card_sn length = %d, want 20", len(resp.CardSN))
	}
	if resp.Password != "redeem-me" || resp.Units != 5 || resp.ValidDays != 30 || !resp.IsEnabled {
		t.Fatalf("unexpected card payload: %+v", resp)
	}
	if resp.ExpiresAt == nil {
		t.Fatal("expected expires_at to be set for valid_days > 0")
	}
}

func TestStorageCardBatchCreate(t *testing.T) {
	db := setupAdminCardDB(t)
	router := newAdminCardRouter(db)

	w := doJSON(t, router, http.MethodPost, "/v0/admin/cards/batch", `{"name": "promo", "units": 50, "count": 3, "password_length": 8}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Cards []struct {
			CardSN   string `json:"card_sn"`
			Password string `json:"password"`
			Units    int64  `json:"units"`
		} `json:"cards"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Cards) != 3 {
		t.Fatalf("created %d cards, want 3", len(resp.Cards))
	}
	seen := make(map[string]struct{}, len(resp.Cards))
	for _, card := range resp.Cards {
		if len(card.CardSN) != 20 {
			t.Fatalf("card_sn length = %d, want 20", len(card.CardSN))
		}
		if len(card.Password) != 8 {
			t.Fatalf("password length = %d, want 8", len(card.Password))
		}
		if card.Units != 50 {
			t.Fatalf("units = %d, want 50", card.Units)
		}
		if _, dup := seen[card.CardSN]; dup {
			t.Fatalf("duplicate serial %s", card.CardSN)
		}
		seen[card.CardSN] = struct{}{}
	}
	var count int64
	db.Model(&models.StorageCard{}).Count(&count)
	if count != 3 {
		t.Fatalf("stored %d cards, want 3", count)
	}
}

func TestStorageCardUpdateRedeemedConflict(t *testing.T) {
	db := setupAdminCardDB(t)
	redeemedBy := "0xca4d000000000000000000000000000000000001"
	redeemedAt := time.Now().UTC()
	card := models.StorageCard{
		Name:       "spent",
		CardSN:     "00112233445566778899",
		Password:   "pw123456",
		Units:      10,
		IsEnabled:  true,
		RedeemedBy: &redeemedBy,
		RedeemedAt: &redeemedAt,
	}
	if err := db.Create(&card).Error; err != nil {
		t.Fatalf("seed card: %v", err)
	}
	router := newAdminCardRouter(db)

	w := doJSON(t, router, http.MethodPut, fmt.Sprintf("/v0/admin/cards/%d", card.ID), `{"name": "renamed"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "card already redeemed" {
		t.Fatalf("error = %q, want %q", resp.Error, "card already redeemed")
	}
}
