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
	"github.com/gitledger/gitledger/internal/settings"
)

func setupSettingDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:adminsettings_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Setting{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newSettingTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewSettingHandler(db)
	router := gin.New()
	router.GET("/v0/admin/settings", handler.Get)
	router.PUT("/v0/admin/settings", handler.Update)
	return router
}

func getSettings(t *testing.T, router *gin.Engine) map[string]json.RawMessage {
	t.Helper()
	w := doJSON(t, router, http.MethodGet, "/v0/admin/settings", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Settings map[string]json.RawMessage `json:"settings"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Settings
}

func TestSettingsUpdateUpsertsAndDeletes(t *testing.T) {
	db := setupSettingDB(t)
	router := newSettingTestRouter(db)

	body := fmt.Sprintf(`{%q: true, %q: 30}`, settings.RegistrationDisabledKey, settings.EventsRetentionDaysKey)
	w := doJSON(t, router, http.MethodPut, "/v0/admin/settings", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	values := getSettings(t, router)
	if string(values[settings.RegistrationDisabledKey]) != "true" {
		t.Fatalf("registration setting = %s, want true", values[settings.RegistrationDisabledKey])
	}
	if string(values[settings.EventsRetentionDaysKey]) != "30" {
		t.Fatalf("retention setting = %s, want 30", values[settings.EventsRetentionDaysKey])
	}

	// Overwrite one value, remove the other via null.
	body = fmt.Sprintf(`{%q: false, %q: null}`, settings.RegistrationDisabledKey, settings.EventsRetentionDaysKey)
	w = doJSON(t, router, http.MethodPut, "/v0/admin/settings", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	values = getSettings(t, router)
	if string(values[settings.RegistrationDisabledKey]) != "false" {
		t.Fatalf("registration setting = %s, want false", values[settings.RegistrationDisabledKey])
	}
	if _, present := values[settings.EventsRetentionDaysKey]; present {
		t.Fatal("expected retention setting to be deleted")
	}

	var count int64
	db.Model(&models.Setting{}).Count(&count)
	if count != 1 {
		t.Fatalf("stored %d settings, want 1", count)
	}
}

func TestSettingsUpdateRefreshesSnapshot(t *testing.T) {
	db := setupSettingDB(t)
	router := newSettingTestRouter(db)

	body := fmt.Sprintf(`{%q: true}`, settings.RegistrationDisabledKey)
	w := doJSON(t, router, http.MethodPut, "/v0/admin/settings", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if !settings.BoolValue(settings.RegistrationDisabledKey, settings.DefaultRegistrationDisabled) {
		t.Fatal("expected snapshot to reflect the update")
	}

	body = fmt.Sprintf(`{%q: null}`, settings.RegistrationDisabledKey)
	w = doJSON(t, router, http.MethodPut, "/v0/admin/settings", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if settings.BoolValue(settings.RegistrationDisabledKey, settings.DefaultRegistrationDisabled) {
		t.Fatal("expected snapshot to fall back to the default")
	}
}

func TestSettingsUpdateEmptyBody(t *testing.T) {
	db := setupSettingDB(t)
	router := newSettingTestRouter(db)

	w := doJSON(t, router, http.MethodPut, "/v0/admin/settings", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}
