package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/config"
	"github.com/gitledger/gitledger/internal/models"
)

func setupFrontAuthDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:frontauth_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.Account{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return db
}

func newFrontAuthRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(db, config.JWTConfig{Secret: "front-test-secret", Expiry: time.Hour})
	router := gin.New()
	router.POST("/v0/front/register", handler.Register)
	router.POST("/v0/front/login", handler.Login)
	router.POST("/v0/front/reset-password", handler.ResetPassword)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterThenLogin(t *testing.T) {
	db := setupFrontAuthDB(t)
	router := newFrontAuthRouter(db)

	w := postJSON(t, router, "/v0/front/register", `{"username":"alice","email":"alice@example.com","password":"hunter22"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (%s)", w.Code, w.Body.String())
	}
	var registered struct {
		ID       uint64 `json:"id"`
		Address  string `json:"address"`
		Username string `json:"username"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &registered); errDecode != nil {
		t.Fatalf("decode register response: %v", errDecode)
	}
	if !strings.HasPrefix(registered.Address, "0x") || len(registered.Address) != 42 {
		t.Fatalf("unexpected address %q", registered.Address)
	}

	w = postJSON(t, router, "/v0/front/login", `{"username":"alice","password":"hunter22"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", w.Code, w.Body.String())
	}
	var session struct {
		AccountID uint64 `json:"account_id"`
		Address   string `json:"address"`
		Token     string `json:"token"`
	}
	if errDecode := json.Unmarshal(w.Body.Bytes(), &session); errDecode != nil {
		t.Fatalf("decode login response: %v", errDecode)
	}
	if session.Token == "" {
		t.Fatalf("expected a session token")
	}
	if session.Address != registered.Address {
		t.Fatalf("expected address %q, got %q", registered.Address, session.Address)
	}

	w = postJSON(t, router, "/v0/front/login", `{"username":"alice","password":"wrong"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for wrong password, got %d", w.Code)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	db := setupFrontAuthDB(t)
	router := newFrontAuthRouter(db)

	w := postJSON(t, router, "/v0/front/register", `{"username":"bob","password":"secret11"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", w.Code)
	}
	w = postJSON(t, router, "/v0/front/register", `{"username":"bob","password":"other22"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", w.Code)
	}
}

func TestResetPasswordRequiresMatchingEmail(t *testing.T) {
	db := setupFrontAuthDB(t)
	router := newFrontAuthRouter(db)

	w := postJSON(t, router, "/v0/front/register", `{"username":"carol","email":"carol@example.com","password":"first111"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", w.Code)
	}

	w = postJSON(t, router, "/v0/front/reset-password", `{"username":"carol","email":"wrong@example.com","new_password":"second22"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for mismatched email, got %d", w.Code)
	}

	w = postJSON(t, router, "/v0/front/reset-password", `{"username":"carol","email":"carol@example.com","new_password":"second22"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", w.Code, w.Body.String())
	}

	w = postJSON(t, router, "/v0/front/login", `{"username":"carol","password":"second22"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected login with new password to succeed, got %d", w.Code)
	}
}
