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
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/config"
	"github.com/gitledger/gitledger/internal/models"
	"github.com/gitledger/gitledger/internal/security"
)

const adminTestSecret = "admin-test-secret"

func setupAdminAuthDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:adminauth_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Operator{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedOperator(t *testing.T, db *gorm.DB, username, password string, mutate func(*models.Operator)) models.Operator {
	t.Helper()
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	operator := models.Operator{
		Username:    username,
		Password:    hash,
		Active:      true,
		Permissions: datatypes.JSON([]byte("[]")),
	}
	if mutate != nil {
		mutate(&operator)
	}
	if err := db.Create(&operator).Error; err != nil {
		t.Fatalf("seed operator: %v", err)
	}
	return operator
}

func newAdminAuthRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(db, config.JWTConfig{Secret: adminTestSecret, Expiry: time.Hour})
	router := gin.New()
	router.POST("/v0/admin/auth/login", handler.Login)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestOperatorLoginIssuesToken(t *testing.T) {
	db := setupAdminAuthDB(t)
	seeded := seedOperator(t, db, "root", "hunter2-long", func(op *models.Operator) {
		op.IsSuperOperator = true
	})
	router := newAdminAuthRouter(db)

	w := doJSON(t, router, http.MethodPost, "/v0/admin/auth/login", `{"username": "root", "password": "hunter2-long"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token    string `json:"token"`
		Operator struct {
			ID              uint64   `json:"id"`
			Username        string   `json:"username"`
			Permissions     []string `json:"permissions"`
			IsSuperOperator bool     `json:"is_super_operator"`
		} `json:"operator"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a token")
	}
	if resp.Operator.ID != seeded.ID || resp.Operator.Username != "root" || !resp.Operator.IsSuperOperator {
		t.Fatalf("unexpected operator payload: %+v", resp.Operator)
	}
	claims, errParse := security.ParseOperatorToken(adminTestSecret, resp.Token)
	if errParse != nil {
		t.Fatalf("parse token: %v", errParse)
	}
	if claims.OperatorID != seeded.ID || claims.Username != "root" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestOperatorLoginWrongPassword(t *testing.T) {
	db := setupAdminAuthDB(t)
	seedOperator(t, db, "root", "hunter2-long", nil)
	router := newAdminAuthRouter(db)

	w := doJSON(t, router, http.MethodPost, "/v0/admin/auth/login", `{"username": "root", "password": "nope"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestOperatorLoginDisabledOperator(t *testing.T) {
	db := setupAdminAuthDB(t)
	seedOperator(t, db, "root", "hunter2-long", func(op *models.Operator) {
		op.Active = false
	})
	router := newAdminAuthRouter(db)

	w := doJSON(t, router, http.MethodPost, "/v0/admin/auth/login", `{"username": "root", "password": "hunter2-long"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d: %s", w.Code, w.Body.String())
	}
}

func TestOperatorLoginRequiresMFAWhenEnrolled(t *testing.T) {
	db := setupAdminAuthDB(t)
	seedOperator(t, db, "root", "hunter2-long", func(op *models.Operator) {
		op.TOTPSecret = "JBSWY3DPEHPK3PXP"
	})
	router := newAdminAuthRouter(db)

	// Password login is rejected before the password is even checked.
	w := doJSON(t, router, http.MethodPost, "/v0/admin/auth/login", `{"username": "root", "password": "hunter2-long"}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "mfa required" {
		t.Fatalf("error = %q, want %q", resp.Error, "mfa required")
	}
}
