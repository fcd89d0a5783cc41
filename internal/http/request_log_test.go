package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func runLoggedRequest(t *testing.T, path string, status int) *httptest.ResponseRecorder {
	t.Helper()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestLogMiddleware())
	router.GET("/*path", func(c *gin.Context) {
		c.Status(status)
	})

	responseRecorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(responseRecorder, req)

	return responseRecorder
}

func TestRequestLogMiddlewarePassesThroughSuccess(t *testing.T) {
	responseRecorder := runLoggedRequest(t, "/v0/front/profile", http.StatusOK)

	if responseRecorder.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", responseRecorder.Code)
	}
}

func TestRequestLogMiddlewarePreservesErrorStatus(t *testing.T) {
	responseRecorder := runLoggedRequest(t, "/v0/front/balance?auth_token=abcd1234efgh5678", http.StatusForbidden)

	if responseRecorder.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", responseRecorder.Code)
	}
}
