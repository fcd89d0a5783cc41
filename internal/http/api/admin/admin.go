package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/config"
	"github.com/gitledger/gitledger/internal/http/api/admin/handlers"
	"github.com/gitledger/gitledger/internal/models"
	"github.com/gitledger/gitledger/internal/security"
)

// RegisterAdminRoutes registers the operator console routes. Authentication
// endpoints and the health probe stay public; MFA self-service requires a
// valid operator token; everything else additionally goes through the
// permission gate.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, cfg *config.Config) {
	if r == nil || db == nil || cfg == nil {
		return
	}

	admin := r.Group("/v0/admin")

	healthHandler := handlers.NewHealthHandler(db)
	admin.GET("/health", healthHandler.Healthz)

	authHandler := handlers.NewAuthHandler(db, cfg.JWT)
	admin.POST("/auth/login", authHandler.Login)
	admin.POST("/auth/login/prepare", authHandler.LoginPrepare)
	admin.POST("/auth/login/totp", authHandler.LoginTOTP)
	admin.POST("/auth/login/passkey/options", authHandler.LoginPasskeyOptions)
	admin.POST("/auth/login/passkey/verify", authHandler.LoginPasskeyVerify)

	authed := admin.Group("")
	authed.Use(operatorAuthMiddleware(db, cfg.JWT))

	versionHandler := handlers.NewVersionHandler()
	authed.GET("/version", versionHandler.GetVersion)

	mfaHandler := handlers.NewMFAHandler(db)
	authed.GET("/mfa/status", mfaHandler.Status)
	authed.POST("/mfa/totp/prepare", mfaHandler.PrepareTOTP)
	authed.POST("/mfa/totp/confirm", mfaHandler.ConfirmTOTP)
	authed.POST("/mfa/totp/disable", mfaHandler.DisableTOTP)
	authed.POST("/mfa/passkey/options", mfaHandler.BeginPasskeyRegistration)
	authed.POST("/mfa/passkey/verify", mfaHandler.FinishPasskeyRegistration)
	authed.POST("/mfa/passkey/disable", mfaHandler.DisablePasskey)

	gated := authed.Group("")
	gated.Use(operatorPermissionMiddleware(db))

	operatorHandler := handlers.NewOperatorHandler(db)
	gated.GET("/operators", operatorHandler.List)
	gated.POST("/operators", operatorHandler.Create)
	gated.GET("/operators/:id", operatorHandler.Get)
	gated.PUT("/operators/:id", operatorHandler.Update)
	gated.DELETE("/operators/:id", operatorHandler.Delete)
	gated.POST("/operators/:id/disable", operatorHandler.Disable)
	gated.POST("/operators/:id/enable", operatorHandler.Enable)
	gated.PUT("/operators/:id/password", operatorHandler.ChangePassword)

	permissionHandler := handlers.NewPermissionHandler()
	gated.GET("/permissions", permissionHandler.List)

	accountHandler := handlers.NewAccountHandler(db)
	gated.GET("/accounts", accountHandler.List)
	gated.GET("/accounts/:id", accountHandler.Get)
	gated.POST("/accounts/:id/disable", accountHandler.Disable)
	gated.POST("/accounts/:id/enable", accountHandler.Enable)

	cardHandler := handlers.NewStorageCardHandler(db)
	gated.GET("/cards", cardHandler.List)
	gated.POST("/cards", cardHandler.Create)
	gated.POST("/cards/batch", cardHandler.BatchCreate)
	gated.GET("/cards/:id", cardHandler.Get)
	gated.PUT("/cards/:id", cardHandler.Update)
	gated.DELETE("/cards/:id", cardHandler.Delete)

	repositoryHandler := handlers.NewRepositoryOversightHandler(db)
	gated.GET("/repositories", repositoryHandler.List)
	gated.GET("/repositories/:repo_id", repositoryHandler.Get)
	gated.GET("/repositories/:repo_id/commits", repositoryHandler.ListCommits)

	quotaHandler := handlers.NewQuotaOversightHandler(db)
	gated.GET("/quotas", quotaHandler.List)
	gated.GET("/quotas/:quota_id", quotaHandler.Get)

	ledgerHandler := handlers.NewLedgerOversightHandler(db)
	gated.GET("/ledger", ledgerHandler.List)

	eventHandler := handlers.NewEventHandler(db)
	gated.GET("/events", eventHandler.List)

	settingHandler := handlers.NewSettingHandler(db)
	gated.GET("/settings", settingHandler.Get)
	gated.PUT("/settings", settingHandler.Update)

	dashboardHandler := handlers.NewDashboardHandler(db)
	gated.GET("/dashboard/stats", dashboardHandler.Stats)
}

// operatorAuthMiddleware validates the operator JWT and loads the operator
// into context.
func operatorAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseOperatorToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var operator models.Operator
		if errFind := db.WithContext(c.Request.Context()).First(&operator, claims.OperatorID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "operator not found"})
			return
		}
		if !operator.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operator account is disabled"})
			return
		}

		c.Set("operatorID", operator.ID)
		c.Next()
	}
}
