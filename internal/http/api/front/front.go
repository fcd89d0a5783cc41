package front

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/commits"
	"github.com/gitledger/gitledger/internal/config"
	"github.com/gitledger/gitledger/internal/http/api/front/handlers"
	"github.com/gitledger/gitledger/internal/ledger"
	"github.com/gitledger/gitledger/internal/models"
	"github.com/gitledger/gitledger/internal/registry"
	"github.com/gitledger/gitledger/internal/security"
)

// Services bundles the domain services the front API exposes.
type Services struct {
	Registry *registry.Service
	Commits  *commits.Service
	Ledger   *ledger.Service
}

// RegisterFrontRoutes registers public and authenticated front-end routes.
func RegisterFrontRoutes(r *gin.Engine, db *gorm.DB, cfg *config.Config, svcs Services) {
	if r == nil || db == nil || cfg == nil {
		return
	}

	front := r.Group("/v0/front")

	authHandler := handlers.NewAuthHandler(db, cfg.JWT)
	front.POST("/register", authHandler.Register)
	front.POST("/login", authHandler.Login)
	front.POST("/reset-password", authHandler.ResetPassword)

	configHandler := handlers.NewPublicConfigHandler(cfg.Pricing)
	front.GET("/config", configHandler.Get)

	authed := front.Group("")
	authed.Use(accountAuthMiddleware(db, cfg.JWT))

	profileHandler := handlers.NewProfileHandler(db)
	authed.GET("/profile", profileHandler.Get)
	authed.PUT("/profile/password", profileHandler.ChangePassword)

	ledgerHandler := handlers.NewLedgerHandler(svcs.Ledger)
	authed.GET("/balance", ledgerHandler.Balance)
	authed.GET("/ledger", ledgerHandler.Entries)

	cardHandler := handlers.NewStorageCardFrontHandler(db, svcs.Ledger)
	authed.POST("/cards/redeem", cardHandler.Redeem)
	authed.GET("/cards", cardHandler.List)

	apiKeyHandler := handlers.NewAPIKeyHandler(db)
	authed.GET("/api-keys", apiKeyHandler.List)
	authed.POST("/api-keys", apiKeyHandler.Create)
	authed.PUT("/api-keys/:id", apiKeyHandler.Update)
	authed.POST("/api-keys/:id/revoke", apiKeyHandler.Revoke)
	authed.DELETE("/api-keys/:id", apiKeyHandler.Delete)
	authed.POST("/api-keys/:id/regenerate", apiKeyHandler.Regenerate)

	repoHandler := handlers.NewRepositoryHandler(svcs.Registry)
	authed.POST("/repositories", repoHandler.Create)
	authed.GET("/repositories", repoHandler.List)
	authed.GET("/repositories/:repo_id", repoHandler.Get)
	authed.PUT("/repositories/:repo_id", repoHandler.Update)
	authed.POST("/repositories/:repo_id/transfer", repoHandler.Transfer)
	authed.GET("/repositories/:repo_id/collaborators", repoHandler.ListCollaborators)
	authed.PUT("/repositories/:repo_id/collaborators", repoHandler.UpsertCollaborator)
	authed.DELETE("/repositories/:repo_id/collaborators/:address", repoHandler.RemoveCollaborator)

	commitHandler := handlers.NewCommitHandler(svcs.Commits)
	authed.POST("/repositories/:repo_id/commits", commitHandler.Create)
	authed.GET("/repositories/:repo_id/commits", commitHandler.List)
	authed.GET("/commits/:commit_id", commitHandler.Get)
	authed.GET("/commits/:commit_id/ancestry", commitHandler.Ancestry)

	quotaHandler := handlers.NewQuotaHandler(svcs.Ledger)
	authed.POST("/quota", quotaHandler.Create)
	authed.GET("/quota", quotaHandler.GetCurrent)
	authed.POST("/quota/purchase", quotaHandler.Purchase)
	authed.POST("/quota/consume", quotaHandler.Consume)
}

// accountAuthMiddleware accepts an account JWT or an API key as the bearer
// credential and loads the account into context.
func accountAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		credential := strings.TrimPrefix(authHeader, "Bearer ")
		if credential == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		credential = strings.TrimSpace(credential)
		if credential == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		if security.IsAPIKey(credential) {
			authenticateWithAPIKey(c, db, credential)
			return
		}

		claims, errJWT := security.ParseAccountToken(jwtCfg.Secret, credential)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var account models.Account
		if errFind := db.WithContext(c.Request.Context()).First(&account, claims.AccountID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account not found"})
			return
		}
		if account.Disabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account disabled"})
			return
		}

		c.Set("accountID", account.ID)
		c.Set("accountAddress", account.Address)
		c.Next()
	}
}

// authenticateWithAPIKey resolves an API key credential to its account.
func authenticateWithAPIKey(c *gin.Context, db *gorm.DB, credential string) {
	var key models.APIKey
	if errFind := db.WithContext(c.Request.Context()).
		Preload("Account").
		Where("api_key = ?", credential).
		First(&key).Error; errFind != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}
	if !key.Active || key.RevokedAt != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "api key revoked"})
		return
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "api key expired"})
		return
	}
	if key.Account == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account not found"})
		return
	}
	if key.Account.Disabled {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account disabled"})
		return
	}

	now := time.Now().UTC()
	_ = db.WithContext(c.Request.Context()).Model(&models.APIKey{}).
		Where("id = ?", key.ID).
		Update("last_used_at", &now).Error

	c.Set("accountID", key.AccountID)
	c.Set("accountAddress", key.Account.Address)
	c.Next()
}
