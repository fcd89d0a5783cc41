package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	permissions "github.com/gitledger/gitledger/internal/http/api/admin/permissions"
	"github.com/gitledger/gitledger/internal/models"
)

// operatorPermissionMiddleware enforces permission checks for admin routes.
func operatorPermissionMiddleware(db *gorm.DB) gin.HandlerFunc {
	permissionMap := permissions.DefinitionMap()

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}

		key := permissions.Key(c.Request.Method, path)
		if _, ok := permissionMap[key]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}

		operatorPermissions, okPermissions := readOperatorPermissionsFromContext(c)
		operatorIsSuper, okSuper := readOperatorIsSuperFromContext(c)
		if !okPermissions || !okSuper {
			operatorIDValue, exists := c.Get("operatorID")
			if !exists {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "operator not found"})
				return
			}
			operatorID, okID := operatorIDValue.(uint64)
			if !okID {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "operator not found"})
				return
			}

			var operator models.Operator
			if errFind := db.WithContext(c.Request.Context()).Select("id", "permissions", "is_super_operator").First(&operator, operatorID).Error; errFind != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "operator not found"})
				return
			}
			operatorPermissions = permissions.ParsePermissions(operator.Permissions)
			operatorIsSuper = operator.IsSuperOperator
			c.Set("operatorPermissions", operatorPermissions)
			c.Set("operatorIsSuper", operatorIsSuper)
		}

		if operatorIsSuper {
			c.Next()
			return
		}

		if !permissions.HasPermission(operatorPermissions, key) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}

		c.Next()
	}
}

// readOperatorPermissionsFromContext extracts permissions from the gin context.
func readOperatorPermissionsFromContext(c *gin.Context) ([]string, bool) {
	value, ok := c.Get("operatorPermissions")
	if !ok {
		return nil, false
	}
	permissionsList, ok := value.([]string)
	return permissionsList, ok
}

// readOperatorIsSuperFromContext extracts the super operator flag from context.
func readOperatorIsSuperFromContext(c *gin.Context) (bool, bool) {
	value, ok := c.Get("operatorIsSuper")
	if !ok {
		return false, false
	}
	flag, ok := value.(bool)
	return flag, ok
}
