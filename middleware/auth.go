package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	UserKey  = "userID"
	AdminKey = "adminID"
)

// AuthMiddleware trusts the identity header set by the upstream gateway.
// Token verification happens there; this service only passes the id through.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Set(UserKey, userID)
		c.Next()
	}
}

// AdminMiddleware guards the operator surfaces.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		adminID := c.GetHeader("X-Admin-ID")
		if adminID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Set(AdminKey, adminID)
		c.Next()
	}
}

func GetUserID(c *gin.Context) string {
	if val, exists := c.Get(UserKey); exists {
		return val.(string)
	}
	return ""
}

func GetAdminID(c *gin.Context) string {
	if val, exists := c.Get(AdminKey); exists {
		return val.(string)
	}
	return ""
}
