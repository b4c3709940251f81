package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dbmonitorapi/services/authz"
)

const identityKey = "username"

// IdentityResolver extracts the authenticated username from a request.
// Session and cookie mechanics live outside this service; the default
// resolver trusts the X-Auth-User header set by the session front.
type IdentityResolver func(c *gin.Context) string

var resolveIdentity IdentityResolver = func(c *gin.Context) string {
	return c.GetHeader("X-Auth-User")
}

// SetIdentityResolver replaces the identity resolver. Used at startup when a
// different session integration is configured, and by tests.
func SetIdentityResolver(r IdentityResolver) {
	if r != nil {
		resolveIdentity = r
	}
}

// currentUser returns the username attached by RequireAuth.
func currentUser(c *gin.Context) string {
	return c.GetString(identityKey)
}

// RequireAuth rejects unauthenticated requests with 401 and requests whose
// user lacks api_access with 403.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		username := resolveIdentity(c)
		if username == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !authzSrv.HasPermission(username, authz.PermAPIAccess) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Set(identityKey, username)
		c.Next()
	}
}

// RequirePermission gates a route group on a global permission atom.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authzSrv.HasPermission(currentUser(c), permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}
