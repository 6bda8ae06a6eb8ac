package auth

import (
	"net/http"
	"strings"

	"github.com/KevinKickass/OpenShmInspector/internal/types"
	"github.com/gin-gonic/gin"
)

const (
	permissionsKey = "permissions"
	usernameKey    = "username"
	roleKey        = "role"
)

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, types.NewErrorResponse(types.CodeUnauthorized, message, nil))
}

// bearerToken extracts the token of an "Authorization: Bearer <token>" header.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", false
	}
	return token, true
}

// AuthMiddleware validates bearer tokens and stores the caller's permissions.
func (a *AuthService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			unauthorized(c, "missing authorization header")
			return
		}

		token, ok := bearerToken(header)
		if !ok {
			unauthorized(c, "invalid authorization header format")
			return
		}

		claims, perms, err := a.ValidateToken(token)
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(permissionsKey, perms)
		c.Set(usernameKey, claims.Username)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// RequirePermission rejects callers whose role lacks the permission.
func RequirePermission(required Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Allowed(c, required) {
			Forbid(c, required)
			return
		}
		c.Next()
	}
}

// Allowed reports whether the authenticated caller holds the permission.
func Allowed(c *gin.Context, required Permission) bool {
	perms, _ := c.Get(permissionsKey)
	granted, _ := perms.([]Permission)
	return HasPermission(granted, required)
}

// Forbid aborts the request with 403.
func Forbid(c *gin.Context, required Permission) {
	c.AbortWithStatusJSON(http.StatusForbidden, types.NewErrorResponse(
		types.CodeForbidden, "insufficient permissions", gin.H{"required": required}))
}

// Username returns the authenticated caller, or "" when unauthenticated.
func Username(c *gin.Context) string {
	return c.GetString(usernameKey)
}
