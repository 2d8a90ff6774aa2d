package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gliding-club-api/internal/models"
	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
	"github.com/noah-isme/gliding-club-api/pkg/response"
)

// RoleSelf lets a user through when the :id route parameter is their own id.
const RoleSelf = "SELF"

// RBAC enforces role-based access control. Roles are the user types.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowSelf := false
	allowedTypes := make(map[models.UserType]struct{}, len(allowed))
	for _, a := range allowed {
		if a == RoleSelf {
			allowSelf = true
			continue
		}
		allowedTypes[models.UserType(a)] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedTypes[claims.UserType]; ok {
			c.Next()
			return
		}

		if allowSelf {
			if targetID := c.Param("id"); targetID != "" && targetID == claims.UserID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "you do not have permission to access this resource"))
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of user types.
func RequireRoles(roles ...models.UserType) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}
