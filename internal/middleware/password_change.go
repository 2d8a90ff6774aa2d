package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/gliding-club-api/pkg/errors"
	"github.com/noah-isme/gliding-club-api/pkg/response"
)

type passwordStatusReader interface {
	PasswordChangeRequired(ctx context.Context, userID string) (bool, error)
}

var passwordChangeExempt = []string{"/auth/password", "/auth/me", "/auth/logout"}

// PasswordChange blocks users who still have to replace their initial
// password. The token claim is only a hint: the stored flag is consulted
// before rejecting, so a token issued before the change keeps working.
func PasswordChange(prefix string, status passwordStatusReader) gin.HandlerFunc {
	prefix = strings.TrimRight(prefix, "/")
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok || !claims.PasswordChangeRequired {
			c.Next()
			return
		}
		path := strings.TrimPrefix(c.Request.URL.Path, prefix)
		for _, exempt := range passwordChangeExempt {
			if path == exempt {
				c.Next()
				return
			}
		}

		required, err := status.PasswordChangeRequired(c.Request.Context(), claims.UserID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if required {
			response.Error(c, appErrors.ErrPasswordChangeRequired)
			c.Abort()
			return
		}
		c.Next()
	}
}
