package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/remindly-app/remindly-api/internal/models"
	appErrors "github.com/remindly-app/remindly-api/pkg/errors"
	"github.com/remindly-app/remindly-api/pkg/response"
)

// SelfSentinel, when listed among RBAC roles, admits a caller whose user ID
// matches the :id route parameter regardless of role.
const SelfSentinel = "SELF"

// RBAC gates a route on the caller's role.
func RBAC(allowed ...string) gin.HandlerFunc {
	roles := make(map[models.UserRole]struct{}, len(allowed))
	allowSelf := false
	for _, a := range allowed {
		if a == SelfSentinel {
			allowSelf = true
			continue
		}
		roles[models.UserRole(a)] = struct{}{}
	}

	return func(c *gin.Context) {
		v, ok := c.Get(ContextUserKey)
		if !ok {
			abortWith(c, appErrors.ErrUnauthorized)
			return
		}
		claims := v.(*models.JWTClaims)

		if _, ok := roles[claims.Role]; ok {
			c.Next()
			return
		}
		if allowSelf && c.Param("id") == claims.UserID {
			c.Next()
			return
		}
		abortWith(c, appErrors.ErrForbidden)
	}
}

// RequireRoles gates a route on an explicit role list.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return RBAC(names...)
}

func abortWith(c *gin.Context, err error) {
	response.Error(c, err)
	c.Abort()
}
