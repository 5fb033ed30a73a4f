package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/session-scheduler-api/internal/models"
	appErrors "github.com/noah-isme/session-scheduler-api/pkg/errors"
	"github.com/noah-isme/session-scheduler-api/pkg/response"
)

// RequireRoles lets only callers holding one of roles through. Ownership is checked by the services.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		actor, ok := Actor(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[actor.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
