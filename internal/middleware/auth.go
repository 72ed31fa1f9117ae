package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edustack/campus-api/internal/models"
	appErrors "github.com/edustack/campus-api/pkg/errors"
	"github.com/edustack/campus-api/pkg/response"
)

// ContextUserKey is the gin context key holding the resolved identity.
const ContextUserKey = "currentIdentity"

type sessionResolver interface {
	VerifyToken(tokenString string) (*models.TokenClaims, error)
	ResolveIdentity(ctx context.Context, userID string) (*models.Identity, error)
}

// Auth verifies the bearer token and resolves the acting identity fresh from
// storage on every request. The token carries no role, so role changes, the
// system admin override and deactivations are all applied here, not at issue
// time.
func Auth(sessions sessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, appErrors.Clone(appErrors.ErrUnauthorized, "missing authorization header"))
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			abort(c, appErrors.Clone(appErrors.ErrUnauthorized, "malformed authorization header"))
			return
		}

		claims, err := sessions.VerifyToken(parts[1])
		if err != nil {
			abort(c, err)
			return
		}

		identity, err := sessions.ResolveIdentity(c.Request.Context(), claims.UserID)
		if err != nil {
			abort(c, err)
			return
		}

		c.Set(ContextUserKey, identity)
		c.Next()
	}
}

// CurrentIdentity returns the identity stored by Auth, or nil outside an
// authenticated route.
func CurrentIdentity(c *gin.Context) *models.Identity {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	identity, ok := value.(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}

func abort(c *gin.Context, err error) {
	response.Error(c, err)
	c.Abort()
}
