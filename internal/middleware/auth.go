package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/mis-api/internal/model"
	apperrors "github.com/jwalitptl/mis-api/pkg/errors"
	"github.com/jwalitptl/mis-api/pkg/httputil"
)

// ContextUser is the gin context key of the authenticated user
const ContextUser = "user"

// Authenticator resolves a bearer access token to a stored user
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*model.User, error)
}

type AuthMiddleware struct {
	authenticator Authenticator
}

func NewAuthMiddleware(authenticator Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Authenticate verifies the JWT and loads the user into the context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized("Authentication credentials were not provided.", nil))
			c.Abort()
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.RespondWithError(c, apperrors.Unauthorized("Authorization header must contain two space-delimited values", nil))
			c.Abort()
			return
		}

		user, err := m.authenticator.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			httputil.RespondWithError(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUser, user)
		c.Request = c.Request.WithContext(withUserLogger(c.Request.Context(), user))
		c.Next()
	}
}

// CurrentUser returns the user set by Authenticate, or nil
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}
