package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/handoff/internal/auth"
	"github.com/charlesng35/handoff/pkg/errors"
	"github.com/charlesng35/handoff/pkg/response"
)

const (
	CtxClaimsKey  = "authClaims"
	CtxUserIDKey  = "userID"
	CtxRoleKey    = "role"
	CtxTokenIDKey = "tokenID"

	// QueryTokenParam carries the access token for clients that cannot set headers, such as
	// browser websocket handshakes.
	QueryTokenParam = "token"
)

// Auth enforces JWT authentication using the supplied JWT service. The token is read from the
// Authorization header, falling back to the token query parameter.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.Verify(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrTokenInvalid.WithInternal(err))
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxRoleKey, claims.Role)
		c.Set(CtxTokenIDKey, claims.ID)

		c.Next()
	}
}

// ClaimsFrom returns the claims stored by Auth.
func ClaimsFrom(c *gin.Context) (*iauth.Claims, bool) {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*iauth.Claims)
	return claims, ok && claims != nil
}

func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) >= 8 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return strings.TrimSpace(c.Query(QueryTokenParam))
}
