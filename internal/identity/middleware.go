package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxSessionClaims = "agora_session_claims"

// RequireSession returns a Gin middleware that enforces a valid Bearer
// session token. When role is non-empty the caller type must match it.
//
// A missing token aborts with 401; an invalid, expired, or wrong-role
// token aborts with 403. On success the *SessionClaims are injected into
// the context under the "agora_session_claims" key.
func RequireSession(sessions *SessionIssuer, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := sessions.Verify(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		if role != "" && claims.CallerType != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": role + " token required",
			})
			return
		}

		c.Set(ctxSessionClaims, claims)
		c.Next()
	}
}

// SessionFromCtx retrieves the session claims injected by RequireSession.
func SessionFromCtx(c *gin.Context) *SessionClaims {
	v, _ := c.Get(ctxSessionClaims)
	claims, _ := v.(*SessionClaims)
	return claims
}
