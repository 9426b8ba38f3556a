package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/vuserver/internal/auth"
)

// Context keys set by Auth
const (
	ContextClaims   = "claims"
	ContextUsername = "username"
)

const accessTokenCookieName = "vu_access"

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// Auth middleware validates JWT tokens
func Auth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		claims, err := validator.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextUsername, claims.Username)
		c.Next()
	}
}

// extractToken reads the bearer header, then the access cookie, then the
// token query parameter used by WebSocket clients.
func extractToken(c *gin.Context) (string, bool) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}

	if cookie, err := c.Cookie(accessTokenCookieName); err == nil && cookie != "" {
		return cookie, true
	}

	return c.Query("token"), true
}

// SetAccessCookie stores the token in an HTTP-only cookie for browser clients.
func SetAccessCookie(c *gin.Context, token string, maxAgeSeconds int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(accessTokenCookieName, token, maxAgeSeconds, "/", "", c.Request.TLS != nil, true)
}
