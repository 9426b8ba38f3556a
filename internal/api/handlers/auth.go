package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/vuserver/internal/api/middleware"
	"github.com/TheGojiOG/vuserver/internal/auth"
)

// AuthHandler issues access tokens for the admin account
type AuthHandler struct {
	authenticator *auth.Authenticator
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authenticator *auth.Authenticator) *AuthHandler {
	return &AuthHandler{authenticator: authenticator}
}

// Login exchanges credentials for an access token
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	token, expiresAt, err := h.authenticator.Login(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.Set(middleware.ContextUsername, req.Username)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	middleware.SetAccessCookie(c, token, int(time.Until(expiresAt).Seconds()))
	c.Set(middleware.ContextUsername, req.Username)

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   expiresAt,
	})
}

// GetCurrentUser returns the authenticated username
// GET /api/v1/auth/me
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	claims, ok := c.MustGet(middleware.ContextClaims).(*auth.Claims)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username":   claims.Username,
		"expires_at": claims.ExpiresAt,
	})
}
