package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/iv9eni/ai-email-chat/internal/api/middleware"
)

// AuthHandler exchanges the operator API key for session tokens
type AuthHandler struct {
	authManager *middleware.AuthManager
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(authManager *middleware.AuthManager) *AuthHandler {
	return &AuthHandler{
		authManager: authManager,
	}
}

// CreateSession issues a session token. The API key middleware has
// already authenticated the caller by the time this runs.
// POST /api/auth/session
func (h *AuthHandler) CreateSession(c *gin.Context) {
	token, expiresAt, err := h.authManager.JWTManager.GenerateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to generate session token",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"token":      token,
			"expires_at": expiresAt,
		},
	})
}

// ResetAPIKey rotates the operator API key
// POST /api/auth/key/reset
func (h *AuthHandler) ResetAPIKey(c *gin.Context) {
	key, err := h.authManager.APIKeyManager.ResetKey()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to reset API key",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"api_key": key,
		},
	})
}
