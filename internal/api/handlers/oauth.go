package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/iv9eni/ai-email-chat/internal/database/models"
	"github.com/iv9eni/ai-email-chat/internal/oauth"
	"github.com/iv9eni/ai-email-chat/internal/services"
)

// stateTTL is how long an authorization flow may take before the state
// token is rejected
const stateTTL = 10 * time.Minute

// OAuthHandler drives the provider authorization flow for connecting
// OAuth2 mailboxes
type OAuthHandler struct {
	registry       *oauth.Registry
	accountService *services.AccountService
	stateStore     *StateStore
}

// StateStore stores OAuth state tokens for in-flight flows
type StateStore struct {
	mu     sync.RWMutex
	states map[string]*OAuthState
}

// OAuthState records which provider a state token belongs to
type OAuthState struct {
	Provider  string
	CreatedAt time.Time
}

// NewOAuthHandler creates a new OAuthHandler instance
func NewOAuthHandler(registry *oauth.Registry, accountService *services.AccountService) *OAuthHandler {
	return &OAuthHandler{
		registry:       registry,
		accountService: accountService,
		stateStore: &StateStore{
			states: make(map[string]*OAuthState),
		},
	}
}

// ListProviders returns the configured OAuth providers
// GET /api/oauth/providers
func (h *OAuthHandler) ListProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"providers": h.registry.Names(),
		},
	})
}

// GetAuthURL returns the authorization URL for a provider
// GET /api/oauth/:provider/auth
func (h *OAuthHandler) GetAuthURL(c *gin.Context) {
	providerName := c.Param("provider")
	provider, err := h.registry.Get(providerName)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "OAUTH_NOT_CONFIGURED",
				"message": "OAuth provider not configured: " + providerName,
			},
		})
		return
	}

	state := uuid.NewString()

	h.stateStore.mu.Lock()
	h.stateStore.states[state] = &OAuthState{
		Provider:  providerName,
		CreatedAt: time.Now(),
	}
	h.stateStore.mu.Unlock()

	go h.cleanupOldStates()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"auth_url": provider.AuthCodeURL(state),
		},
	})
}

// Callback handles the provider redirect after user consent
// GET /api/oauth/:provider/callback
func (h *OAuthHandler) Callback(c *gin.Context) {
	providerName := c.Param("provider")
	code := c.Query("code")
	state := c.Query("state")
	errorParam := c.Query("error")

	if errorParam != "" {
		c.Redirect(http.StatusFound, "/?oauth_error="+errorParam)
		return
	}

	if code == "" || state == "" {
		c.Redirect(http.StatusFound, "/?oauth_error=missing_params")
		return
	}

	h.stateStore.mu.Lock()
	oauthState, exists := h.stateStore.states[state]
	delete(h.stateStore.states, state)
	h.stateStore.mu.Unlock()

	if !exists || oauthState.Provider != providerName {
		c.Redirect(http.StatusFound, "/?oauth_error=invalid_state")
		return
	}
	if time.Since(oauthState.CreatedAt) > stateTTL {
		c.Redirect(http.StatusFound, "/?oauth_error=state_expired")
		return
	}

	provider, err := h.registry.Get(providerName)
	if err != nil {
		c.Redirect(http.StatusFound, "/?oauth_error=provider_not_configured")
		return
	}

	ctx := c.Request.Context()

	token, err := provider.Exchange(ctx, code)
	if err != nil {
		c.Redirect(http.StatusFound, "/?oauth_error=token_exchange_failed")
		return
	}

	email, err := provider.UserEmail(ctx, token.AccessToken)
	if err != nil {
		c.Redirect(http.StatusFound, "/?oauth_error=get_email_failed")
		return
	}

	defaults := provider.Defaults()
	account := &models.EmailAccount{
		EmailAddress:   email,
		IMAPHost:       defaults.IMAPHost,
		IMAPPort:       defaults.IMAPPort,
		SMTPHost:       defaults.SMTPHost,
		SMTPPort:       defaults.SMTPPort,
		Username:       email,
		UseSSL:         true,
		Provider:       provider.Name(),
		TokenExpiresAt: token.Expiry,
	}

	if _, err := h.accountService.UpsertOAuthAccount(account, token.AccessToken, token.RefreshToken); err != nil {
		c.Redirect(http.StatusFound, "/?oauth_error=save_account_failed")
		return
	}

	c.Redirect(http.StatusFound, "/?oauth_success="+provider.Name()+"&email="+email)
}

// cleanupOldStates removes states older than the flow TTL
func (h *OAuthHandler) cleanupOldStates() {
	h.stateStore.mu.Lock()
	defer h.stateStore.mu.Unlock()

	for state, oauthState := range h.stateStore.states {
		if time.Since(oauthState.CreatedAt) > stateTTL {
			delete(h.stateStore.states, state)
		}
	}
}
