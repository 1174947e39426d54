package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/iv9eni/ai-email-chat/internal/database/models"
	"github.com/iv9eni/ai-email-chat/internal/services"
)

// AccountHandler handles email account related requests
type AccountHandler struct {
	accountService     *services.AccountService
	diagnosticsService *services.DiagnosticsService
	pollScheduler      *services.PollScheduler
}

// NewAccountHandler creates a new AccountHandler instance
func NewAccountHandler(accountService *services.AccountService, diagnosticsService *services.DiagnosticsService, pollScheduler *services.PollScheduler) *AccountHandler {
	return &AccountHandler{
		accountService:     accountService,
		diagnosticsService: diagnosticsService,
		pollScheduler:      pollScheduler,
	}
}

// CreateAccountRequest represents the request to create an email account
type CreateAccountRequest struct {
	EmailAddress string `json:"email_address" binding:"required,email"`
	IMAPHost     string `json:"imap_host" binding:"required"`
	IMAPPort     int    `json:"imap_port" binding:"required"`
	SMTPHost     string `json:"smtp_host" binding:"required"`
	SMTPPort     int    `json:"smtp_port" binding:"required"`
	Username     string `json:"username" binding:"required"`
	Password     string `json:"password" binding:"required"`
	UseSSL       bool   `json:"use_ssl"`
}

// UpdateAccountRequest represents the request to update an email account
type UpdateAccountRequest struct {
	IMAPHost string `json:"imap_host"`
	IMAPPort int    `json:"imap_port"`
	SMTPHost string `json:"smtp_host"`
	SMTPPort int    `json:"smtp_port"`
	Username string `json:"username"`
	Password string `json:"password"`
	UseSSL   *bool  `json:"use_ssl"`
}

// AccountResponse represents the response for an email account
type AccountResponse struct {
	ID             uint   `json:"id"`
	EmailAddress   string `json:"email_address"`
	IMAPHost       string `json:"imap_host"`
	IMAPPort       int    `json:"imap_port"`
	SMTPHost       string `json:"smtp_host"`
	SMTPPort       int    `json:"smtp_port"`
	Username       string `json:"username"`
	UseSSL         bool   `json:"use_ssl"`
	AuthType       string `json:"auth_type"`
	Provider       string `json:"provider,omitempty"`
	TokenExpiresAt int64  `json:"token_expires_at,omitempty"`
	Active         bool   `json:"active"`
	CreatedAt      int64  `json:"created_at"`
}

// toAccountResponse converts an EmailAccount model to AccountResponse
func toAccountResponse(account *models.EmailAccount) AccountResponse {
	resp := AccountResponse{
		ID:           account.ID,
		EmailAddress: account.EmailAddress,
		IMAPHost:     account.IMAPHost,
		IMAPPort:     account.IMAPPort,
		SMTPHost:     account.SMTPHost,
		SMTPPort:     account.SMTPPort,
		Username:     account.Username,
		UseSSL:       account.UseSSL,
		AuthType:     account.AuthType,
		Provider:     account.Provider,
		Active:       account.Active,
		CreatedAt:    account.CreatedAt.Unix(),
	}
	if !account.TokenExpiresAt.IsZero() {
		resp.TokenExpiresAt = account.TokenExpiresAt.Unix()
	}
	return resp
}

// parseIDParam parses the :id path parameter
func parseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid account ID",
			},
		})
		return 0, false
	}
	return uint(id), true
}

// ListAccounts returns all configured email accounts
// GET /api/accounts
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.accountService.ListAccounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to retrieve accounts",
			},
		})
		return
	}

	response := make([]AccountResponse, 0, len(accounts))
	for i := range accounts {
		response = append(response, toAccountResponse(&accounts[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    response,
	})
}

// CreateAccount creates a new password-authenticated email account
// POST /api/accounts
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request body",
				"details": err.Error(),
			},
		})
		return
	}

	account, err := h.accountService.CreateAccount(services.CreateAccountInput{
		EmailAddress: req.EmailAddress,
		IMAPHost:     req.IMAPHost,
		IMAPPort:     req.IMAPPort,
		SMTPHost:     req.SMTPHost,
		SMTPPort:     req.SMTPPort,
		Username:     req.Username,
		Password:     req.Password,
		UseSSL:       req.UseSSL,
	})
	if err != nil {
		if errors.Is(err, services.ErrAccountAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "CONFLICT",
					"message": "Email account already exists",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to create account",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    toAccountResponse(account),
	})
}

// GetAccount returns a specific email account
// GET /api/accounts/:id
func (h *AccountHandler) GetAccount(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	account, err := h.accountService.GetAccountByID(id)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_FOUND",
					"message": "Account not found",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to retrieve account",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    toAccountResponse(account),
	})
}

// UpdateAccount updates an email account
// PUT /api/accounts/:id
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request body",
				"details": err.Error(),
			},
		})
		return
	}

	account, err := h.accountService.UpdateAccount(id, services.UpdateAccountInput{
		IMAPHost: req.IMAPHost,
		IMAPPort: req.IMAPPort,
		SMTPHost: req.SMTPHost,
		SMTPPort: req.SMTPPort,
		Username: req.Username,
		Password: req.Password,
		UseSSL:   req.UseSSL,
	})
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_FOUND",
					"message": "Account not found",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to update account",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    toAccountResponse(account),
	})
}

// DeleteAccount deletes an email account
// DELETE /api/accounts/:id
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	if err := h.accountService.DeleteAccount(id); err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_FOUND",
					"message": "Account not found",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to delete account",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}

// SetAccountActive activates or deactivates an account
// PUT /api/accounts/:id/activate and /api/accounts/:id/deactivate
func (h *AccountHandler) SetAccountActive(active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseIDParam(c)
		if !ok {
			return
		}

		account, err := h.accountService.SetAccountActive(id, active)
		if err != nil {
			if errors.Is(err, services.ErrAccountNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"success": false,
					"error": gin.H{
						"code":    "NOT_FOUND",
						"message": "Account not found",
					},
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INTERNAL_ERROR",
					"message": "Failed to change account status",
				},
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    toAccountResponse(account),
		})
	}
}

// TestConnection probes the saved account's mail servers
// POST /api/accounts/:id/test
func (h *AccountHandler) TestConnection(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	account, err := h.accountService.GetAccountByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Account not found",
			},
		})
		return
	}

	result := h.diagnosticsService.TestConnection(c.Request.Context(), account)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// TestConnectionDirectRequest represents credentials to probe without saving
type TestConnectionDirectRequest struct {
	IMAPHost string `json:"imap_host" binding:"required"`
	IMAPPort int    `json:"imap_port" binding:"required"`
	SMTPHost string `json:"smtp_host" binding:"required"`
	SMTPPort int    `json:"smtp_port" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	UseSSL   bool   `json:"use_ssl"`
}

// TestConnectionDirect probes mail servers with provided credentials
// POST /api/accounts/test
func (h *AccountHandler) TestConnectionDirect(c *gin.Context) {
	var req TestConnectionDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request body",
				"details": err.Error(),
			},
		})
		return
	}

	result := h.diagnosticsService.TestConnectionDirect(services.TestConnectionInput{
		IMAPHost: req.IMAPHost,
		IMAPPort: req.IMAPPort,
		SMTPHost: req.SMTPHost,
		SMTPPort: req.SMTPPort,
		Username: req.Username,
		Password: req.Password,
		UseSSL:   req.UseSSL,
	})

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// PollAccount triggers a one-off poll of an account outside the schedule
// POST /api/accounts/:id/poll
func (h *AccountHandler) PollAccount(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	account, err := h.accountService.GetAccountByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Account not found",
			},
		})
		return
	}

	stats, acquired, err := h.pollScheduler.PollAccountNow(context.Background(), account)
	if !acquired {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CONFLICT",
				"message": "Account is already being polled",
			},
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "POLL_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"matched":  stats.Matched,
			"answered": stats.Answered,
			"skipped":  stats.Skipped,
		},
	})
}
