package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/iv9eni/ai-email-chat/internal/api/handlers"
	"github.com/iv9eni/ai-email-chat/internal/api/middleware"
	"github.com/iv9eni/ai-email-chat/internal/config"
	"github.com/iv9eni/ai-email-chat/internal/functions/ai"
	"github.com/iv9eni/ai-email-chat/internal/oauth"
	"github.com/iv9eni/ai-email-chat/internal/services"
	"gorm.io/gorm"
)

// SetupRouter initializes the Gin router, wires the service graph and
// starts the background poll scheduler
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *middleware.AuthManager, error) {
	router := gin.Default()

	router.Use(cors.New(corsConfig(cfg.CORSOrigins)))

	authManager, err := middleware.NewAuthManager(cfg.DataDir, cfg.JWTSecret, middleware.DefaultTokenExpiry)
	if err != nil {
		return nil, nil, err
	}

	// Service graph
	logService := services.NewLogServiceWithLevel(db, cfg.LogLevel)
	accountService := services.NewAccountService(db, cfg.GetEncryptionKey(), logService)

	registry := oauth.NewRegistry(
		oauth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectBaseURL),
		oauth.NewMicrosoftProvider(cfg.MicrosoftClientID, cfg.MicrosoftClientSecret, cfg.MicrosoftTenant, cfg.OAuthRedirectBaseURL),
	)

	tokenService := services.NewTokenService(accountService, registry, logService)
	transport := services.NewTransport(accountService, tokenService)
	conversationService := services.NewConversationService(db, logService)
	senderService := services.NewSenderService(transport, logService)
	diagnosticsService := services.NewDiagnosticsService(accountService, transport)

	aiClient := ai.NewClient()
	aiClient.ConfigureWithBaseURL(cfg.AIProvider, cfg.AIAPIKey, cfg.AIModel, cfg.AIBaseURL)

	receiver := services.NewReceiverService(transport, conversationService, aiClient, senderService, logService, cfg.SubjectFilter)

	pollScheduler := services.NewPollScheduler(db, receiver, tokenService, logService,
		time.Duration(cfg.PollIntervalMS)*time.Millisecond)
	pollScheduler.Start()

	// Handlers
	authHandler := handlers.NewAuthHandler(authManager)
	accountHandler := handlers.NewAccountHandler(accountService, diagnosticsService, pollScheduler)
	conversationHandler := handlers.NewConversationHandler(conversationService)
	oauthHandler := handlers.NewOAuthHandler(registry, accountService)
	logHandler := handlers.NewLogHandler(logService)

	// Health check endpoint (no auth required)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		// Provider redirects cannot carry our headers
		api.GET("/oauth/:provider/callback", oauthHandler.Callback)

		// API key required from here on
		keyed := api.Group("")
		keyed.Use(middleware.APIKeyMiddleware(authManager.APIKeyManager))
		{
			keyed.POST("/auth/session", authHandler.CreateSession)
		}

		// Session token required for everything else
		protected := api.Group("")
		protected.Use(middleware.JWTMiddleware(authManager.JWTManager))
		{
			protected.POST("/auth/key/reset", authHandler.ResetAPIKey)

			accounts := protected.Group("/accounts")
			{
				accounts.GET("", accountHandler.ListAccounts)
				accounts.POST("", accountHandler.CreateAccount)
				accounts.POST("/test", accountHandler.TestConnectionDirect)
				accounts.GET("/:id", accountHandler.GetAccount)
				accounts.PUT("/:id", accountHandler.UpdateAccount)
				accounts.DELETE("/:id", accountHandler.DeleteAccount)
				accounts.POST("/:id/test", accountHandler.TestConnection)
				accounts.POST("/:id/poll", accountHandler.PollAccount)
				accounts.PUT("/:id/activate", accountHandler.SetAccountActive(true))
				accounts.PUT("/:id/deactivate", accountHandler.SetAccountActive(false))
			}

			conversations := protected.Group("/conversations")
			{
				conversations.GET("", conversationHandler.ListConversations)
				conversations.GET("/:id", conversationHandler.GetConversation)
				conversations.DELETE("/:id", conversationHandler.DeleteConversation)
			}

			oauthGroup := protected.Group("/oauth")
			{
				oauthGroup.GET("/providers", oauthHandler.ListProviders)
				oauthGroup.GET("/:provider/auth", oauthHandler.GetAuthURL)
			}

			protected.GET("/logs", logHandler.QueryLogs)
		}
	}

	return router, authManager, nil
}

// corsConfig builds the CORS policy from the comma separated origins list
func corsConfig(origins string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	origins = strings.TrimSpace(origins)
	if origins == "" || origins == "*" {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
		return cfg
	}

	for _, origin := range strings.Split(origins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}
	return cfg
}
