package main

import (
	"log"
	"os"

	"github.com/iv9eni/ai-email-chat/internal/api"
	"github.com/iv9eni/ai-email-chat/internal/cli"
	"github.com/iv9eni/ai-email-chat/internal/config"
	"github.com/iv9eni/ai-email-chat/internal/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// CLI commands run and exit
	if len(os.Args) > 1 {
		cli.Execute(db, cfg)
		return
	}

	router, authManager, err := api.SetupRouter(db, cfg)
	if err != nil {
		log.Fatalf("Failed to setup router: %v", err)
	}

	log.Printf("Starting PostMind server on port %s", cfg.APIPort)
	log.Printf("Data directory: %s", cfg.DataDir)
	log.Printf("Database path: %s", cfg.DatabasePath)
	log.Printf("Subject filter: %q", cfg.SubjectFilter)
	log.Printf("API Key: %s", authManager.APIKeyManager.GetCurrentKey())
	if err := router.Run(":" + cfg.APIPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
