package cli

import (
	"fmt"
	"os"

	"github.com/iv9eni/ai-email-chat/internal/api/middleware"
	"github.com/iv9eni/ai-email-chat/internal/config"
	"github.com/iv9eni/ai-email-chat/internal/services"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	db             *gorm.DB
	cfg            *config.Config
	apiKeyManager  *middleware.APIKeyManager
	accountService *services.AccountService
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "postmind",
	Short: "AI email auto-responder service",
	Long: `PostMind watches configured mailboxes for assistant requests and
answers them with AI-generated replies, threading each exchange into a
per-correspondent conversation.

The command line tool manages the running installation:
  postmind key show             # show the current API key
  postmind key reset            # rotate the API key
  postmind account list         # list configured accounts
  postmind account add          # add a password-authenticated account
  postmind account remove <id>  # delete an account
  postmind account activate <id>
  postmind account deactivate <id>

Run without arguments to start the API server and poll scheduler.`,
}

// Execute runs the CLI with the provided database and config
func Execute(database *gorm.DB, config *config.Config) {
	db = database
	cfg = config

	var err error
	apiKeyManager, err = middleware.NewAPIKeyManager(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize API key manager: %v\n", err)
		os.Exit(1)
	}

	logService := services.NewLogServiceWithLevel(db, cfg.LogLevel)
	accountService = services.NewAccountService(db, cfg.GetEncryptionKey(), logService)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(accountCmd)
}
