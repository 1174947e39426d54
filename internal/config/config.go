package config

import (
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	DatabasePath  string `json:"database_path"`
	APIPort       string `json:"api_port"`
	LogLevel      string `json:"log_level"`
	DataDir       string `json:"data_dir"`
	JWTSecret     string `json:"jwt_secret"`
	EncryptionKey string `json:"encryption_key"` // key used to encrypt mailbox secrets
	CORSOrigins   string `json:"cors_origins"`   // comma separated, * means all

	// Polling
	SubjectFilter  string `json:"subject_filter"`
	PollIntervalMS int    `json:"poll_interval_ms"`

	// OAuth2 providers
	OAuthRedirectBaseURL  string `json:"oauth_redirect_base_url"`
	GoogleClientID        string `json:"google_client_id"`
	GoogleClientSecret    string `json:"google_client_secret"`
	MicrosoftClientID     string `json:"microsoft_client_id"`
	MicrosoftClientSecret string `json:"microsoft_client_secret"`
	MicrosoftTenant       string `json:"microsoft_tenant"`

	// AI generation
	AIProvider string `json:"ai_provider"`
	AIAPIKey   string `json:"ai_api_key"`
	AIModel    string `json:"ai_model"`
	AIBaseURL  string `json:"ai_base_url"`
}

// Default configuration values
const (
	DefaultDatabasePath    = "data/postmind.db"
	DefaultAPIPort         = "8080"
	DefaultLogLevel        = "INFO"
	DefaultDataDir         = "data"
	DefaultJWTSecret       = "postmind-default-secret-change-in-production"
	DefaultEncryptionKey   = "" // empty means derive from JWTSecret
	DefaultCORSOrigins     = "*"
	DefaultSubjectFilter   = "[AI_REQUEST]"
	DefaultPollIntervalMS  = 60000
	DefaultRedirectBase    = "http://localhost:8080"
	DefaultMicrosoftTenant = "common"
	DefaultAIProvider      = "ollama"
	DefaultAIModel         = "llama3"
	DefaultAIBaseURL       = ""
)

// Load loads configuration from environment variables and config file
// Priority: Environment variables > .env file > Config file > Default values
func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath:         DefaultDatabasePath,
		APIPort:              DefaultAPIPort,
		LogLevel:             DefaultLogLevel,
		DataDir:              DefaultDataDir,
		JWTSecret:            DefaultJWTSecret,
		EncryptionKey:        DefaultEncryptionKey,
		CORSOrigins:          DefaultCORSOrigins,
		SubjectFilter:        DefaultSubjectFilter,
		PollIntervalMS:       DefaultPollIntervalMS,
		OAuthRedirectBaseURL: DefaultRedirectBase,
		MicrosoftTenant:      DefaultMicrosoftTenant,
		AIProvider:           DefaultAIProvider,
		AIModel:              DefaultAIModel,
		AIBaseURL:            DefaultAIBaseURL,
	}

	// Config file is optional
	if err := cfg.loadFromFile(); err != nil {
		return nil, err
	}

	// Override with environment variables
	cfg.loadFromEnv()

	return cfg, nil
}

// loadFromFile loads configuration from config.json file
func (c *Config) loadFromFile() error {
	configPaths := []string{
		"config.json",
		filepath.Join(c.DataDir, "config.json"),
	}

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		if err := json.Unmarshal(data, c); err != nil {
			return err
		}
		return nil
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if val := os.Getenv("POSTMIND_DATABASE_PATH"); val != "" {
		c.DatabasePath = val
	}
	if val := os.Getenv("POSTMIND_API_PORT"); val != "" {
		c.APIPort = val
	}
	if val := os.Getenv("POSTMIND_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("POSTMIND_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("POSTMIND_JWT_SECRET"); val != "" {
		c.JWTSecret = val
	}
	if val := os.Getenv("POSTMIND_ENCRYPTION_KEY"); val != "" {
		c.EncryptionKey = val
	}
	if val := os.Getenv("POSTMIND_CORS_ORIGINS"); val != "" {
		c.CORSOrigins = val
	}
	if val := os.Getenv("POSTMIND_SUBJECT_FILTER"); val != "" {
		c.SubjectFilter = val
	}
	if val := os.Getenv("POSTMIND_POLL_INTERVAL_MS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			c.PollIntervalMS = n
		}
	}
	if val := os.Getenv("POSTMIND_OAUTH_REDIRECT_BASE_URL"); val != "" {
		c.OAuthRedirectBaseURL = val
	}
	if val := os.Getenv("POSTMIND_GOOGLE_CLIENT_ID"); val != "" {
		c.GoogleClientID = val
	}
	if val := os.Getenv("POSTMIND_GOOGLE_CLIENT_SECRET"); val != "" {
		c.GoogleClientSecret = val
	}
	if val := os.Getenv("POSTMIND_MICROSOFT_CLIENT_ID"); val != "" {
		c.MicrosoftClientID = val
	}
	if val := os.Getenv("POSTMIND_MICROSOFT_CLIENT_SECRET"); val != "" {
		c.MicrosoftClientSecret = val
	}
	if val := os.Getenv("POSTMIND_MICROSOFT_TENANT"); val != "" {
		c.MicrosoftTenant = val
	}
	if val := os.Getenv("POSTMIND_AI_PROVIDER"); val != "" {
		c.AIProvider = val
	}
	if val := os.Getenv("POSTMIND_AI_API_KEY"); val != "" {
		c.AIAPIKey = val
	}
	if val := os.Getenv("POSTMIND_AI_MODEL"); val != "" {
		c.AIModel = val
	}
	if val := os.Getenv("POSTMIND_AI_BASE_URL"); val != "" {
		c.AIBaseURL = val
	}
}

// GetEncryptionKey returns the 32-byte key used for secret encryption
// If EncryptionKey is set, use it; otherwise derive from JWTSecret
func (c *Config) GetEncryptionKey() []byte {
	if c.EncryptionKey != "" {
		hash := sha256.Sum256([]byte(c.EncryptionKey))
		return hash[:]
	}
	hash := sha256.Sum256([]byte(c.JWTSecret + "-encryption"))
	return hash[:]
}

// Save saves the current configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
