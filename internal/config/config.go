// Package config loads the service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Storage backends selectable with STORAGE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
)

// Config holds every setting read at startup.
type Config struct {
	DevMode     bool
	FrontendURL string
	LogLevel    string
	HTTPAddr    string

	StorageBackend      string
	FileStoreTable      string
	UserTokensTable     string
	ProcessingLockTable string
	DatabaseURL         string

	KMSKeyID string

	GoogleClientID    string
	GoogleRedirectURL string

	// SSM parameter names (env var names in dev mode, see secret.EnvResolver).
	GoogleClientSecretParam string
	JWTSecretParam          string
	APIGatewaySecretParam   string
	ScrapeCreatorsKeyParam  string

	ScrapeCreatorsURL string
	TranscriptTimeout time.Duration

	// InlineProcessing runs pipeline jobs synchronously without stage delays.
	InlineProcessing bool
}

// LoadDotEnv preloads variables from the given files (default ".env").
// Missing files are not an error.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			log.Debug().Str("file", f).Err(err).Msg(".env not loaded")
		}
	}
}

// Load reads the configuration from the environment.
func Load() Config {
	cfg := Config{
		DevMode:     boolEnv("DEV_MODE", false),
		FrontendURL: envOrDefault("FRONTEND_URL", "http://localhost:3000"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		HTTPAddr:    envOrDefault("HTTP_ADDR", ":8080"),

		FileStoreTable:      envOrDefault("FILE_STORE_TABLE", "FileStore"),
		UserTokensTable:     envOrDefault("USER_TOKENS_TABLE", "UserTokens"),
		ProcessingLockTable: envOrDefault("PROCESSING_LOCK_TABLE", "ProcessingLocks"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),

		KMSKeyID: envOrDefault("KMS_KEY_ID", "alias/notabl-token-key"),

		GoogleClientID:    os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleRedirectURL: os.Getenv("GOOGLE_REDIRECT_URL"),

		GoogleClientSecretParam: envOrDefault("GOOGLE_CLIENT_SECRET_PARAM", "/notabl/google-client-secret"),
		JWTSecretParam:          envOrDefault("JWT_SECRET_PARAM", "/notabl/jwt-secret"),
		APIGatewaySecretParam:   envOrDefault("API_GATEWAY_SECRET_PARAM", "/notabl/api-gateway-secret"),
		ScrapeCreatorsKeyParam:  envOrDefault("SCRAPE_CREATORS_API_KEY_PARAM", "/notabl/scrape-creators-api-key"),

		ScrapeCreatorsURL: envOrDefault("SCRAPE_CREATORS_URL", "https://api.scrapecreators.com/v1/youtube/video"),
		TranscriptTimeout: durationEnv("TRANSCRIPT_TIMEOUT", 30*time.Second),

		InlineProcessing: boolEnv("INLINE_PROCESSING", os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""),
	}

	cfg.StorageBackend = strings.ToLower(os.Getenv("STORAGE_BACKEND"))
	if cfg.StorageBackend == "" {
		switch {
		case cfg.DatabaseURL != "":
			cfg.StorageBackend = BackendPostgres
		case cfg.DevMode:
			cfg.StorageBackend = BackendMemory
		default:
			cfg.StorageBackend = BackendDynamoDB
		}
	}

	if cfg.GoogleRedirectURL == "" {
		if cfg.DevMode {
			cfg.GoogleRedirectURL = "http://localhost:8080/auth/callback"
		} else {
			cfg.GoogleRedirectURL = cfg.FrontendURL + "/api/auth/callback"
		}
	}
	return cfg
}

// envOrDefault returns the environment variable or the fallback.
func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("invalid boolean, using default")
		return fallback
	}
	return b
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", value).Msg("invalid duration, using default")
		return fallback
	}
	return d
}
