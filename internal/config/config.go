package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port           string
	Debug          bool
	MaxUploadBytes int64
	AdminToken     string

	// Language model configuration
	OpenAIBaseURL     string
	ModelCandidates   []string
	GenerationTimeout time.Duration

	// Purchaser allow-list
	AllowedUserIDs    []string
	AllowListURL      string
	AllowListSchedule string

	// Sessions
	SessionSecret        string
	SessionMaxAge        time.Duration
	SessionSweepSchedule string
	SecureCookies        bool

	// Storage configuration: "local" or "azure"
	StorageBackend   string
	StorageDir       string
	StorageAccount   string
	StorageContainer string

	// History configuration: "blob" or "sqlite"
	HistoryBackend string
	HistoryDBPath  string

	// Notification configuration
	WebhookURL        string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Transcript decoding, tried in order
	TranscriptEncodings []string

	// Optional TOML catalog with personas, tones, models and match patterns
	CatalogPath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Debug:          getBoolEnv("DEBUG", false),
		MaxUploadBytes: int64(getIntEnv("MAX_UPLOAD_BYTES", 10<<20)),
		AdminToken:     getEnv("ADMIN_TOKEN", ""),

		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ModelCandidates:   getSliceEnv("MODEL_CANDIDATES", []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1-mini"}),
		GenerationTimeout: getDurationEnv("GENERATION_TIMEOUT", 3*time.Minute),

		AllowedUserIDs:    getSliceEnv("ALLOWED_USER_IDS", nil),
		AllowListURL:      getEnv("ALLOWLIST_CSV_URL", ""),
		AllowListSchedule: getEnv("ALLOWLIST_SCHEDULE", "0 */10 * * * *"),

		SessionSecret:        getEnv("SESSION_SECRET", ""),
		SessionMaxAge:        getDurationEnv("SESSION_MAX_AGE", 12*time.Hour),
		SessionSweepSchedule: getEnv("SESSION_SWEEP_SCHEDULE", "0 0 * * * *"),
		SecureCookies:        getBoolEnv("SECURE_COOKIES", true),

		StorageBackend:   getEnv("STORAGE_BACKEND", "local"),
		StorageDir:       getEnv("STORAGE_DIR", "data"),
		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "oracle"),

		HistoryBackend: getEnv("HISTORY_BACKEND", "blob"),
		HistoryDBPath:  getEnv("HISTORY_DB_PATH", "data/history.db"),

		WebhookURL:        getEnv("WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		TranscriptEncodings: getSliceEnv("TRANSCRIPT_ENCODINGS", []string{"utf-8", "utf-8-sig", "shift_jis", "euc-jp", "utf-16"}),

		CatalogPath: getEnv("CATALOG_PATH", ""),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.SessionSecret) < 16 {
		return fmt.Errorf("SESSION_SECRET must be at least 16 characters")
	}

	if len(c.AllowedUserIDs) == 0 && c.AllowListURL == "" {
		return fmt.Errorf("at least one allow-list source must be configured (ALLOWED_USER_IDS or ALLOWLIST_CSV_URL)")
	}

	if len(c.ModelCandidates) == 0 {
		return fmt.Errorf("MODEL_CANDIDATES must list at least one model")
	}

	switch c.StorageBackend {
	case "local":
		if c.StorageDir == "" {
			return fmt.Errorf("STORAGE_DIR is required when STORAGE_BACKEND is 'local'")
		}
	case "azure":
		if c.StorageAccount == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT is required when STORAGE_BACKEND is 'azure'")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be 'local' or 'azure'")
	}

	if c.HistoryBackend != "blob" && c.HistoryBackend != "sqlite" {
		return fmt.Errorf("HISTORY_BACKEND must be 'blob' or 'sqlite'")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	}
	return defaultValue
}
