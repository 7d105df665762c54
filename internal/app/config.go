package app

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/arnatech/noc/pkg/httpx"
)

// Default endpoints used when no configuration overrides them.
const (
	DefaultSSOBaseURL  = "https://sso.arnatech.id/api"
	DefaultChatBaseURL = "https://noc-rag-poc.arnatech.id/api"
)

// Token store drivers.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

type Config struct {
	SSOBaseURL  string // SSO service base URL (default: DefaultSSOBaseURL)
	ChatBaseURL string // Chat/RAG service base URL (default: DefaultChatBaseURL)

	TokenStore      string // Credential store driver: file, sqlite, memory (default: file)
	TokenFile       string // Path of the file store (default: <user config dir>/noc/tokens.json)
	TokenPassphrase string // Optional: seals the file store at rest
	DatabaseFile    string // Path of the sqlite store (default: <user config dir>/noc/noc.db)

	HTTPTimeout      time.Duration // Per request timeout (default: 30s)
	SharedRefresh    bool          // Both clients share one refresh coordinator (default: true)
	ProactiveRefresh bool          // Refresh JWTs close to expiry before sending (default: false)
	HistoryCacheTTL  time.Duration // How long chat history is cached (default: 5m)

	OutboundLimit httpx.RateLimitConfig // Client side request throttle

	Env       string // Environment (dev, staging, prod) (default: prod)
	LogLevel  string // Log level (debug, info, warn, error) (default: warn)
	LogFormat string // Log format (json, text) (default: text)
}

// LoadDotEnv loads variables from path (".env" when empty) without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func LoadConfig() Config {
	dir := defaultConfigDir()

	return Config{
		SSOBaseURL:       strings.TrimSuffix(getEnvOrDefault("NOC_SSO_API_URL", DefaultSSOBaseURL), "/"),
		ChatBaseURL:      strings.TrimSuffix(getEnvOrDefault("NOC_CHAT_API_URL", DefaultChatBaseURL), "/"),
		TokenStore:       strings.ToLower(getEnvOrDefault("NOC_TOKEN_STORE", StoreFile)),
		TokenFile:        getEnvOrDefault("NOC_TOKEN_FILE", filepath.Join(dir, "tokens.json")),
		TokenPassphrase:  os.Getenv("NOC_TOKEN_PASSPHRASE"), // Optional
		DatabaseFile:     getEnvOrDefault("NOC_DATABASE_FILE", filepath.Join(dir, "noc.db")),
		HTTPTimeout:      getEnvDurationOrDefault("NOC_HTTP_TIMEOUT", 30*time.Second),
		SharedRefresh:    getEnvBoolOrDefault("NOC_SHARED_REFRESH", true),
		ProactiveRefresh: getEnvBoolOrDefault("NOC_PROACTIVE_REFRESH", false),
		HistoryCacheTTL:  getEnvDurationOrDefault("NOC_HISTORY_CACHE_TTL", 5*time.Minute),
		OutboundLimit:    httpx.ParseRateLimitFromEnv("OUTBOUND", httpx.DefaultOutboundLimit),
		Env:              getEnvOrDefault("ENV", "prod"),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat:        getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// defaultConfigDir is where credentials live when no path is configured.
func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "noc")
	}
	return "."
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
