package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"NOC_SSO_API_URL", "NOC_CHAT_API_URL", "NOC_TOKEN_STORE", "NOC_HTTP_TIMEOUT",
		"NOC_SHARED_REFRESH", "NOC_PROACTIVE_REFRESH", "NOC_HISTORY_CACHE_TTL",
		"RATELIMIT_OUTBOUND_REQUESTS", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	require.Equal(t, DefaultSSOBaseURL, cfg.SSOBaseURL)
	require.Equal(t, DefaultChatBaseURL, cfg.ChatBaseURL)
	require.Equal(t, StoreFile, cfg.TokenStore)
	require.Equal(t, "tokens.json", filepath.Base(cfg.TokenFile))
	require.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	require.True(t, cfg.SharedRefresh)
	require.False(t, cfg.ProactiveRefresh)
	require.Equal(t, 5*time.Minute, cfg.HistoryCacheTTL)
	require.Equal(t, 60, cfg.OutboundLimit.RequestsPerWindow)
	require.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("NOC_SSO_API_URL", "http://localhost:8000/api/")
	t.Setenv("NOC_CHAT_API_URL", "http://localhost:9000/api")
	t.Setenv("NOC_TOKEN_STORE", "SQLite")
	t.Setenv("NOC_DATABASE_FILE", "/tmp/noc-test.db")
	t.Setenv("NOC_HTTP_TIMEOUT", "5")
	t.Setenv("NOC_SHARED_REFRESH", "false")
	t.Setenv("NOC_PROACTIVE_REFRESH", "1")
	t.Setenv("NOC_HISTORY_CACHE_TTL", "90s")
	t.Setenv("RATELIMIT_OUTBOUND_REQUESTS", "0")

	cfg := LoadConfig()
	require.Equal(t, "http://localhost:8000/api", cfg.SSOBaseURL)
	require.Equal(t, "http://localhost:9000/api", cfg.ChatBaseURL)
	require.Equal(t, StoreSQLite, cfg.TokenStore)
	require.Equal(t, "/tmp/noc-test.db", cfg.DatabaseFile)
	require.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	require.False(t, cfg.SharedRefresh)
	require.True(t, cfg.ProactiveRefresh)
	require.Equal(t, 90*time.Second, cfg.HistoryCacheTTL)
	require.False(t, cfg.OutboundLimit.Enabled())
}

func TestLoadConfigIgnoresGarbage(t *testing.T) {
	t.Setenv("NOC_HTTP_TIMEOUT", "soon")
	t.Setenv("NOC_SHARED_REFRESH", "maybe")

	cfg := LoadConfig()
	require.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	require.True(t, cfg.SharedRefresh)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("NOC_CHAT_API_URL=http://dotenv.local/api\n"), 0o600))

	t.Setenv("NOC_CHAT_API_URL", "")
	require.NoError(t, os.Unsetenv("NOC_CHAT_API_URL"))
	require.NoError(t, LoadDotEnv(path))
	require.Equal(t, "http://dotenv.local/api", LoadConfig().ChatBaseURL)
}
