package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arnatech/noc/pkg/httpx"
	"github.com/arnatech/noc/pkg/nocsdk"
	"github.com/arnatech/noc/pkg/slogx"
	"github.com/arnatech/noc/pkg/tokenstore"
)

func testConfig(t *testing.T, sso, chat string) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		SSOBaseURL:      sso,
		ChatBaseURL:     chat,
		TokenStore:      StoreMemory,
		TokenFile:       filepath.Join(dir, "tokens.json"),
		DatabaseFile:    filepath.Join(dir, "noc.db"),
		HTTPTimeout:     5 * time.Second,
		SharedRefresh:   true,
		HistoryCacheTTL: time.Minute,
		OutboundLimit:   httpx.RateLimitConfig{},
		Env:             "test",
	}
}

func TestNewStoreDrivers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for _, driver := range []string{StoreMemory, StoreFile, StoreSQLite} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig(t, "http://sso.invalid/api", "http://chat.invalid/api")
			cfg.TokenStore = driver
			cfg.TokenPassphrase = "correct horse battery staple"

			app, err := New(cfg, WithLogger(slogx.Discard()))
			require.NoError(t, err)
			t.Cleanup(func() { _ = app.Close() })

			require.NoError(t, app.Guard().Begin(ctx, tokenstore.Tokens{Access: "a", Refresh: "r"}))
			tokens, err := app.Store().Tokens(ctx)
			require.NoError(t, err)
			require.Equal(t, tokenstore.Tokens{Access: "a", Refresh: "r"}, tokens)
		})
	}

	_, err := New(Config{TokenStore: "redis"}, WithLogger(slogx.Discard()))
	require.ErrorContains(t, err, "unknown token store")
}

func TestClientLookup(t *testing.T) {
	t.Parallel()

	app, err := New(testConfig(t, "http://sso.invalid/api", "http://chat.invalid/api"), WithLogger(slogx.Discard()))
	require.NoError(t, err)

	c, err := app.Client("sso")
	require.NoError(t, err)
	require.Equal(t, "http://sso.invalid/api", c.BaseURL())

	c, err = app.Client("chat")
	require.NoError(t, err)
	require.Equal(t, "http://chat.invalid/api", c.BaseURL())

	_, err = app.Client("billing")
	require.Error(t, err)
}

// TestSharedRefreshAcrossBackends runs one expired request against each
// backend at the same time and expects a single refresh call.
func TestSharedRefreshAcrossBackends(t *testing.T) {
	t.Parallel()

	var (
		refreshCalls atomic.Int32
		app          *Application
		ready        = make(chan struct{})
	)

	protected := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"expired"}`))
			return
		}
		_, _ = w.Write([]byte(`{"history":[]}`))
	}

	ssoMux := http.NewServeMux()
	ssoMux.HandleFunc("POST /api/auth/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		<-ready
		deadline := time.Now().Add(5 * time.Second)
		for app.SSO.Coordinator().Pending() < 1 && time.Now().Before(deadline) {
			time.Sleep(2 * time.Millisecond)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access": "fresh"})
	})
	ssoMux.HandleFunc("/api/profile/", protected)
	sso := httptest.NewServer(ssoMux)
	t.Cleanup(sso.Close)

	chatMux := http.NewServeMux()
	chatMux.HandleFunc("/api/chat/history", protected)
	chat := httptest.NewServer(chatMux)
	t.Cleanup(chat.Close)

	var err error
	app, err = New(testConfig(t, sso.URL+"/api", chat.URL+"/api"), WithLogger(slogx.Discard()))
	require.NoError(t, err)
	close(ready)

	ctx := context.Background()
	require.NoError(t, app.Store().Save(ctx, tokenstore.Tokens{Access: "stale", Refresh: "r1"}))
	require.Same(t, app.SSO.Coordinator(), app.Chat.Coordinator())

	var wg sync.WaitGroup
	var ssoErr, chatErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, ssoErr = app.SSO.Do(ctx, nocsdk.Request{Method: http.MethodGet, Path: "/profile/"})
	}()
	go func() {
		defer wg.Done()
		_, chatErr = app.ChatService.History(ctx)
	}()
	wg.Wait()

	require.NoError(t, ssoErr)
	require.NoError(t, chatErr)
	require.Equal(t, int32(1), refreshCalls.Load())

	tokens, err := app.Store().Tokens(ctx)
	require.NoError(t, err)
	require.Equal(t, tokenstore.Tokens{Access: "fresh", Refresh: "r1"}, tokens)
}

func TestSeparateRefreshCoordinators(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "http://sso.invalid/api", "http://chat.invalid/api")
	cfg.SharedRefresh = false

	app, err := New(cfg, WithLogger(slogx.Discard()))
	require.NoError(t, err)
	require.NotSame(t, app.SSO.Coordinator(), app.Chat.Coordinator())
}
