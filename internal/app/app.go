package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/arnatech/noc/internal/chat"
	"github.com/arnatech/noc/pkg/cryptox"
	"github.com/arnatech/noc/pkg/httpx"
	"github.com/arnatech/noc/pkg/nocsdk"
	"github.com/arnatech/noc/pkg/slogx"
	"github.com/arnatech/noc/pkg/tokenstore"
	"github.com/arnatech/noc/pkg/tokenstore/sqlite"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the credential store, the SDK clients and the chat
// service from a Config.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	store        *tokenstore.Store
	guard        *nocsdk.SessionGuard
	httpClient   *http.Client
	coordinators *nocsdk.CoordinatorRegistry

	// Clients
	Auth *nocsdk.AuthClient
	SSO  *nocsdk.Client
	Chat *nocsdk.Client

	// Services
	ChatService *chat.Service
}

// Option customises New.
type Option func(*options)

type options struct {
	boundary  nocsdk.LoginBoundary
	logger    *slog.Logger
	transport http.RoundTripper
}

// WithLoginBoundary sets the callback fired when a session ends
// involuntarily.
func WithLoginBoundary(b nocsdk.LoginBoundary) Option {
	return func(o *options) { o.boundary = b }
}

// WithLogger replaces the logger built from Config.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTransport replaces http.DefaultTransport under the logging and rate
// limiting middleware.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config, opts ...Option) (*Application, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slogx.New(slogx.Config{
			Service: "noc",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})
	}

	app := &Application{
		cfg:          cfg,
		logger:       logger,
		coordinators: nocsdk.NewCoordinatorRegistry(),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	app.initClients(o.boundary, o.transport)
	app.initServices()

	return app, nil
}

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Config returns the configuration the application was built from.
func (app *Application) Config() Config { return app.cfg }

// Store returns the credential store.
func (app *Application) Store() *tokenstore.Store { return app.store }

// Guard returns the session guard shared by every client.
func (app *Application) Guard() *nocsdk.SessionGuard { return app.guard }

// Close releases the credential store.
func (app *Application) Close() error {
	if err := app.store.Close(); err != nil {
		app.logger.Error("error closing token store", "error", err)
		return err
	}
	return nil
}

// initStore opens the configured credential store driver.
func (app *Application) initStore() error {
	switch app.cfg.TokenStore {
	case StoreMemory:
		app.store = tokenstore.NewMemory()

	case StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(app.cfg.DatabaseFile), 0o700); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		kv, err := sqlite.Open(app.cfg.DatabaseFile)
		if err != nil {
			return fmt.Errorf("failed to initialize token database: %w", err)
		}
		if err := kv.Ping(context.Background()); err != nil {
			_ = kv.Close()
			return fmt.Errorf("failed to reach token database: %w", err)
		}
		app.store = tokenstore.New(kv)

	case StoreFile, "":
		var sealer *cryptox.Sealer
		if app.cfg.TokenPassphrase != "" {
			s, err := cryptox.NewSealer(app.cfg.TokenPassphrase)
			if err != nil {
				return fmt.Errorf("failed to initialize token sealing: %w", err)
			}
			sealer = s
		}
		kv, err := tokenstore.NewFileKV(app.cfg.TokenFile, sealer)
		if err != nil {
			return fmt.Errorf("failed to initialize token file: %w", err)
		}
		app.store = tokenstore.New(kv)

	default:
		return fmt.Errorf("unknown token store %q (want %s, %s or %s)",
			app.cfg.TokenStore, StoreFile, StoreSQLite, StoreMemory)
	}

	app.logger.Debug("token store ready", "driver", app.cfg.TokenStore)
	return nil
}

// initClients builds the SSO and chat clients over one HTTP stack.
func (app *Application) initClients(boundary nocsdk.LoginBoundary, transport http.RoundTripper) {
	app.httpClient = &http.Client{
		Timeout: app.cfg.HTTPTimeout,
		Transport: slogx.Transport(app.logger,
			httpx.RateLimitTransport(app.cfg.OutboundLimit, transport),
		),
	}

	app.guard = nocsdk.NewSessionGuard(app.store, boundary, app.logger)
	app.Auth = nocsdk.NewAuthClient(app.cfg.SSOBaseURL, app.httpClient, app.guard)

	// Both backends refresh against the SSO. Sharing the coordinator keeps
	// it to one refresh per expiry across both clients.
	var ssoCoord, chatCoord *nocsdk.RefreshCoordinator
	if app.cfg.SharedRefresh {
		ssoCoord = app.coordinators.For(app.Auth.RefreshURL())
		chatCoord = ssoCoord
	}

	newClient := func(baseURL string, coord *nocsdk.RefreshCoordinator) *nocsdk.Client {
		return nocsdk.New(nocsdk.Config{
			BaseURL:          baseURL,
			Store:            app.store,
			Refresher:        app.Auth,
			Coordinator:      coord,
			Guard:            app.guard,
			HTTPClient:       app.httpClient,
			Logger:           app.logger,
			ProactiveRefresh: app.cfg.ProactiveRefresh,
		})
	}

	app.SSO = newClient(app.cfg.SSOBaseURL, ssoCoord)
	app.Chat = newClient(app.cfg.ChatBaseURL, chatCoord)
}

// initServices initializes the application services.
func (app *Application) initServices() {
	app.ChatService = chat.NewService(app.Chat, app.cfg.HistoryCacheTTL)
	app.ChatService.Logger = app.logger
}

// Client returns the authenticated client for a backend name ("sso" or
// "chat").
func (app *Application) Client(backend string) (*nocsdk.Client, error) {
	switch backend {
	case "sso":
		return app.SSO, nil
	case "chat", "":
		return app.Chat, nil
	}
	return nil, fmt.Errorf("unknown backend %q (want sso or chat)", backend)
}

// Status reports the stored session, for `noc auth status`.
func (app *Application) Status(ctx context.Context) (nocsdk.TokenInfo, error) {
	return app.Chat.TokenInfo(ctx)
}
