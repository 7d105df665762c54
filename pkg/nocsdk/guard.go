package nocsdk

import (
	"context"
	"log/slog"
	"sync"

	"github.com/arnatech/noc/pkg/tokenstore"
)

// LoginBoundary is invoked when a session ends involuntarily: a 403, a
// failed refresh, or a 401 with no refresh token. The CLI uses it to tell
// the user to log in again.
type LoginBoundary func(ctx context.Context, reason error)

// SessionGuard owns the lifecycle of the stored credential pair. Begin
// starts a session epoch; End clears the tokens and fires the login
// boundary at most once per epoch, however many requests fail at the same
// time.
type SessionGuard struct {
	store    *tokenstore.Store
	boundary LoginBoundary
	logger   *slog.Logger

	mu    sync.Mutex
	ended bool
}

// NewSessionGuard creates a guard over store. A nil boundary only clears
// tokens.
func NewSessionGuard(store *tokenstore.Store, boundary LoginBoundary, logger *slog.Logger) *SessionGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionGuard{
		store:    store,
		boundary: boundary,
		logger:   logger,
	}
}

// Store returns the credential store the guard manages.
func (g *SessionGuard) Store() *tokenstore.Store { return g.store }

// Begin persists a freshly issued credential pair and opens a new epoch.
func (g *SessionGuard) Begin(ctx context.Context, tokens tokenstore.Tokens) error {
	if err := g.store.Save(ctx, tokens); err != nil {
		return err
	}

	g.mu.Lock()
	g.ended = false
	g.mu.Unlock()

	g.logger.Debug("session_started")
	return nil
}

// End clears both tokens and fires the login boundary if this epoch has not
// already ended. It reports whether the boundary fired.
func (g *SessionGuard) End(ctx context.Context, reason error) bool {
	if err := g.store.Clear(ctx); err != nil {
		g.logger.Error("failed to clear tokens", "error", err)
	}

	g.mu.Lock()
	if g.ended {
		g.mu.Unlock()
		return false
	}
	g.ended = true
	g.mu.Unlock()

	g.logger.Warn("session_ended", "reason", reason)
	if g.boundary != nil {
		g.boundary(ctx, reason)
	}
	return true
}

// Logout clears the tokens without treating it as a failure. The boundary
// does not fire.
func (g *SessionGuard) Logout(ctx context.Context) error {
	g.mu.Lock()
	g.ended = true
	g.mu.Unlock()

	return g.store.Clear(ctx)
}
