package nocsdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arnatech/noc/pkg/idx"
	"github.com/arnatech/noc/pkg/slogx"
	"github.com/arnatech/noc/pkg/tokenstore"
)

// DefaultTimeout bounds every outbound request when Config.HTTPClient is nil.
const DefaultTimeout = 30 * time.Second

// Refresher exchanges a refresh token for a new credential pair. An empty
// Refresh in the result means the server did not rotate it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (tokenstore.Tokens, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (tokenstore.Tokens, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (tokenstore.Tokens, error) {
	return f(ctx, refreshToken)
}

// Config configures a Client.
type Config struct {
	// BaseURL is resolved once; request paths are appended to it.
	BaseURL string

	Store     *tokenstore.Store
	Refresher Refresher

	// Coordinator is shared between clients that refresh against the same
	// endpoint. A nil Coordinator gives the client its own.
	Coordinator *RefreshCoordinator

	// Guard ends the session on 403 and refresh failure. A nil Guard clears
	// tokens without notifying anyone.
	Guard *SessionGuard

	HTTPClient *http.Client
	Logger     *slog.Logger

	// ProactiveRefresh refreshes JWT access tokens that expire within
	// ExpirySkew before sending them.
	ProactiveRefresh bool
}

// Client issues bearer-authenticated requests against one backend and
// recovers from access token expiry with a single shared refresh.
type Client struct {
	baseURL    string
	store      *tokenstore.Store
	refresher  Refresher
	coord      *RefreshCoordinator
	guard      *SessionGuard
	httpClient *http.Client
	logger     *slog.Logger
	proactive  bool
	now        func() time.Time
}

// New creates a Client. Store and Refresher are required.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := cfg.Store
	if store == nil {
		store = tokenstore.NewMemory()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	coord := cfg.Coordinator
	if coord == nil {
		coord = NewRefreshCoordinator()
	}

	guard := cfg.Guard
	if guard == nil {
		guard = NewSessionGuard(store, nil, logger)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		store:      store,
		refresher:  cfg.Refresher,
		coord:      coord,
		guard:      guard,
		httpClient: httpClient,
		logger:     logger,
		proactive:  cfg.ProactiveRefresh,
		now:        time.Now,
	}
}

// BaseURL returns the endpoint every request path is resolved against.
func (c *Client) BaseURL() string { return c.baseURL }

// Coordinator returns the refresh coordinator this client uses.
func (c *Client) Coordinator() *RefreshCoordinator { return c.coord }

// Request describes one call. Body is kept as bytes so the request can be
// reissued after a refresh.
type Request struct {
	Method string
	Path   string
	Body   []byte
	Header http.Header
}

// Response is a successful (2xx) response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do sends req with the stored access token. A 401 triggers one refresh
// and one retry. A 403 ends the session. Every failure is an *APIError or
// wraps one, except refresh failures, which wrap ErrRefreshFailed.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	reqID := req.Header.Get(slogx.RequestIDHeader)
	if reqID == "" {
		reqID = slogx.RequestID(ctx)
	}
	if reqID == "" {
		reqID = idx.NewRequestID()
	}
	ctx = slogx.WithRequestID(slogx.WithContext(ctx, slogx.FromContextOr(ctx, c.logger)), reqID)
	logger := slogx.FromContext(ctx).With("method", req.Method, "path", req.Path)

	token, err := c.currentToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, req, reqID, token)
	if err == nil {
		return resp, nil
	}
	if !errors.Is(err, ErrUnauthorized) {
		return nil, c.intercept(ctx, err)
	}

	logger.Debug("access token rejected, refreshing")

	token, err = c.tokenAfterUnauthorized(ctx, token, err)
	if err != nil {
		return nil, err
	}

	// Retried at most once. A second 401 goes back to the caller.
	resp, err = c.send(ctx, req, reqID, token)
	if err != nil {
		return nil, c.intercept(ctx, err)
	}
	return resp, nil
}

// intercept applies the session-ending rule to a terminal error.
func (c *Client) intercept(ctx context.Context, err error) error {
	if errors.Is(err, ErrPermissionDenied) {
		c.guard.End(ctx, err)
	}
	return err
}

// tokenAfterUnauthorized returns the token to retry with. If another
// request already refreshed since sent was read, the stored token is used
// without starting a second refresh.
func (c *Client) tokenAfterUnauthorized(ctx context.Context, sent string, cause error) (string, error) {
	if !c.coord.InFlight() {
		current, err := c.store.AccessToken(ctx)
		if err == nil && current != "" && current != sent {
			return current, nil
		}
	}
	return c.refresh(ctx, cause, false)
}

// refresh joins the in-flight refresh or leads a new one. An early
// refresh is one started before the token was rejected; its failure does
// not end the session.
func (c *Client) refresh(ctx context.Context, cause error, early bool) (string, error) {
	leader, wait := c.coord.AcquireOrWait()
	if leader {
		return c.lead(ctx, cause, early)
	}

	select {
	case res := <-wait:
		if res.Err == nil {
			return res.Token, nil
		}
		var earlyErr *earlyRefreshError
		if errors.As(res.Err, &earlyErr) {
			if !early {
				c.guard.End(ctx, earlyErr.err)
			}
			return "", earlyErr.err
		}
		return "", res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// earlyRefreshError carries the failure of an early refresh to waiters
// that joined it after a 401, so they can end the session themselves.
type earlyRefreshError struct{ err error }

func (e *earlyRefreshError) Error() string { return e.err.Error() }
func (e *earlyRefreshError) Unwrap() error { return e.err }

// lead runs the refresh and settles the coordinator on every path.
func (c *Client) lead(ctx context.Context, cause error, early bool) (string, error) {
	fail := func(err error, end bool) (string, error) {
		if early {
			c.coord.Settle("", &earlyRefreshError{err: err})
			return "", err
		}
		c.coord.Settle("", err)
		if end {
			c.guard.End(ctx, err)
		}
		return "", err
	}

	refreshToken, err := c.store.RefreshToken(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to read refresh token: %w", err), false)
	}

	if refreshToken == "" {
		if early {
			return fail(ErrNoRefreshToken, false)
		}
		if cause == nil {
			cause = ErrNoRefreshToken
		}
		c.coord.Settle("", cause)
		c.guard.End(ctx, ErrNoRefreshToken)
		return "", cause
	}

	if c.refresher == nil {
		return fail(fmt.Errorf("%w: no refresher configured", ErrRefreshFailed), true)
	}

	// The refresh outcome is shared with every waiter, so it must not be
	// cut short by the leader's own cancellation.
	tokens, err := c.refresher.Refresh(context.WithoutCancel(ctx), refreshToken)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrRefreshFailed, err), true)
	}

	if err := c.store.Save(ctx, tokens); err != nil {
		return fail(fmt.Errorf("failed to persist refreshed tokens: %w", err), false)
	}

	c.coord.Settle(tokens.Access, nil)
	slogx.FromContextOr(ctx, c.logger).Debug("access token refreshed", "rotated", tokens.Refresh != "", "early", early)
	return tokens.Access, nil
}

// currentToken reads the stored access token, refreshing it first when
// proactive refresh is on and it is about to expire. If that refresh
// cannot run or fails, the current token is sent anyway and a 401, if any,
// is handled as usual.
func (c *Client) currentToken(ctx context.Context) (string, error) {
	token, err := c.store.AccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read access token: %w", err)
	}

	if !c.proactive || token == "" {
		return token, nil
	}
	if !expiresWithin(token, ExpirySkew, c.now()) {
		return token, nil
	}

	refreshToken, err := c.store.RefreshToken(ctx)
	if err != nil || refreshToken == "" {
		return token, nil
	}

	fresh, err := c.refresh(ctx, nil, true)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		slogx.FromContextOr(ctx, c.logger).Warn("early token refresh failed", "error", err)
		return token, nil
	}
	return fresh, nil
}

// send performs a single HTTP exchange and classifies the outcome.
func (c *Client) send(ctx context.Context, req Request, reqID, token string) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.url(req.Path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(slogx.RequestIDHeader, reqID)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	return roundTrip(c.httpClient, httpReq)
}

func (c *Client) url(path string) string {
	return joinURL(c.baseURL, path)
}
