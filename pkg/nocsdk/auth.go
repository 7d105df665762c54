package nocsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/arnatech/noc/pkg/idx"
	"github.com/arnatech/noc/pkg/slogx"
	"github.com/arnatech/noc/pkg/tokenstore"
)

// SSO endpoint paths, relative to the SSO base URL.
const (
	PathLogin          = "/auth/login/"
	PathRegister       = "/auth/register/"
	PathVerifyEmail    = "/auth/verify-email/"
	PathResendEmailOTP = "/auth/resend-email-otp/"
	PathGoogleLogin    = "/auth/google-login/"
	PathTokenRefresh   = "/auth/token/refresh/"
)

// ResendCooldown is the minimum gap between two OTP resends for the same
// address.
const ResendCooldown = 300 * time.Second

// CooldownError is returned by ResendEmailOTP while the previous OTP is
// still inside ResendCooldown.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("resend available in %s", e.Remaining.Round(time.Second))
}

// LoginRequest is the body of POST /auth/login/.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OTP      string `json:"otp,omitempty"`
}

// RegisterRequest is the body of POST /auth/register/.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

// LoginResponse is returned by every SSO call that may start a session.
type LoginResponse struct {
	Access      string `json:"access,omitempty"`
	Refresh     string `json:"refresh,omitempty"`
	MFARequired bool   `json:"mfa_required,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Tokens returns the credential pair carried by the response.
func (r *LoginResponse) Tokens() tokenstore.Tokens {
	return tokenstore.Tokens{Access: r.Access, Refresh: r.Refresh}
}

// RefreshResponse is the body returned by POST /auth/token/refresh/.
type RefreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// AuthClient talks to the SSO service. Its calls never carry a bearer
// token and never trigger a refresh.
type AuthClient struct {
	BaseURL    string
	HTTPClient *http.Client

	guard  *SessionGuard
	stamps *tokenstore.Store
	now    func() time.Time
}

// NewAuthClient creates an SSO client. Sessions it obtains, and the OTP
// resend cooldown, are persisted in the guard's store. A nil guard keeps
// the cooldown in memory only.
func NewAuthClient(baseURL string, httpClient *http.Client, guard *SessionGuard) *AuthClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	stamps := tokenstore.NewMemory()
	if guard != nil {
		stamps = guard.Store()
	}

	return &AuthClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: httpClient,
		guard:      guard,
		stamps:     stamps,
		now:        time.Now,
	}
}

// RefreshURL identifies the refresh endpoint, used to key shared
// coordinators.
func (a *AuthClient) RefreshURL() string {
	return joinURL(a.BaseURL, PathTokenRefresh)
}

// Login authenticates with email and password. When the account has MFA
// enabled and req.OTP is empty the response is returned together with an
// *MFARequiredError.
func (a *AuthClient) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := a.postJSON(ctx, PathLogin, req, &resp); err != nil {
		return nil, err
	}
	return a.startSession(ctx, &resp)
}

// Register creates an account. The SSO service normally answers with a
// message and sends an OTP; tokens, if present, start a session.
func (a *AuthClient) Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := a.postJSON(ctx, PathRegister, req, &resp); err != nil {
		return nil, err
	}
	return a.startSession(ctx, &resp)
}

// VerifyEmail confirms an address with the emailed OTP.
func (a *AuthClient) VerifyEmail(ctx context.Context, email, otp string) (*LoginResponse, error) {
	body := map[string]string{"email": email, "otp": otp}

	var resp LoginResponse
	if err := a.postJSON(ctx, PathVerifyEmail, body, &resp); err != nil {
		return nil, err
	}
	return a.startSession(ctx, &resp)
}

// ResendEmailOTP asks for a new verification OTP. Calls for the same
// address within ResendCooldown of a successful resend fail locally with
// *CooldownError. The last resend is kept in the credential store so the
// cooldown holds across processes.
func (a *AuthClient) ResendEmailOTP(ctx context.Context, email string) (*LoginResponse, error) {
	key := tokenstore.KeyResendOTPPrefix + strings.ToLower(strings.TrimSpace(email))

	last, err := a.stamps.Stamp(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read resend cooldown: %w", err)
	}
	if !last.IsZero() {
		if remaining := ResendCooldown - a.now().Sub(last); remaining > 0 {
			return nil, &CooldownError{Remaining: remaining}
		}
	}

	var resp LoginResponse
	if err := a.postJSON(ctx, PathResendEmailOTP, map[string]string{"email": email}, &resp); err != nil {
		return nil, err
	}

	if err := a.stamps.SetStamp(ctx, key, a.now()); err != nil {
		return &resp, fmt.Errorf("failed to record resend cooldown: %w", err)
	}
	return &resp, nil
}

// GoogleLogin exchanges a Google ID token credential for a session.
func (a *AuthClient) GoogleLogin(ctx context.Context, credential string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := a.postJSON(ctx, PathGoogleLogin, map[string]string{"credential": credential}, &resp); err != nil {
		return nil, err
	}
	return a.startSession(ctx, &resp)
}

// RefreshToken calls the refresh endpoint. Any non-2xx is an error.
func (a *AuthClient) RefreshToken(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	var resp RefreshResponse
	if err := a.postJSON(ctx, PathTokenRefresh, map[string]string{"refresh": refreshToken}, &resp); err != nil {
		return nil, err
	}
	if resp.Access == "" {
		return nil, errors.New("refresh response missing access token")
	}
	return &resp, nil
}

// Refresh implements Refresher.
func (a *AuthClient) Refresh(ctx context.Context, refreshToken string) (tokenstore.Tokens, error) {
	resp, err := a.RefreshToken(ctx, refreshToken)
	if err != nil {
		return tokenstore.Tokens{}, err
	}
	return tokenstore.Tokens{Access: resp.Access, Refresh: resp.Refresh}, nil
}

// Logout discards the stored session.
func (a *AuthClient) Logout(ctx context.Context) error {
	if a.guard == nil {
		return nil
	}
	return a.guard.Logout(ctx)
}

// TOTPCode generates the current code for an authenticator secret, for
// answering an MFA challenge from scripts.
func TOTPCode(secret string, now time.Time) (string, error) {
	code, err := totp.GenerateCode(strings.ToUpper(strings.ReplaceAll(secret, " ", "")), now)
	if err != nil {
		return "", fmt.Errorf("failed to generate totp code: %w", err)
	}
	return code, nil
}

func (a *AuthClient) startSession(ctx context.Context, resp *LoginResponse) (*LoginResponse, error) {
	if resp.MFARequired {
		return resp, &MFARequiredError{Message: resp.Message}
	}
	if resp.Access == "" || a.guard == nil {
		return resp, nil
	}
	if err := a.guard.Begin(ctx, resp.Tokens()); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return resp, nil
}

func (a *AuthClient) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(a.BaseURL, path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(slogx.RequestIDHeader, idx.NewRequestID())

	resp, err := roundTrip(a.HTTPClient, req)
	if err != nil {
		return err
	}
	if len(resp.Body) == 0 {
		return nil
	}
	return resp.Decode(out)
}
