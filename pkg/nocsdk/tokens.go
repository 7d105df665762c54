package nocsdk

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpirySkew is how close to expiry an access token may get before a
// proactive refresh replaces it.
const ExpirySkew = 30 * time.Second

// TokenInfo describes the stored session. Claims are read without
// verifying the signature; the backend remains the authority.
type TokenInfo struct {
	HasAccess  bool
	HasRefresh bool

	Subject   string
	ExpiresAt time.Time

	// Expired is only meaningful when ExpiresAt is set.
	Expired bool
}

// Authenticated reports whether any credential is stored.
func (t TokenInfo) Authenticated() bool { return t.HasAccess || t.HasRefresh }

// TokenInfo inspects the stored credential pair.
func (c *Client) TokenInfo(ctx context.Context) (TokenInfo, error) {
	tokens, err := c.store.Tokens(ctx)
	if err != nil {
		return TokenInfo{}, fmt.Errorf("failed to read tokens: %w", err)
	}

	info := TokenInfo{
		HasAccess:  tokens.Access != "",
		HasRefresh: tokens.Refresh != "",
	}
	if !info.HasAccess {
		return info, nil
	}

	claims, err := parseClaims(tokens.Access)
	if err != nil {
		// Opaque tokens are valid bearer credentials too.
		return info, nil
	}

	info.Subject = subjectOf(claims)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
		info.Expired = !c.now().Before(exp.Time)
	}
	return info, nil
}

// parseClaims decodes a JWT payload without verifying it.
func parseClaims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// subjectOf prefers the standard "sub" claim and falls back to the
// "user_id" claim used by the SSO service.
func subjectOf(claims jwt.MapClaims) string {
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	switch v := claims["user_id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}

// expiresWithin reports whether token is a JWT whose exp falls within d of
// now. Tokens without a readable exp never count as expiring.
func expiresWithin(token string, d time.Duration, now time.Time) bool {
	claims, err := parseClaims(token)
	if err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Add(d).Before(exp.Time)
}
