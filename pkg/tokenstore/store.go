// Package tokenstore persists the session credential pair under the fixed
// keys the web client used in browser local storage.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Fixed storage keys for the credential pair.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// KeyResendOTPPrefix prefixes the per-address timestamp of the last OTP
// resend.
const KeyResendOTPPrefix = "resend_otp:"

var ErrClosed = errors.New("tokenstore: closed")

// KV is a minimal string key-value store. Get returns "" and no error for a
// missing key. Drivers must be safe for concurrent use.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Tokens is the credential pair issued by the SSO service.
type Tokens struct {
	Access  string
	Refresh string
}

// IsZero reports whether neither token is present, i.e. unauthenticated.
func (t Tokens) IsZero() bool { return t.Access == "" && t.Refresh == "" }

// Store reads and writes the credential pair on top of a KV driver.
type Store struct {
	kv KV
}

// New wraps a KV driver.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// NewMemory returns a Store backed by an in-process map.
func NewMemory() *Store {
	return New(NewMemoryKV())
}

// AccessToken returns the stored access token or "".
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	return s.kv.Get(ctx, KeyAccessToken)
}

// RefreshToken returns the stored refresh token or "".
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	return s.kv.Get(ctx, KeyRefreshToken)
}

// Tokens returns both tokens.
func (s *Store) Tokens(ctx context.Context) (Tokens, error) {
	access, err := s.AccessToken(ctx)
	if err != nil {
		return Tokens{}, err
	}
	refresh, err := s.RefreshToken(ctx)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{Access: access, Refresh: refresh}, nil
}

func (s *Store) SetAccessToken(ctx context.Context, token string) error {
	if err := s.kv.Set(ctx, KeyAccessToken, token); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	return nil
}

func (s *Store) SetRefreshToken(ctx context.Context, token string) error {
	if err := s.kv.Set(ctx, KeyRefreshToken, token); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// Save persists a freshly issued pair. An empty refresh token leaves the
// stored one untouched, which is what a non-rotating refresh returns.
func (s *Store) Save(ctx context.Context, t Tokens) error {
	if err := s.SetAccessToken(ctx, t.Access); err != nil {
		return err
	}
	if t.Refresh == "" {
		return nil
	}
	return s.SetRefreshToken(ctx, t.Refresh)
}

// Clear removes both tokens.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyAccessToken, KeyRefreshToken); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

// Stamp returns the time recorded under key, or the zero time if none is.
func (s *Store) Stamp(ctx context.Context, key string) (time.Time, error) {
	raw, err := s.kv.Get(ctx, key)
	if err != nil || raw == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp under %q: %w", key, err)
	}
	return t, nil
}

// SetStamp records t under key. Stamps survive Clear.
func (s *Store) SetStamp(ctx context.Context, key string, t time.Time) error {
	if err := s.kv.Set(ctx, key, t.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to store %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying driver.
func (s *Store) Close() error { return s.kv.Close() }
