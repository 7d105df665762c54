package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/arnatech/noc/pkg/idx"
)

// RequestIDHeader carries the per-request correlation ID to the backend.
const RequestIDHeader = "X-Request-ID"

// Transport logs outbound requests and stamps them with a request ID.
// A nil next uses http.DefaultTransport.
func Transport(base *slog.Logger, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}

	return &transport{base: base, next: next}
}

type transport struct {
	base *slog.Logger
	next http.RoundTripper
}

func (t *transport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID := r.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = RequestID(r.Context())
		if reqID == "" {
			reqID = idx.NewRequestID()
		}
		r = r.Clone(r.Context())
		r.Header.Set(RequestIDHeader, reqID)
	}

	logger := t.base.With(
		"req_id", reqID,
		"method", r.Method,
		"host", r.URL.Host,
		"path", r.URL.Path,
	)

	resp, err := t.next.RoundTrip(r)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("http_request_failed", "duration_ms", duration, "error", err)
		return nil, err
	}

	logger.Debug("http_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
