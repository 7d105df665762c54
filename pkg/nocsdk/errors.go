package nocsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies a failed request once, at the transport boundary.
type Kind int

const (
	// KindHTTP is a response with a non-2xx status.
	KindHTTP Kind = iota + 1
	// KindNetwork is a request that never produced a response.
	KindNetwork
	// KindMalformed is a 500 whose body is not JSON, usually an HTML page
	// from a proxy in front of the backend.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindNetwork:
		return "network"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

var (
	// ErrUnauthorized matches any 401 response.
	ErrUnauthorized = errors.New("nocsdk: unauthorized")

	// ErrPermissionDenied matches any 403 response. The session is ended
	// before the error reaches the caller.
	ErrPermissionDenied = errors.New("nocsdk: permission denied")

	// ErrUnexpectedResponse matches a KindMalformed error.
	ErrUnexpectedResponse = errors.New("nocsdk: unexpected non-JSON response")

	// ErrRefreshFailed wraps the error returned by the refresh endpoint.
	ErrRefreshFailed = errors.New("nocsdk: token refresh failed")

	// ErrNoRefreshToken is the reason given to the login boundary when a
	// 401 arrives and there is nothing to refresh with.
	ErrNoRefreshToken = errors.New("nocsdk: no refresh token")

	// ErrNotAuthenticated is returned by operations that need a stored
	// session when none exists.
	ErrNotAuthenticated = errors.New("nocsdk: not authenticated")
)

// APIError is the single error shape produced by Client and AuthClient for
// failed requests.
type APIError struct {
	Kind       Kind
	StatusCode int
	Body       []byte

	// Message is a human readable summary extracted from the body.
	Message string

	// Err is the underlying transport error for KindNetwork.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	switch e.Kind {
	case KindNetwork:
		return fmt.Sprintf("request failed: %v", e.Err)
	case KindMalformed:
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, ErrUnexpectedResponse.Error())
	}

	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *APIError) Unwrap() error { return e.Err }

// Is lets callers test the classification with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Kind == KindHTTP && e.StatusCode == http.StatusUnauthorized
	case ErrPermissionDenied:
		return e.Kind == KindHTTP && e.StatusCode == http.StatusForbidden
	case ErrUnexpectedResponse:
		return e.Kind == KindMalformed
	}
	return false
}

// MFARequiredError is returned by login calls when the account needs a
// second factor. Retry the login with an OTP.
type MFARequiredError struct {
	Message string
}

// Error implements the error interface.
func (e *MFARequiredError) Error() string {
	if e.Message == "" {
		return "MFA required"
	}
	return "MFA required: " + e.Message
}

// parseErrorResponse classifies a non-2xx response.
func parseErrorResponse(resp *http.Response, body []byte) *APIError {
	if resp.StatusCode == http.StatusInternalServerError && !isJSON(resp.Header.Get("Content-Type")) {
		return &APIError{
			Kind:       KindMalformed,
			StatusCode: resp.StatusCode,
			Body:       body,
			Message:    ErrUnexpectedResponse.Error(),
		}
	}

	return &APIError{
		Kind:       KindHTTP,
		StatusCode: resp.StatusCode,
		Body:       body,
		Message:    extractMessage(body),
	}
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// extractMessage pulls a display message out of an error body. It looks at
// "message", "detail" and "error" in that order and otherwise joins every
// field error with " | ". A plain string body is returned as is.
func extractMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		var s string
		if json.Unmarshal(body, &s) == nil {
			return s
		}
		if strings.HasPrefix(trimmed, "<") {
			return ""
		}
		return trimmed
	}

	for _, key := range []string{"message", "detail", "error"} {
		if s, ok := fields[key].(string); ok && s != "" {
			return s
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, flattenMessages(fields[k])...)
	}
	return strings.Join(parts, " | ")
}

func flattenMessages(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		var out []string
		for _, item := range val {
			out = append(out, flattenMessages(item)...)
		}
		return out
	case nil:
		return nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		return []string{string(b)}
	}
}
