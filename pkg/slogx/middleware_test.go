package slogx_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arnatech/noc/pkg/slogx"
)

func TestTransportStampsRequestID(t *testing.T) {
	t.Parallel()

	seen := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get(slogx.RequestIDHeader)
		w.WriteHeader(http.StatusTeapot)
	}))
	t.Cleanup(srv.Close)

	var logs bytes.Buffer
	logger := slogx.New(slogx.Config{Service: "test", Level: "debug", Format: "json", Output: &logs})
	client := &http.Client{Transport: slogx.Transport(logger, nil)}

	resp, err := client.Get(srv.URL + "/generated")
	require.NoError(t, err)
	resp.Body.Close()
	require.NotEmpty(t, <-seen)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/given", nil)
	require.NoError(t, err)
	req.Header.Set(slogx.RequestIDHeader, "req-123")
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "req-123", <-seen)

	require.Contains(t, logs.String(), `"msg":"http_request"`)
	require.Contains(t, logs.String(), `"req_id":"req-123"`)
	require.Contains(t, logs.String(), `"status":418`)
}

func TestTransportLogsFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var logs bytes.Buffer
	logger := slogx.New(slogx.Config{Level: "warn", Output: &logs})
	client := &http.Client{Transport: slogx.Transport(logger, nil)}

	_, err := client.Get(url)
	require.Error(t, err)
	require.Contains(t, logs.String(), "http_request_failed")
}
