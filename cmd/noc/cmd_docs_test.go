package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arnatech/noc/pkg/idx"
	"github.com/arnatech/noc/pkg/nocsdk"
)

func TestUploadFilesReportsEachFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.txt", "bad.txt", "c.txt"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0o600))
		paths = append(paths, path)
	}
	paths = append(paths, filepath.Join(dir, "missing.txt"))

	var calls atomic.Int32
	upload := func(ctx context.Context, filename string, r io.Reader, title string) (*nocsdk.Document, error) {
		calls.Add(1)
		if filepath.Base(filename) == "bad.txt" {
			return nil, errors.New("rejected")
		}
		// Other uploads must not see a cancelled context.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &nocsdk.Document{ID: idx.Ref(filepath.Base(filename)), Title: filepath.Base(filename)}, nil
	}

	var out, errOut bytes.Buffer
	err := uploadFiles(context.Background(), &out, &errOut, upload, paths, "")
	require.EqualError(t, err, "2 of 4 uploads failed")
	require.Equal(t, int32(3), calls.Load())

	require.Contains(t, out.String(), "a.txt")
	require.Contains(t, out.String(), "c.txt")
	require.Contains(t, errOut.String(), "bad.txt: rejected")
	require.Contains(t, errOut.String(), "missing.txt")
}

func TestUploadFilesAllSucceed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runbook.md")
	require.NoError(t, os.WriteFile(path, []byte("# runbook"), 0o600))

	upload := func(_ context.Context, _ string, r io.Reader, title string) (*nocsdk.Document, error) {
		body, err := io.ReadAll(r)
		if err != nil || string(body) != "# runbook" {
			return nil, errors.New("unexpected body")
		}
		return &nocsdk.Document{ID: "7", Title: title}, nil
	}

	var out, errOut bytes.Buffer
	require.NoError(t, uploadFiles(context.Background(), &out, &errOut, upload, []string{path}, "Runbook"))
	require.Contains(t, out.String(), `as "Runbook" (id 7)`)
	require.Empty(t, errOut.String())
}
