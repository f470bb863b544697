package internal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelFetcherDownloads(t *testing.T) {
	payload := []byte("onnx graph bytes")
	var gotAuth string
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	sum := sha256.Sum256(payload)
	fetcher := NewModelFetcher(t.TempDir(), WithToken("hf_secret"))
	req := FetchRequest{URL: srv.URL, Filename: "clip.onnx", SHA256: hex.EncodeToString(sum[:])}

	var lastWritten int64
	path, err := fetcher.Fetch(context.Background(), req, func(written, total int64) { lastWritten = written })
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, int64(len(payload)), lastWritten)
	assert.Equal(t, "Bearer hf_secret", gotAuth)

	_, err = fetcher.Fetch(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, hits, "cached model must not be downloaded again")

	req.Force = true
	_, err = fetcher.Fetch(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
}

func TestModelFetcherChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tampered"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	fetcher := NewModelFetcher(dir)
	_, err := fetcher.Fetch(context.Background(), FetchRequest{URL: srv.URL, Filename: "clip.onnx", SHA256: "00ff"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")

	leftovers, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestModelFetcherErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	fetcher := NewModelFetcher(t.TempDir())

	_, err := fetcher.Fetch(context.Background(), FetchRequest{URL: srv.URL, Filename: "clip.onnx"}, nil)
	assert.ErrorContains(t, err, "404")

	_, err = fetcher.Fetch(context.Background(), FetchRequest{Filename: "clip.onnx"}, nil)
	assert.ErrorContains(t, err, "no download url")
}

func TestModelFetcherModelPath(t *testing.T) {
	fetcher := NewModelFetcher("/cache")
	assert.Equal(t, filepath.Join("/cache", "clip.onnx"), fetcher.ModelPath("clip.onnx"))
	assert.Equal(t, "/models/clip.onnx", fetcher.ModelPath("/models/clip.onnx"))
}
