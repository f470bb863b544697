package internal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultModelURL      = "https://huggingface.co/Xenova/clip-vit-base-patch32/resolve/main/onnx/model.onnx"
	DefaultModelFilename = "clip-vit-base-patch32.onnx"
)

// ProgressFunc receives the bytes written so far and the expected total,
// which is -1 when the server does not announce a length.
type ProgressFunc func(written, total int64)

type progressReader struct {
	r          io.Reader
	written    int64
	total      int64
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.written += int64(n)
		if p.onProgress != nil {
			p.onProgress(p.written, p.total)
		}
	}
	return n, err
}

// ModelFetcher places ONNX model files in a cache directory.
type ModelFetcher struct {
	cacheDir string
	token    string
	client   *http.Client
}

type FetcherOption func(*ModelFetcher)

// WithToken sends a bearer token, needed for gated Hugging Face repositories.
func WithToken(token string) FetcherOption {
	return func(f *ModelFetcher) { f.token = token }
}

func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *ModelFetcher) { f.client = c }
}

func NewModelFetcher(cacheDir string, opts ...FetcherOption) *ModelFetcher {
	f := &ModelFetcher{
		cacheDir: cacheDir,
		token:    os.Getenv("HF_TOKEN"),
		client:   http.DefaultClient,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// ModelPath is where filename lives in the cache. Absolute names are returned unchanged.
func (f *ModelFetcher) ModelPath(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(f.cacheDir, filename)
}

// FetchRequest describes one model file. SHA256, when set, is checked
// against the downloaded bytes before the file is moved into place.
type FetchRequest struct {
	URL      string
	Filename string
	SHA256   string
	Force    bool
}

// Fetch returns the local path of the model, downloading it first when it is
// missing or Force is set.
func (f *ModelFetcher) Fetch(ctx context.Context, req FetchRequest, onProgress ProgressFunc) (string, error) {
	dest := f.ModelPath(req.Filename)

	if !req.Force {
		if _, err := os.Stat(dest); err == nil {
			return dest, nil
		}
	}
	if req.URL == "" {
		return "", fmt.Errorf("model %s missing and no download url configured", dest)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}
	if err := f.download(ctx, req, dest, onProgress); err != nil {
		return "", err
	}
	return dest, nil
}

func (f *ModelFetcher) download(ctx context.Context, req FetchRequest, dest string, onProgress ProgressFunc) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if f.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %s", req.URL, resp.Status)
	}

	part, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("create partial file: %w", err)
	}
	partName := part.Name()

	sum := sha256.New()
	body := &progressReader{r: resp.Body, total: resp.ContentLength, onProgress: onProgress}
	_, copyErr := io.Copy(io.MultiWriter(part, sum), body)

	if err := errors.Join(copyErr, part.Close()); err != nil {
		os.Remove(partName)
		return fmt.Errorf("write %s: %w", dest, err)
	}

	if want := strings.ToLower(req.SHA256); want != "" {
		if got := hex.EncodeToString(sum.Sum(nil)); got != want {
			os.Remove(partName)
			return fmt.Errorf("checksum mismatch for %s: got %s, want %s", req.URL, got, want)
		}
	}

	if err := os.Rename(partName, dest); err != nil {
		os.Remove(partName)
		return fmt.Errorf("install %s: %w", dest, err)
	}
	return nil
}

func DefaultCacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "imgsim", "models"), nil
}
