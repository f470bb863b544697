package v1

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/4thel00z/imgsim/internal"
)

// lookupEmbedder returns a fixed vector per file name.
type lookupEmbedder struct {
	vectors map[string][]float32
}

func (e *lookupEmbedder) Encode(_ context.Context, path string) ([]float32, error) {
	vec, ok := e.vectors[filepath.Base(path)]
	if !ok {
		return nil, internal.ErrDecode
	}
	return vec, nil
}

func (e *lookupEmbedder) EncodeBatch(ctx context.Context, paths []string) ([][]float32, error) {
	out := make([][]float32, len(paths))
	for i, p := range paths {
		vec, err := e.Encode(ctx, p)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *lookupEmbedder) Dimension() int { return 2 }

func (e *lookupEmbedder) Device() string { return "lookup" }

func (e *lookupEmbedder) Close() error { return nil }

type sliceStore struct {
	entries []Entry
}

func (s *sliceStore) StoreEmbedding(_ context.Context, id string, vec []float32) error {
	s.entries = append(s.entries, Entry{Path: id, Vector: vec})
	return nil
}

func (s *sliceStore) LoadAllEmbeddings(context.Context) ([]Entry, error) {
	return s.entries, nil
}

func setupClientTest(t *testing.T, opts ...Option) *Client {
	t.Helper()
	tmpDir := t.TempDir()

	origWd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	if err := os.Mkdir(filepath.Join(tmpDir, internal.DataDirName), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	emb := &lookupEmbedder{vectors: map[string][]float32{
		"sunset.png": {1, 0.2},
		"beach.png":  {0.9, 0.3},
		"forest.png": {0, 1},
		"query.png":  {1, 0.1},
	}}

	client, err := New(append([]Option{WithEmbedder(emb), WithSeed(1)}, opts...)...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClientIngestAndSimilar(t *testing.T) {
	client := setupClientTest(t)
	ctx := context.Background()

	res, err := client.Ingest(ctx, "sunset.png", "beach.png", "forest.png")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(res.Ingested) != 3 {
		t.Errorf("ingested %d images, want 3", len(res.Ingested))
	}
	if client.Len() != 3 {
		t.Errorf("Len() = %d, want 3", client.Len())
	}

	matches, err := client.Similar(ctx, "query.png", 1)
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	if len(matches) != 1 || matches[0].Path != "sunset.png" {
		t.Errorf("matches = %+v, want sunset.png", matches)
	}
}

func TestClientPersistsAcrossReopen(t *testing.T) {
	client := setupClientTest(t)
	ctx := context.Background()

	if _, err := client.Ingest(ctx, "forest.png"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := New(WithEmbedder(&lookupEmbedder{}))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if reopened.Len() != 1 {
		t.Errorf("Len() after reopen = %d, want 1", reopened.Len())
	}
}

func TestClientIngestFailure(t *testing.T) {
	client := setupClientTest(t)

	res, err := client.Ingest(context.Background(), "beach.png", "unknown.png")
	if !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
	if len(res.Ingested) != 1 || res.Failed["unknown.png"] == nil {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestClientCustomStore(t *testing.T) {
	store := &sliceStore{entries: []Entry{{Path: "old.png", Vector: []float32{1, 0}}}}
	client := setupClientTest(t, WithStore(store))

	if client.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", client.Len())
	}
	if _, err := client.Ingest(context.Background(), "forest.png"); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(store.entries) != 2 {
		t.Errorf("store holds %d entries, want 2", len(store.entries))
	}
}

func TestNewRequiresInit(t *testing.T) {
	origWd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOME", t.TempDir())

	if _, err := New(WithEmbedder(&lookupEmbedder{})); err == nil {
		t.Error("expected error for uninitialized library")
	}
}
