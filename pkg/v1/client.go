package v1

import (
	"context"
	"fmt"
	"os"

	"github.com/4thel00z/imgsim/internal"
)

// Client provides programmatic access to an image library.
type Client struct {
	lib *internal.Library
}

// New opens the library of the resolved scope. The scope must have been
// initialised with `imgsim init`.
func New(opts ...Option) (*Client, error) {
	return NewContext(context.Background(), opts...)
}

func NewContext(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	scope := internal.NewScopeResolver().Resolve(cfg.scope)
	if _, err := os.Stat(scope.DataPath); err != nil {
		return nil, fmt.Errorf("not initialized: %s", scope.DataPath)
	}

	libOpts := internal.LibraryOptions{
		WithEmbedder: true,
		Logger:       cfg.logger,
	}
	if cfg.embedder != nil {
		libOpts.Embedder = cfg.embedder
	}
	if cfg.store != nil {
		libOpts.Store = storeAdapter{cfg.store}
	}
	if cfg.seed != nil {
		libOpts.IndexOptions = []internal.IndexOption{internal.WithSeed(*cfg.seed)}
	}

	lib, err := internal.OpenLibrary(ctx, scope, libOpts)
	if err != nil {
		return nil, err
	}
	return &Client{lib: lib}, nil
}

// Similar returns up to topN images drawn from the closest fifth of the
// library. A topN of zero uses the configured default.
func (c *Client) Similar(ctx context.Context, path string, topN int) ([]Match, error) {
	if topN == 0 {
		topN = c.lib.Config.Index.TopN
	}

	matches, err := c.lib.Service.FindSimilar(ctx, path, topN)
	if err != nil {
		return nil, fmt.Errorf("similar: %w", err)
	}

	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		out = append(out, Match{Path: m.ID, Score: m.Score})
	}
	return out, nil
}

// Ingest embeds and stores the given images. Per-image failures are reported
// in the result; the returned error joins them.
func (c *Client) Ingest(ctx context.Context, paths ...string) (*IngestResult, error) {
	report := c.lib.Service.IngestBatch(ctx, paths)

	res := &IngestResult{Ingested: report.Ingested}
	if len(report.Failed) > 0 {
		res.Failed = make(map[string]error, len(report.Failed))
		for _, f := range report.Failed {
			res.Failed[f.Path] = f.Err
		}
	}
	return res, report.Err()
}

// Len is the number of embeddings currently searchable.
func (c *Client) Len() int {
	return c.lib.Service.Index().Len()
}

// Close releases the embedder and the database.
func (c *Client) Close() error {
	return c.lib.Close()
}

type storeAdapter struct {
	s Store
}

func (a storeAdapter) StoreEmbedding(ctx context.Context, id string, vec []float32) error {
	return a.s.StoreEmbedding(ctx, id, vec)
}

func (a storeAdapter) LoadAllEmbeddings(ctx context.Context) ([]internal.CachedEntry, error) {
	entries, err := a.s.LoadAllEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]internal.CachedEntry, len(entries))
	for i, e := range entries {
		out[i] = internal.CachedEntry{ID: e.Path, Vector: e.Vector}
	}
	return out, nil
}

// Errors callers can match with errors.Is.
var (
	ErrDecode      = internal.ErrDecode
	ErrIO          = internal.ErrIO
	ErrSessionInit = internal.ErrSessionInit
	ErrInference   = internal.ErrInference
	ErrShape       = internal.ErrShape
)
