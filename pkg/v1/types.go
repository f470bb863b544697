package v1

import "context"

// Match is an image returned by Similar with its cosine similarity to the query.
type Match struct {
	Path  string  `json:"path"`
	Score float32 `json:"score"`
}

// IngestResult lists which images were embedded and which failed.
type IngestResult struct {
	Ingested []string         `json:"ingested"`
	Failed   map[string]error `json:"-"`
}

// Embedder turns an image file into an embedding vector.
type Embedder interface {
	Encode(ctx context.Context, path string) ([]float32, error)
	EncodeBatch(ctx context.Context, paths []string) ([][]float32, error)
	Dimension() int
	Device() string
	Close() error
}

// Store persists embeddings between runs.
type Store interface {
	StoreEmbedding(ctx context.Context, id string, vec []float32) error
	LoadAllEmbeddings(ctx context.Context) ([]Entry, error)
}

// Entry is a stored embedding.
type Entry struct {
	Path   string
	Vector []float32
}
