package internal

import (
	"errors"
	"fmt"
)

var (
	ErrDecode      = errors.New("decode image")
	ErrIO          = errors.New("filesystem access")
	ErrSessionInit = errors.New("session init")
	ErrInference   = errors.New("inference")
	ErrShape       = errors.New("tensor shape")
	ErrNoEmbedder  = errors.New("no embedder available")
	ErrNotFound    = errors.New("image not found")
)

// CachedEntry pairs an image identifier with its embedding.
type CachedEntry struct {
	ID     string
	Vector []float32
}

// Match is a ranked entry. Score is the cosine similarity to the query.
type Match struct {
	ID    string
	Score float32
}

// ItemError reports the failure of a single image inside multi-image work.
type ItemError struct {
	Path string
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}
