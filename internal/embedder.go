package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
)

type Embedder interface {
	Encode(ctx context.Context, path string) ([]float32, error)
	EncodeBatch(ctx context.Context, paths []string) ([][]float32, error)
	Dimension() int
	Device() string
	Close() error
}

var _ Embedder = (*Encoder)(nil)

// Encoder owns one inference session and serializes every call into it.
type Encoder struct {
	mu        sync.Mutex
	session   Session
	pre       *Preprocessor
	dimension int
	device    Device
	metrics   *Metrics
}

type encoderConfig struct {
	fs        billy.Filesystem
	dimension int
	metrics   *Metrics
}

type EncoderOption func(*encoderConfig)

// WithFilesystem makes the encoder read images through fs instead of the host filesystem.
func WithFilesystem(fs billy.Filesystem) EncoderOption {
	return func(c *encoderConfig) { c.fs = fs }
}

// WithDimension pins the expected embedding length. Zero learns it from the first inference.
func WithDimension(d int) EncoderOption {
	return func(c *encoderConfig) { c.dimension = d }
}

func WithEncoderMetrics(m *Metrics) EncoderOption {
	return func(c *encoderConfig) { c.metrics = m }
}

// NewEncoder takes ownership of the session produced by OpenSession.
func NewEncoder(init SessionInit, opts ...EncoderOption) (*Encoder, error) {
	if init.Outcome == InitFailed || init.Session == nil {
		if init.Err != nil {
			return nil, init.Err
		}
		return nil, fmt.Errorf("%w: no session", ErrSessionInit)
	}

	var cfg encoderConfig
	for _, o := range opts {
		o(&cfg)
	}

	cfg.metrics.observeSession(init)

	return &Encoder{
		session:   init.Session,
		pre:       NewPreprocessor(cfg.fs),
		dimension: cfg.dimension,
		device:    init.Device,
		metrics:   cfg.metrics,
	}, nil
}

func (e *Encoder) Encode(ctx context.Context, path string) ([]float32, error) {
	pixels, err := e.pre.Preprocess(path)
	if err != nil {
		return nil, err
	}

	out, err := e.run(ctx, pixels)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dimension == 0 {
		e.dimension = len(out.Data)
	}
	if len(out.Data) != e.dimension {
		return nil, fmt.Errorf("%w: expected %d values for one image, got %d (shape %v)", ErrShape, e.dimension, len(out.Data), out.Shape)
	}

	vec := make([]float32, len(out.Data))
	copy(vec, out.Data)
	return vec, nil
}

// EncodeBatch preprocesses every image, runs a single inference over the
// concatenated batch and splits the (N, D) output back into N embeddings.
func (e *Encoder) EncodeBatch(ctx context.Context, paths []string) ([][]float32, error) {
	if len(paths) == 0 {
		return [][]float32{}, nil
	}

	tensors := make([]*Tensor, len(paths))
	for i, path := range paths {
		t, err := e.pre.Preprocess(path)
		if err != nil {
			return nil, &ItemError{Path: path, Err: err}
		}
		tensors[i] = t
	}

	batch, err := Concat(tensors)
	if err != nil {
		return nil, err
	}
	n := int64(len(paths))
	want := []int64{n, InputChannels, InputSize, InputSize}
	if !equalDims(batch.Shape, want) {
		return nil, fmt.Errorf("%w: batch tensor is %v, want %v", ErrShape, batch.Shape, want)
	}

	out, err := e.run(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(out.Shape) != 2 || out.Shape[0] != n {
		return nil, fmt.Errorf("%w: output %v for a batch of %d", ErrShape, out.Shape, n)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.dimension == 0 {
		e.dimension = int(out.Shape[1])
	}
	if int(out.Shape[1]) != e.dimension {
		return nil, fmt.Errorf("%w: expected dimension %d, got %d", ErrShape, e.dimension, out.Shape[1])
	}

	return out.Rows()
}

func (e *Encoder) run(ctx context.Context, pixels *Tensor) (*Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	out, err := e.session.Run(pixels)
	e.metrics.observeInference(int(pixels.Shape[0]), time.Since(start), err)
	if err != nil {
		if errors.Is(err, ErrInference) || errors.Is(err, ErrShape) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: session returned no output", ErrInference)
	}
	return out, nil
}

func (e *Encoder) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dimension
}

func (e *Encoder) Device() string {
	return string(e.device)
}

func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.session.Close()
}
