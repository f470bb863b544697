package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Library is an opened scope: its configuration, its embedding store and
// the search service built on top of them.
type Library struct {
	Scope    Scope
	Config   *Config
	Store    Store
	DB       *SQLiteStore
	Embedder Embedder
	Service  *SearchService
}

type LibraryOptions struct {
	// Embedder is owned by the library once passed in. When nil and
	// WithEmbedder is set, the ONNX encoder described by the config is opened.
	Embedder     Embedder
	WithEmbedder bool
	// Store replaces the scope's SQLite database.
	Store        Store
	Metrics      *Metrics
	Logger       *slog.Logger
	IndexOptions []IndexOption
}

// OpenLibrary opens the store of scope, loads every cached embedding into a
// fresh index and wires the search service.
func OpenLibrary(ctx context.Context, scope Scope, opts LibraryOptions) (*Library, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := LoadConfig(scope)
	if err != nil {
		return nil, closeOnError(opts.Embedder, err)
	}

	lib := &Library{Scope: scope, Config: cfg, Store: opts.Store}
	if lib.Store == nil {
		db, err := NewSQLiteStore(ctx, scope.DatabasePath(cfg.Database))
		if err != nil {
			return nil, closeOnError(opts.Embedder, err)
		}
		lib.DB = db
		lib.Store = db
	}

	lib.Embedder = opts.Embedder
	if lib.Embedder == nil && opts.WithEmbedder {
		enc, err := OpenEncoder(cfg, logger, opts.Metrics)
		if err != nil {
			lib.Close()
			return nil, err
		}
		lib.Embedder = enc
	}

	lib.Service = NewSearchService(lib.Embedder, NewSimilarityIndex(opts.IndexOptions...), lib.Store,
		WithLogger(logger),
		WithServiceMetrics(opts.Metrics),
		WithBatchSize(cfg.Index.BatchSize),
	)
	if _, err := lib.Service.Load(ctx); err != nil {
		lib.Close()
		return nil, err
	}

	return lib, nil
}

func (l *Library) Close() error {
	var errs []error
	if l.Embedder != nil {
		errs = append(errs, l.Embedder.Close())
	}
	if l.DB != nil {
		errs = append(errs, l.DB.Close())
	}
	return errors.Join(errs...)
}

// ResolveModelPath returns where the configured model file is expected.
func ResolveModelPath(cfg *Config) (string, error) {
	cacheDir, err := DefaultCacheDir()
	if err != nil {
		return "", fmt.Errorf("model cache dir: %w", err)
	}
	return NewModelFetcher(cacheDir).ModelPath(cfg.Model.File), nil
}

// OpenEncoder opens the ONNX session for cfg, falling back to the CPU when
// the accelerator cannot be initialised, and logs which path was taken.
func OpenEncoder(cfg *Config, logger *slog.Logger, metrics *Metrics) (*Encoder, error) {
	modelPath, err := ResolveModelPath(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: model %s not found, run `imgsim model pull`", ErrSessionInit, modelPath)
	}

	device, err := ParseDevice(cfg.Runtime.Device)
	if err != nil {
		return nil, err
	}

	opener := &ORTOpener{LibraryPath: cfg.Runtime.LibraryPath, IntraOpThreads: cfg.Runtime.IntraOpThreads}
	init := OpenSession(opener, modelPath, device)

	switch init.Outcome {
	case InitAccelerated:
		logger.Info("inference session ready", "device", init.Device, "model", modelPath)
	case InitFallback:
		logger.Warn("accelerator unavailable, running on cpu", "requested", ResolveDevice(device), "error", init.AcceleratorErr)
	case InitCPU:
		logger.Info("inference session ready", "device", init.Device, "model", modelPath)
	case InitFailed:
		logger.Error("inference session failed", "error", init.Err)
	}

	return NewEncoder(init, WithDimension(cfg.Model.Dimension), WithEncoderMetrics(metrics))
}

// closeOnError releases an embedder handed to OpenLibrary when opening fails
// before the library takes it over.
func closeOnError(e Embedder, err error) error {
	if e == nil {
		return err
	}
	return errors.Join(err, e.Close())
}
