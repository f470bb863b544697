package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/4thel00z/imgsim/internal"
	"github.com/charmbracelet/fang"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd(version, newApp())
	if err := fang.Execute(ctx, rootCmd); err != nil {
		stop()
		os.Exit(1)
	}
}

// embedderFunc opens the embedding backend for a library configuration.
type embedderFunc func(cfg *internal.Config, logger *slog.Logger, m *internal.Metrics) (internal.Embedder, error)

type app struct {
	resolver     *internal.ScopeResolver
	logger       *slog.Logger
	openEmbedder embedderFunc
}

func newApp() *app {
	return &app{
		resolver: internal.NewScopeResolver(),
		logger:   slog.Default(),
		openEmbedder: func(cfg *internal.Config, logger *slog.Logger, m *internal.Metrics) (internal.Embedder, error) {
			enc, err := internal.OpenEncoder(cfg, logger, m)
			if err != nil {
				return nil, err
			}
			return enc, nil
		},
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

type openOptions struct {
	embedder bool
	metrics  *internal.Metrics
	seed     *uint64
}

// scope resolves the scope named by --scope and checks it was initialized.
func (a *app) scope(scopeHint string) (internal.Scope, error) {
	scope := a.resolver.Resolve(scopeHint)
	if _, err := os.Stat(scope.DataPath); os.IsNotExist(err) {
		return scope, fmt.Errorf("not initialized: %s (run `imgsim init`)", scope.DataPath)
	}
	return scope, nil
}

// open resolves the scope named by --scope and opens its library.
func (a *app) open(ctx context.Context, scopeHint string, opts openOptions) (*internal.Library, error) {
	scope, err := a.scope(scopeHint)
	if err != nil {
		return nil, err
	}

	libOpts := internal.LibraryOptions{
		Metrics: opts.metrics,
		Logger:  a.logger,
	}
	if opts.seed != nil {
		libOpts.IndexOptions = append(libOpts.IndexOptions, internal.WithSeed(*opts.seed))
	}

	if opts.embedder {
		cfg, err := internal.LoadConfig(scope)
		if err != nil {
			return nil, err
		}
		emb, err := a.openEmbedder(cfg, a.logger, opts.metrics)
		if err != nil {
			return nil, fmt.Errorf("open embedder: %w", err)
		}
		libOpts.Embedder = emb
	}

	return internal.OpenLibrary(ctx, scope, libOpts)
}
