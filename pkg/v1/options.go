package v1

import "log/slog"

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	scope    string
	embedder Embedder
	store    Store
	seed     *uint64
	logger   *slog.Logger
}

// WithScope forces a specific scope (global or library).
func WithScope(scope string) Option {
	return func(c *clientConfig) {
		c.scope = scope
	}
}

// WithEmbedder replaces the ONNX encoder configured for the scope.
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithStore replaces the scope's SQLite database.
func WithStore(s Store) Option {
	return func(c *clientConfig) {
		c.store = s
	}
}

// WithSeed makes Similar draw the same matches for the same library and query.
func WithSeed(seed uint64) Option {
	return func(c *clientConfig) {
		c.seed = &seed
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}
