package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// SearchService wires the encoder, the similarity index and the durable store.
type SearchService struct {
	embedder  Embedder
	index     *SimilarityIndex
	store     Store
	logger    *slog.Logger
	metrics   *Metrics
	batchSize int
}

type ServiceOption func(*SearchService)

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *SearchService) { s.logger = l }
}

func WithServiceMetrics(m *Metrics) ServiceOption {
	return func(s *SearchService) { s.metrics = m }
}

// WithBatchSize sets how many images IngestBatch sends through one inference call.
func WithBatchSize(n int) ServiceOption {
	return func(s *SearchService) { s.batchSize = n }
}

func NewSearchService(embedder Embedder, index *SimilarityIndex, store Store, opts ...ServiceOption) *SearchService {
	s := &SearchService{
		embedder:  embedder,
		index:     index,
		store:     store,
		batchSize: 32,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.batchSize < 1 {
		s.batchSize = 1
	}
	return s
}

func (s *SearchService) Index() *SimilarityIndex {
	return s.index
}

// Load fills the index with every embedding held by the store.
func (s *SearchService) Load(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}

	entries, err := s.store.LoadAllEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("load embeddings: %w", err)
	}

	s.index.AddAll(entries)
	s.metrics.setIndexSize(s.index.Len())
	s.logger.Debug("index loaded", "entries", len(entries))
	return len(entries), nil
}

// FindSimilar embeds the query image and returns up to topN diversified
// neighbours. The query does not have to be part of the index.
func (s *SearchService) FindSimilar(ctx context.Context, path string, topN int) ([]Match, error) {
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}

	vec, err := s.embedder.Encode(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return s.index.Similar(vec, topN), nil
}

// Ingest embeds one image, persists it and appends it to the index.
func (s *SearchService) Ingest(ctx context.Context, path string) ([]float32, error) {
	if s.embedder == nil {
		return nil, ErrNoEmbedder
	}

	vec, err := s.embedder.Encode(ctx, path)
	if err != nil {
		s.metrics.observeIngest(false)
		return nil, fmt.Errorf("embed %s: %w", path, err)
	}

	if err := s.persist(ctx, path, vec); err != nil {
		s.metrics.observeIngest(false)
		return nil, err
	}
	return vec, nil
}

func (s *SearchService) persist(ctx context.Context, path string, vec []float32) error {
	if s.store != nil {
		if err := s.store.StoreEmbedding(ctx, path, vec); err != nil {
			return fmt.Errorf("persist %s: %w", path, err)
		}
	}

	s.index.Add(path, vec)
	s.metrics.observeIngest(true)
	s.metrics.setIndexSize(s.index.Len())
	return nil
}

// IngestReport lists the outcome of every image handed to IngestBatch.
type IngestReport struct {
	Ingested  []string
	Failed    []*ItemError
	Fallbacks int
}

func (r *IngestReport) Err() error {
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// IngestBatch encodes paths in batches. A batch that fails as a whole is
// retried one image at a time, so a single bad file only costs itself.
func (s *SearchService) IngestBatch(ctx context.Context, paths []string) *IngestReport {
	report := &IngestReport{}
	if s.embedder == nil {
		for _, p := range paths {
			report.Failed = append(report.Failed, &ItemError{Path: p, Err: ErrNoEmbedder})
		}
		return report
	}

	for start := 0; start < len(paths); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			for _, p := range paths[start:] {
				report.Failed = append(report.Failed, &ItemError{Path: p, Err: err})
			}
			return report
		}

		chunk := paths[start:min(start+s.batchSize, len(paths))]
		vecs, err := s.embedder.EncodeBatch(ctx, chunk)
		if err != nil {
			s.logger.Warn("batch encoding failed, encoding images one by one",
				"batch_start", start, "batch_size", len(chunk), "error", err)
			report.Fallbacks++
			s.metrics.observeBatchFallback()
			s.ingestEach(ctx, chunk, report)
			continue
		}

		for i, path := range chunk {
			err := s.persist(ctx, path, vecs[i])
			if err != nil {
				s.metrics.observeIngest(false)
			}
			s.record(report, path, err)
		}
	}

	return report
}

func (s *SearchService) ingestEach(ctx context.Context, paths []string, report *IngestReport) {
	for _, path := range paths {
		_, err := s.Ingest(ctx, path)
		s.record(report, path, err)
	}
}

func (s *SearchService) record(report *IngestReport, path string, err error) {
	if err != nil {
		s.logger.Warn("image not ingested", "path", path, "error", err)
		report.Failed = append(report.Failed, &ItemError{Path: path, Err: err})
		return
	}
	report.Ingested = append(report.Ingested, path)
}
