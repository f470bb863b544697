package internal

import (
	"math"
	"math/rand/v2"
	"slices"
	"sync"
)

// PoolFraction is the share of ranked entries eligible for sampling.
const PoolFraction = 0.2

// SimilarityIndex is an append-only in-memory cache of image embeddings.
type SimilarityIndex struct {
	mu      sync.RWMutex
	entries []CachedEntry

	rngMu sync.Mutex
	rng   *rand.Rand
}

type IndexOption func(*SimilarityIndex)

// WithRand sets the random source used to sample the candidate pool.
func WithRand(r *rand.Rand) IndexOption {
	return func(idx *SimilarityIndex) { idx.rng = r }
}

// WithSeed makes sampling reproducible.
func WithSeed(seed uint64) IndexOption {
	return WithRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

func NewSimilarityIndex(opts ...IndexOption) *SimilarityIndex {
	idx := &SimilarityIndex{}
	for _, o := range opts {
		o(idx)
	}
	if idx.rng == nil {
		idx.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return idx
}

// Add appends an entry. Identifiers are not deduplicated.
func (idx *SimilarityIndex) Add(id string, vec []float32) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries = append(idx.entries, CachedEntry{ID: id, Vector: vec})
}

func (idx *SimilarityIndex) AddAll(entries []CachedEntry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries = append(idx.entries, entries...)
}

func (idx *SimilarityIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.entries)
}

func (idx *SimilarityIndex) Entries() []CachedEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return slices.Clone(idx.entries)
}

// Similar ranks every entry against query, keeps the candidate pool and
// returns up to topN entries drawn uniformly from it. The result order is
// unspecified.
func (idx *SimilarityIndex) Similar(query []float32, topN int) []Match {
	idx.mu.RLock()
	ranked := RankBySimilarity(query, idx.entries)
	idx.mu.RUnlock()

	if len(ranked) == 0 || topN <= 0 {
		return []Match{}
	}

	pool := ranked[:CandidatePoolSize(len(ranked), topN)]

	idx.rngMu.Lock()
	defer idx.rngMu.Unlock()

	return SampleMatches(pool, topN, idx.rng)
}

// RankBySimilarity scores entries against query and sorts them best first.
// NaN scores sort after every real score.
func RankBySimilarity(query []float32, entries []CachedEntry) []Match {
	ranked := make([]Match, len(entries))
	for i, e := range entries {
		ranked[i] = Match{ID: e.ID, Score: CosineSimilarity(query, e.Vector)}
	}

	slices.SortStableFunc(ranked, func(a, b Match) int {
		return compareScoresDesc(a.Score, b.Score)
	})
	return ranked
}

func compareScoresDesc(a, b float32) int {
	aNaN, bNaN := isNaN(a), isNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}

func isNaN(f float32) bool {
	return f != f
}

// CandidatePoolSize returns max(ceil(PoolFraction*n), topN) clamped to n.
func CandidatePoolSize(n, topN int) int {
	size := int(math.Ceil(float64(n) * PoolFraction))
	size = max(size, topN)
	return min(size, n)
}

// SampleMatches draws min(k, len(pool)) matches uniformly without replacement.
func SampleMatches(pool []Match, k int, r *rand.Rand) []Match {
	k = min(k, len(pool))
	if k <= 0 {
		return []Match{}
	}

	picked := slices.Clone(pool)
	for i := 0; i < k; i++ {
		j := i + r.IntN(len(picked)-i)
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked[:k:k]
}

// CosineSimilarity returns dot(a, b) / (|a| |b|), or 0 when either vector has
// zero norm or the lengths differ.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case sim > 1:
		sim = 1
	case sim < -1:
		sim = -1
	}
	return float32(sim)
}
