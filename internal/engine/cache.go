package engine

import (
	"context"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/facemark/internal/metrics"
	"github.com/kozaktomas/facemark/internal/store"
)

// DefaultCacheTTL is the maximum age of a cached candidate set before a
// read attempts a refresh.
const DefaultCacheTTL = 10 * time.Minute

// DefaultHNSWCutoff is the roster size at which a refreshed candidate set
// gets an approximate-NN index instead of relying on the linear scan.
const DefaultHNSWCutoff = 2000

const hnswMaxNeighbors = 16

// Candidate is one identity in a cached candidate set, with its enrollment
// embeddings averaged into a single vector.
type Candidate struct {
	IdentityID string
	Name       string
	Embedding  []float32
}

// CandidateSet is the cached, immutable candidate list for one scope.
// It is rebuilt wholesale on refresh and never mutated in place, so readers
// holding a reference are never exposed to a partially built set.
type CandidateSet struct {
	Scope      store.Scope
	Candidates []Candidate
	Refreshed  time.Time

	index *hnsw.Graph[int]
}

// Dim returns the embedding dimensionality of the set, or 0 when empty.
func (cs *CandidateSet) Dim() int {
	if len(cs.Candidates) == 0 {
		return 0
	}
	return len(cs.Candidates[0].Embedding)
}

// EmbeddingCache holds one candidate set per scope key with TTL-based
// refresh from the identity store.
type EmbeddingCache struct {
	identities store.IdentityReader
	ttl        time.Duration
	hnswCutoff int
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]*CandidateSet
}

// NewEmbeddingCache creates a cache over the given identity reader.
func NewEmbeddingCache(identities store.IdentityReader, ttl time.Duration, hnswCutoff int) *EmbeddingCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if hnswCutoff <= 0 {
		hnswCutoff = DefaultHNSWCutoff
	}
	return &EmbeddingCache{
		identities: identities,
		ttl:        ttl,
		hnswCutoff: hnswCutoff,
		now:        time.Now,
		entries:    make(map[string]*CandidateSet),
	}
}

// Get returns the candidate set for the scope, refreshing it from the store
// when absent or older than the TTL. When the store is unreachable and a
// previous set exists, the stale set is returned instead of an error.
// An empty roster is a valid cached value, not an error.
func (c *EmbeddingCache) Get(ctx context.Context, scope store.Scope) (*CandidateSet, error) {
	key := scope.Key()

	c.mu.RLock()
	entry := c.entries[key]
	c.mu.RUnlock()

	if entry != nil && c.now().Sub(entry.Refreshed) <= c.ttl {
		return entry, nil
	}

	fresh, err := c.refresh(ctx, scope)
	if err != nil {
		if entry != nil {
			metrics.CacheStaleServed.Inc()
			return entry, nil
		}
		return nil, storageError("refreshing candidate set", err)
	}

	c.mu.Lock()
	c.entries[key] = fresh
	c.mu.Unlock()

	return fresh, nil
}

// refresh builds a replacement candidate set off to the side. The cache map
// is untouched until the completed set is swapped in by Get.
func (c *EmbeddingCache) refresh(ctx context.Context, scope store.Scope) (*CandidateSet, error) {
	identities, err := c.identities.QueryIdentities(ctx, scope)
	if err != nil {
		return nil, err
	}

	set := &CandidateSet{
		Scope:     scope,
		Refreshed: c.now(),
	}

	for _, identity := range identities {
		mean := store.MeanVector(identity.Embeddings)
		if mean == nil {
			continue
		}
		set.Candidates = append(set.Candidates, Candidate{
			IdentityID: identity.ID,
			Name:       identity.Name,
			Embedding:  mean,
		})
	}

	if len(set.Candidates) >= c.hnswCutoff {
		set.index = buildIndex(set.Candidates)
	}

	metrics.CacheRefreshes.Inc()
	return set, nil
}

// Invalidate drops the cached set for a scope, forcing the next Get to
// refresh. Used after roster changes.
func (c *EmbeddingCache) Invalidate(scope store.Scope) {
	c.mu.Lock()
	delete(c.entries, scope.Key())
	c.mu.Unlock()
}

// buildIndex constructs an HNSW graph over the candidates. Node keys are
// candidate slice indices.
func buildIndex(candidates []Candidate) *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance

	for i := range candidates {
		if len(candidates[i].Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(i, candidates[i].Embedding))
	}
	return g
}
