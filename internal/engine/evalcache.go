package engine

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// DefaultEvalCacheEntries is the default number of cached evaluations.
const DefaultEvalCacheEntries = 1 << 18

// EvalCache caches heuristic scores by fingerprint. Keys must already carry
// the evaluation perspective. Sets are buffered and admission is
// probabilistic, so a miss right after a Set is normal; a miss only costs a
// recomputation. A nil *EvalCache is valid and never hits.
type EvalCache struct {
	cache *ristretto.Cache[uint64, int]

	hits   uint64
	misses uint64
}

// NewEvalCache creates a cache holding about entries scores. entries <= 0
// returns a nil cache.
func NewEvalCache(entries int64) (*EvalCache, error) {
	if entries <= 0 {
		return nil, nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, int]{
		NumCounters:        entries * 10,
		MaxCost:            entries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("eval cache: %w", err)
	}
	return &EvalCache{cache: cache}, nil
}

// Get returns the cached score for key.
func (ec *EvalCache) Get(key uint64) (int, bool) {
	if ec == nil {
		return 0, false
	}
	v, ok := ec.cache.Get(key)
	if !ok {
		ec.misses++
		return 0, false
	}
	ec.hits++
	return v, true
}

// Set stores a score. Each entry costs 1.
func (ec *EvalCache) Set(key uint64, score int) {
	if ec == nil {
		return
	}
	ec.cache.Set(key, score, 1)
}

// Wait blocks until buffered sets have been applied.
func (ec *EvalCache) Wait() {
	if ec == nil {
		return
	}
	ec.cache.Wait()
}

// Clear drops every entry.
func (ec *EvalCache) Clear() {
	if ec == nil {
		return
	}
	ec.cache.Clear()
	ec.hits = 0
	ec.misses = 0
}

// Close stops the cache's background goroutines.
func (ec *EvalCache) Close() {
	if ec == nil {
		return
	}
	ec.cache.Close()
}

// Hits returns the number of cache hits since the last Clear.
func (ec *EvalCache) Hits() uint64 {
	if ec == nil {
		return 0
	}
	return ec.hits
}

// Misses returns the number of cache misses since the last Clear.
func (ec *EvalCache) Misses() uint64 {
	if ec == nil {
		return 0
	}
	return ec.misses
}
