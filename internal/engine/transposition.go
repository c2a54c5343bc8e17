package engine

// TTFlag indicates the type of bound stored in the transposition table.
type TTFlag uint8

const (
	TTExact      TTFlag = iota // Exact score
	TTLowerBound               // Failed high (beta cutoff)
	TTUpperBound               // Failed low
)

func (f TTFlag) String() string {
	switch f {
	case TTExact:
		return "exact"
	case TTLowerBound:
		return "lower"
	case TTUpperBound:
		return "upper"
	default:
		return "unknown"
	}
}

// DefaultTTEntries is the default capacity ceiling.
const DefaultTTEntries = 100_000

// TTEntry represents an entry in the transposition table.
type TTEntry struct {
	Key      uint64 // Position fingerprint
	BestMove int    // Best column found, NoMove if none
	Score    int    // Score (bounded by flag)
	Depth    int    // Remaining depth the score was searched to
	Flag     TTFlag // Type of bound
}

// TranspositionTable caches search results by position fingerprint.
// Stores always replace the previous entry for a key. When a new key would
// push the table past its ceiling, the oldest quarter of the keys (by first
// insertion) is evicted in one batch.
//
// Fingerprints are lossy: two positions may share a key and the table does
// not try to tell them apart. Entries are filed under the masked key and
// carry the full one, so two keys sharing a slot never read each other.
type TranspositionTable struct {
	entries    map[uint64]TTEntry // By masked key
	order      []uint64           // Masked keys in insertion order, oldest first
	maxEntries int

	// keyMask narrows keys to slots. All ones in production; tests shrink
	// it to force collisions.
	keyMask uint64

	hits   uint64
	probes uint64
}

// NewTranspositionTable creates a table holding at most maxEntries entries.
func NewTranspositionTable(maxEntries int) *TranspositionTable {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &TranspositionTable{
		entries:    make(map[uint64]TTEntry, min(maxEntries, 1<<16)),
		order:      make([]uint64, 0, min(maxEntries, 1<<16)),
		maxEntries: maxEntries,
		keyMask:    ^uint64(0),
	}
}

// Probe returns the entry for key if it is usable at depth inside the
// (alpha, beta) window: exact entries always, lower bounds at or above beta,
// upper bounds at or below alpha. Anything else is a miss.
func (tt *TranspositionTable) Probe(key uint64, depth, alpha, beta int) (TTEntry, bool) {
	tt.probes++

	entry, ok := tt.entries[key&tt.keyMask]
	if !ok || entry.Key != key || entry.Depth < depth {
		return TTEntry{}, false
	}

	switch entry.Flag {
	case TTExact:
	case TTLowerBound:
		if entry.Score < beta {
			return TTEntry{}, false
		}
	case TTUpperBound:
		if entry.Score > alpha {
			return TTEntry{}, false
		}
	default:
		return TTEntry{}, false
	}

	tt.hits++
	return entry, true
}

// Entry returns the raw entry for key regardless of depth or bound. It does
// not count as a probe.
func (tt *TranspositionTable) Entry(key uint64) (TTEntry, bool) {
	entry, ok := tt.entries[key&tt.keyMask]
	if !ok || entry.Key != key {
		return TTEntry{}, false
	}
	return entry, true
}

// Store records a search result. The bound type is derived from the window
// the node was searched with: score <= alpha is an upper bound, score >= beta
// a lower bound, anything between exact. A key sharing a slot with another
// replaces it.
func (tt *TranspositionTable) Store(key uint64, depth, score, bestMove, alpha, beta int) {
	slot := key & tt.keyMask

	flag := TTExact
	if score <= alpha {
		flag = TTUpperBound
	} else if score >= beta {
		flag = TTLowerBound
	}

	if _, exists := tt.entries[slot]; !exists {
		if len(tt.entries) >= tt.maxEntries {
			tt.evict()
		}
		tt.order = append(tt.order, slot)
	}

	tt.entries[slot] = TTEntry{
		Key:      key,
		BestMove: bestMove,
		Score:    score,
		Depth:    depth,
		Flag:     flag,
	}
}

// evict drops the oldest quarter of the table, at least one entry.
func (tt *TranspositionTable) evict() {
	n := tt.maxEntries / 4
	if n < 1 {
		n = 1
	}
	if n > len(tt.order) {
		n = len(tt.order)
	}
	for _, key := range tt.order[:n] {
		delete(tt.entries, key)
	}

	// Copy so the backing array does not grow without bound.
	rest := make([]uint64, len(tt.order)-n, cap(tt.order))
	copy(rest, tt.order[n:])
	tt.order = rest
}

// Len returns the number of stored entries.
func (tt *TranspositionTable) Len() int {
	return len(tt.entries)
}

// Capacity returns the entry ceiling.
func (tt *TranspositionTable) Capacity() int {
	return tt.maxEntries
}

// Clear empties the table and resets its counters.
func (tt *TranspositionTable) Clear() {
	clear(tt.entries)
	tt.order = tt.order[:0]
	tt.hits = 0
	tt.probes = 0
}

// HashFull returns the permill of the table in use.
func (tt *TranspositionTable) HashFull() int {
	return len(tt.entries) * 1000 / tt.maxEntries
}

// HitRate returns the percentage of probes that were usable.
func (tt *TranspositionTable) HitRate() float64 {
	if tt.probes == 0 {
		return 0
	}
	return float64(tt.hits) / float64(tt.probes) * 100
}

// Probes returns the number of probes since the last Clear.
func (tt *TranspositionTable) Probes() uint64 {
	return tt.probes
}

// Hits returns the number of usable probes since the last Clear.
func (tt *TranspositionTable) Hits() uint64 {
	return tt.hits
}
