// Package store provides the in-memory time-series store.
//
// Readings are partitioned by channel and keyed by their unix-second
// timestamp. A write for an existing (channel, key) replaces the previous
// reading; there is no versioning, eviction or persistence. The store lives
// for the lifetime of the process.
package store

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/xtxerr/gridpower/internal/logging"
	"github.com/xtxerr/gridpower/internal/storage/types"
)

var log = logging.Component("store")

// Predicate selects readings during Read. A nil predicate selects everything.
type Predicate func(types.StoredReading) bool

// Store maps channel → time-key → reading.
//
// Store is safe for concurrent use. Each Upsert and each UpsertBulk call is
// applied under the write lock, so a reader observes a bulk batch either
// entirely or not at all. Nothing orders batches from different callers
// beyond lock acquisition: concurrent writers to the same key are
// last-write-wins.
type Store struct {
	mu         sync.RWMutex
	partitions map[types.Channel]map[int64]types.StoredReading

	// Statistics
	upserts    atomic.Int64
	overwrites atomic.Int64
	reads      atomic.Int64
}

// Stats holds store statistics.
type Stats struct {
	Upserts    int64                 `json:"upserts"`
	Overwrites int64                 `json:"overwrites"`
	Reads      int64                 `json:"reads"`
	Readings   map[types.Channel]int `json:"readings"`
}

// New creates an empty store.
func New() *Store {
	return &Store{
		partitions: make(map[types.Channel]map[int64]types.StoredReading),
	}
}

// Upsert stores r under (ch, key), replacing any previous reading, and
// returns the stored value.
func (s *Store) Upsert(ch types.Channel, key int64, r types.StoredReading) (types.StoredReading, error) {
	if !ch.Valid() {
		return types.StoredReading{}, fmt.Errorf("upsert %q: %w", ch, ErrUnknownChannel)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(s.partition(ch), key, r)
	return r, nil
}

// UpsertBulk applies each pair in batch order; later pairs with an equal key
// win. The input batch is returned unchanged.
func (s *Store) UpsertBulk(ch types.Channel, batch []types.KeyedReading) ([]types.KeyedReading, error) {
	if !ch.Valid() {
		return nil, fmt.Errorf("upsert bulk %q: %w", ch, ErrUnknownChannel)
	}
	if len(batch) == 0 {
		return batch, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	part := s.partition(ch)
	for _, kr := range batch {
		s.put(part, kr.Key, kr.Reading)
	}

	log.Debug("bulk upsert", "channel", ch, "count", len(batch), "size", len(part))
	return batch, nil
}

// Read returns every reading of ch that satisfies pred, ordered by time.
// An unknown or empty channel yields an empty result.
func (s *Store) Read(ch types.Channel, pred Predicate) []types.StoredReading {
	s.mu.RLock()
	part := s.partitions[ch]
	out := make([]types.StoredReading, 0, len(part))
	for _, r := range part {
		if pred == nil || pred(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	s.reads.Add(1)

	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// ReadRange returns the readings of ch with start < time < end. Both bounds
// are exclusive.
func (s *Store) ReadRange(ch types.Channel, start, end int64) []types.StoredReading {
	return s.Read(ch, Between(start, end))
}

// Between selects readings strictly inside (start, end).
func Between(start, end int64) Predicate {
	return func(r types.StoredReading) bool {
		return r.Time > start && r.Time < end
	}
}

// Len returns the number of distinct keys stored for ch.
func (s *Store) Len(ch types.Channel) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.partitions[ch])
}

// Stats returns current statistics.
func (s *Store) Stats() Stats {
	return Stats{
		Upserts:    s.upserts.Load(),
		Overwrites: s.overwrites.Load(),
		Reads:      s.reads.Load(),
		Readings:   s.Counts(),
	}
}

// Counts returns the number of stored readings per channel.
func (s *Store) Counts() map[types.Channel]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[types.Channel]int, len(s.partitions))
	for ch, part := range s.partitions {
		out[ch] = len(part)
	}
	return out
}

// partition returns the map for ch, creating it. Callers hold the write lock.
func (s *Store) partition(ch types.Channel) map[int64]types.StoredReading {
	part, ok := s.partitions[ch]
	if !ok {
		part = make(map[int64]types.StoredReading)
		s.partitions[ch] = part
	}
	return part
}

func (s *Store) put(part map[int64]types.StoredReading, key int64, r types.StoredReading) {
	if _, exists := part[key]; exists {
		s.overwrites.Add(1)
	}
	part[key] = r
	s.upserts.Add(1)
}
