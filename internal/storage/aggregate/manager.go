package aggregate

import (
	"sort"
	"sync"

	"github.com/xtxerr/gridpower/internal/logging"
	"github.com/xtxerr/gridpower/internal/storage/types"
)

var log = logging.Component("aggregate")

type bucketKey struct {
	day     int64
	channel types.Channel
}

// Manager groups readings into one StreamingAggregate per (UTC day, channel).
type Manager struct {
	mu sync.RWMutex

	// Configuration
	percentileEnabled  bool
	percentileAccuracy float64

	aggregates map[bucketKey]*StreamingAggregate

	// Statistics
	stats ManagerStats
}

// ManagerStats holds statistics for the manager.
type ManagerStats struct {
	Buckets           int64
	ReadingsProcessed int64
}

// NewManager creates a new aggregate manager.
func NewManager(percentileEnabled bool) *Manager {
	return &Manager{
		percentileEnabled:  percentileEnabled,
		percentileAccuracy: DefaultAccuracy,
		aggregates:         make(map[bucketKey]*StreamingAggregate),
	}
}

// NewManagerWithAccuracy creates a manager with percentiles at a custom
// relative accuracy.
func NewManagerWithAccuracy(accuracy float64) *Manager {
	m := NewManager(true)
	m.percentileAccuracy = accuracy
	return m
}

// ProcessBatch adds all readings of one channel.
func (m *Manager) ProcessBatch(ch types.Channel, readings []types.StoredReading) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range readings {
		m.process(ch, r)
	}
}

func (m *Manager) process(ch types.Channel, r types.StoredReading) {
	key := bucketKey{day: types.DayStart(r.Time).Unix(), channel: ch}

	agg, exists := m.aggregates[key]
	if !exists {
		agg = m.createAggregate(ch, key.day)
		m.aggregates[key] = agg
	}

	agg.AddReading(r)
	m.stats.ReadingsProcessed++
}

// Get returns the aggregate for (dayStart, ch), or nil.
func (m *Manager) Get(dayStart int64, ch types.Channel) *StreamingAggregate {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.aggregates[bucketKey{day: dayStart, channel: ch}]
}

// Days returns every day start with at least one reading, ascending.
func (m *Manager) Days() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[int64]struct{})
	days := make([]int64, 0, len(m.aggregates))
	for key := range m.aggregates {
		if _, ok := seen[key.day]; ok {
			continue
		}
		seen[key.day] = struct{}{}
		days = append(days, key.day)
	}

	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// Summaries returns one summary per non-empty bucket, ordered by day and
// then channel.
func (m *Manager) Summaries() []types.DaySummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.DaySummary, 0, len(m.aggregates))
	for _, agg := range m.aggregates {
		if !agg.IsEmpty() {
			out = append(out, agg.Summary())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := m.stats
	stats.Buckets = int64(len(m.aggregates))
	return stats
}

// createAggregate creates a new aggregate with the manager's settings.
func (m *Manager) createAggregate(ch types.Channel, dayStart int64) *StreamingAggregate {
	if m.percentileEnabled {
		return NewWithAccuracy(ch, dayStart, m.percentileAccuracy)
	}
	return New(ch, dayStart, false)
}
