package aggregate

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/xtxerr/gridpower/internal/storage/types"
)

// DefaultAccuracy is the relative accuracy of percentile sketches.
const DefaultAccuracy = 0.01

// StreamingAggregate maintains running statistics for one channel over one
// UTC day. It supports optional percentile calculation using DDSketch.
type StreamingAggregate struct {
	mu sync.Mutex

	// Identity
	channel  types.Channel
	dayStart int64 // Unix seconds, 00:00:00 UTC

	// Running statistics
	count   int64
	sum     float64
	min     float64
	max     float64
	firstTs int64
	lastTs  int64

	// DDSketch for percentiles (nil if disabled)
	sketch   *ddsketch.DDSketch
	accuracy float64
}

// New creates a new StreamingAggregate for the day starting at dayStart.
func New(ch types.Channel, dayStart int64, enablePercentile bool) *StreamingAggregate {
	if enablePercentile {
		return NewWithAccuracy(ch, dayStart, DefaultAccuracy)
	}
	return newAggregate(ch, dayStart)
}

// NewWithAccuracy creates a new StreamingAggregate with percentiles at the
// given relative accuracy.
func NewWithAccuracy(ch types.Channel, dayStart int64, accuracy float64) *StreamingAggregate {
	agg := newAggregate(ch, dayStart)
	agg.accuracy = accuracy

	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err == nil {
		agg.sketch = sketch
	} else {
		log.Warn("percentiles disabled", "accuracy", accuracy, "error", err)
	}

	return agg
}

func newAggregate(ch types.Channel, dayStart int64) *StreamingAggregate {
	return &StreamingAggregate{
		channel:  ch,
		dayStart: dayStart,
		min:      math.MaxFloat64,
		max:      -math.MaxFloat64,
	}
}

// Add adds a value observed at unix second ts.
func (a *StreamingAggregate) Add(value float64, ts int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count == 0 || ts < a.firstTs {
		a.firstTs = ts
	}
	if a.count == 0 || ts > a.lastTs {
		a.lastTs = ts
	}

	a.count++
	a.sum += value

	if value < a.min {
		a.min = value
	}
	if value > a.max {
		a.max = value
	}

	if a.sketch != nil {
		a.sketch.Add(value)
	}
}

// AddReading adds a stored reading to the aggregate.
func (a *StreamingAggregate) AddReading(r types.StoredReading) {
	a.Add(r.Value, r.Time)
}

// Count returns the number of values added.
func (a *StreamingAggregate) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// IsEmpty returns true if no values have been added.
func (a *StreamingAggregate) IsEmpty() bool {
	return a.Count() == 0
}

// Mean returns the arithmetic mean, or 0 for an empty aggregate.
func (a *StreamingAggregate) Mean() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

// Summary returns the day summary.
func (a *StreamingAggregate) Summary() types.DaySummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	summary := types.DaySummary{
		Day:     types.DayKey(a.dayStart),
		Channel: a.channel,
		Count:   a.count,
	}

	if a.count > 0 {
		summary.Mean = a.sum / float64(a.count)
		summary.Min = a.min
		summary.Max = a.max
		summary.First = types.FormatISO(a.firstTs)
		summary.Last = types.FormatISO(a.lastTs)
	}

	// Calculate percentiles if enabled and we have data
	if a.sketch != nil && a.count > 0 {
		p50, _ := a.sketch.GetValueAtQuantile(0.50)
		p95, _ := a.sketch.GetValueAtQuantile(0.95)
		p99, _ := a.sketch.GetValueAtQuantile(0.99)
		summary.SetPercentiles(p50, p95, p99)
	}

	return summary
}

// DayStart returns the bucket start in unix seconds.
func (a *StreamingAggregate) DayStart() int64 {
	return a.dayStart
}

// Channel returns the aggregated channel.
func (a *StreamingAggregate) Channel() types.Channel {
	return a.channel
}
