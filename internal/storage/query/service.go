// Package query answers range queries over the time-series store.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/xtxerr/gridpower/internal/logging"
	"github.com/xtxerr/gridpower/internal/storage/aggregate"
	"github.com/xtxerr/gridpower/internal/storage/parquet"
	"github.com/xtxerr/gridpower/internal/storage/types"
)

var log = logging.Component("query")

// Reader is the read side of the time-series store.
type Reader interface {
	ReadRange(ch types.Channel, start, end int64) []types.StoredReading
}

// Options configures the query service.
type Options struct {
	// Timeout bounds a single query. 0 disables it.
	Timeout time.Duration

	// Percentiles enables P50/P95/P99 in daily summaries.
	Percentiles        bool
	PercentileAccuracy float64

	// ExportCompression is the Parquet codec of Export.
	ExportCompression parquet.CompressionType
}

// Service provides query capabilities over stored readings.
type Service struct {
	store Reader
	opts  Options

	// Statistics
	stats Stats
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted atomic.Int64
	PointsReturned  atomic.Int64
	Exports         atomic.Int64
	Errors          atomic.Int64

	// Daily aggregation totals
	BucketsAggregated  atomic.Int64
	ReadingsAggregated atomic.Int64
}

// QueryStats is a snapshot of Stats.
type QueryStats struct {
	QueriesExecuted int64 `json:"queries_executed"`
	PointsReturned  int64 `json:"points_returned"`
	Exports         int64 `json:"exports"`
	Errors          int64 `json:"errors"`

	BucketsAggregated  int64 `json:"buckets_aggregated"`
	ReadingsAggregated int64 `json:"readings_aggregated"`
}

// New creates a new query service.
func New(st Reader, opts Options) *Service {
	if opts.PercentileAccuracy <= 0 {
		opts.PercentileAccuracy = aggregate.DefaultAccuracy
	}
	return &Service{store: st, opts: opts}
}

// RawPoint is a stored reading as reported by Query.
type RawPoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// Result is the answer to a range query. It marshals to one flat JSON
// array: current points, then voltage points, then power points.
type Result struct {
	Current []RawPoint
	Voltage []RawPoint
	Power   []types.PowerPoint
}

// Len returns the number of points in the result.
func (r Result) Len() int {
	return len(r.Current) + len(r.Voltage) + len(r.Power)
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	flat := make([]any, 0, r.Len())
	for _, p := range r.Current {
		flat = append(flat, p)
	}
	for _, p := range r.Voltage {
		flat = append(flat, p)
	}
	for _, p := range r.Power {
		flat = append(flat, p)
	}
	return json.Marshal(flat)
}

// Query returns the raw readings of both channels strictly inside w and
// the daily power derived from them.
func (s *Service) Query(ctx context.Context, w Window) (Result, error) {
	current, voltage, err := s.read(ctx, w)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Current: toRawPoints(current),
		Voltage: toRawPoints(voltage),
		Power:   aggregate.ComputePower(current, voltage),
	}

	s.stats.QueriesExecuted.Add(1)
	s.stats.PointsReturned.Add(int64(result.Len()))

	logging.FromContext(ctx, log).Debug("query executed",
		"window", w.String(),
		"current", len(result.Current),
		"voltage", len(result.Voltage),
		"power", len(result.Power))

	return result, nil
}

// Daily returns per-day, per-channel statistics of the readings inside w.
func (s *Service) Daily(ctx context.Context, w Window) ([]types.DaySummary, error) {
	current, voltage, err := s.read(ctx, w)
	if err != nil {
		return nil, err
	}

	var m *aggregate.Manager
	if s.opts.Percentiles {
		m = aggregate.NewManagerWithAccuracy(s.opts.PercentileAccuracy)
	} else {
		m = aggregate.NewManager(false)
	}
	m.ProcessBatch(types.ChannelCurrent, current)
	m.ProcessBatch(types.ChannelVoltage, voltage)

	summaries := m.Summaries()

	ms := m.Stats()
	s.stats.BucketsAggregated.Add(ms.Buckets)
	s.stats.ReadingsAggregated.Add(ms.ReadingsProcessed)
	s.stats.QueriesExecuted.Add(1)
	s.stats.PointsReturned.Add(int64(len(summaries)))

	return summaries, nil
}

// Export writes the readings inside w to out as Parquet and returns the
// number of rows written.
func (s *Service) Export(ctx context.Context, w Window, out io.Writer) (int64, error) {
	current, voltage, err := s.read(ctx, w)
	if err != nil {
		return 0, err
	}

	pw := parquet.NewReadingWriter(out, parquet.Options{Compression: s.opts.ExportCompression})

	if err := pw.Write(types.ChannelCurrent, current); err != nil {
		s.stats.Errors.Add(1)
		return 0, fmt.Errorf("export current: %w", err)
	}
	if err := pw.Write(types.ChannelVoltage, voltage); err != nil {
		s.stats.Errors.Add(1)
		return 0, fmt.Errorf("export voltage: %w", err)
	}
	if err := pw.Close(); err != nil {
		s.stats.Errors.Add(1)
		return 0, fmt.Errorf("export: %w", err)
	}

	s.stats.Exports.Add(1)
	return pw.RowCount(), nil
}

// Stats returns current statistics.
func (s *Service) Stats() QueryStats {
	return QueryStats{
		QueriesExecuted: s.stats.QueriesExecuted.Load(),
		PointsReturned:  s.stats.PointsReturned.Load(),
		Exports:         s.stats.Exports.Load(),
		Errors:          s.stats.Errors.Load(),

		BucketsAggregated:  s.stats.BucketsAggregated.Load(),
		ReadingsAggregated: s.stats.ReadingsAggregated.Load(),
	}
}

// read validates w and reads both channels. Nothing touches the store
// before validation succeeds.
func (s *Service) read(ctx context.Context, w Window) (current, voltage []types.StoredReading, err error) {
	if err := w.Validate(); err != nil {
		s.stats.Errors.Add(1)
		return nil, nil, err
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	start, end := w.Bounds()

	if err := ctx.Err(); err != nil {
		s.stats.Errors.Add(1)
		return nil, nil, fmt.Errorf("query %s: %w", w, err)
	}
	current = s.store.ReadRange(types.ChannelCurrent, start, end)

	if err := ctx.Err(); err != nil {
		s.stats.Errors.Add(1)
		return nil, nil, fmt.Errorf("query %s: %w", w, err)
	}
	voltage = s.store.ReadRange(types.ChannelVoltage, start, end)

	return current, voltage, nil
}

func toRawPoints(readings []types.StoredReading) []RawPoint {
	points := make([]RawPoint, len(readings))
	for i, r := range readings {
		points[i] = RawPoint{Time: types.FormatISO(r.Time), Value: r.Value}
	}
	return points
}
