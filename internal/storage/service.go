package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	defaults "github.com/xtxerr/gridpower/config"
	"github.com/xtxerr/gridpower/internal/errors"
	"github.com/xtxerr/gridpower/internal/logging"
	"github.com/xtxerr/gridpower/internal/metrics"
	"github.com/xtxerr/gridpower/internal/storage/buffer"
	"github.com/xtxerr/gridpower/internal/storage/config"
	"github.com/xtxerr/gridpower/internal/storage/ingestion"
	"github.com/xtxerr/gridpower/internal/storage/parquet"
	"github.com/xtxerr/gridpower/internal/storage/query"
	"github.com/xtxerr/gridpower/internal/storage/types"
	"github.com/xtxerr/gridpower/internal/store"
)

var log = logging.Component("storage")

// Service is the main storage service that orchestrates all components.
type Service struct {
	mu sync.RWMutex

	config *config.Config

	// Components
	store      *store.Store
	pipeline   *ingestion.Pipeline
	query      *query.Service
	quarantine *buffer.RingBuffer
	metrics    *metrics.Metrics

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Statistics
	startTime time.Time
}

// New creates a new storage service. Metrics are registered on reg; a nil
// reg gets a private registry.
func New(cfg *config.Config, reg *prometheus.Registry) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Service{
		config:     cfg,
		store:      store.New(),
		quarantine: buffer.New(cfg.Quarantine.Capacity),
		metrics:    metrics.New(reg),
	}

	s.pipeline = ingestion.New(s.store, ingestion.Options{
		ChunkSize:         cfg.Ingestion.ChunkSize,
		CarryPartialLines: cfg.Ingestion.CarryPartialLines,
		Observer:          s,
	})

	s.query = query.New(s.store, query.Options{
		Timeout:            cfg.Query.Timeout,
		Percentiles:        cfg.Aggregation.Percentile.Enabled,
		PercentileAccuracy: cfg.Aggregation.Percentile.Accuracy,
		ExportCompression:  parquet.ParseCompressionType(cfg.Query.ExportCompression),
	})

	return s, nil
}

// Start starts background workers.
func (s *Service) Start() error {
	if s.running.Load() {
		return fmt.Errorf("service already running")
	}

	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.startTime = time.Now()
	s.mu.Unlock()

	s.running.Store(true)

	if s.config.Quarantine.MaxAge > 0 {
		s.wg.Add(1)
		go s.quarantineWorker(s.ctx)
	}

	log.Info("storage started",
		"chunk_size", s.pipeline.ChunkSize(),
		"carry_partial_lines", s.config.Ingestion.CarryPartialLines,
		"quarantine_capacity", s.quarantine.Cap())

	return nil
}

// Stop stops background workers. Sessions in flight are not interrupted;
// new ones are refused.
func (s *Service) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}

	s.cancel()
	s.wg.Wait()

	log.Info("storage stopped", "readings", s.store.Counts())
	return nil
}

// IsRunning returns whether the service is running.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// Ingest runs one ingest session reading from r.
func (s *Service) Ingest(ctx context.Context, r io.Reader, source string) (ingestion.SessionStats, error) {
	if !s.running.Load() {
		return ingestion.SessionStats{}, errors.ErrNotRunning
	}
	return s.pipeline.Ingest(ctx, r, source)
}

// NewSession opens a session for transports that deliver chunks themselves.
func (s *Service) NewSession(source string) (*ingestion.Session, error) {
	if !s.running.Load() {
		return nil, errors.ErrNotRunning
	}
	return s.pipeline.NewSession(source), nil
}

// Query returns raw readings and daily power inside w.
func (s *Service) Query(ctx context.Context, w query.Window) (query.Result, error) {
	if !s.running.Load() {
		return query.Result{}, errors.ErrNotRunning
	}
	defer s.metrics.ObserveQuery("query", time.Now())

	return s.query.Query(ctx, w)
}

// Daily returns per-day statistics inside w.
func (s *Service) Daily(ctx context.Context, w query.Window) ([]types.DaySummary, error) {
	if !s.running.Load() {
		return nil, errors.ErrNotRunning
	}
	defer s.metrics.ObserveQuery("daily", time.Now())

	return s.query.Daily(ctx, w)
}

// Export writes the readings inside w to out as Parquet.
func (s *Service) Export(ctx context.Context, w query.Window, out io.Writer) (int64, error) {
	if !s.running.Load() {
		return 0, errors.ErrNotRunning
	}
	defer s.metrics.ObserveQuery("export", time.Now())

	return s.query.Export(ctx, w, out)
}

// Rejections returns the n most recent rejected rows, newest first.
// n <= 0 returns all of them.
func (s *Service) Rejections(n int) []types.Rejection {
	return s.quarantine.Recent(n)
}

// SessionRejections returns the rejected rows of one session, oldest first.
func (s *Service) SessionRejections(session string, limit int) []types.Rejection {
	return s.quarantine.Query(buffer.Filter{Session: session}, limit)
}

// Metrics returns the service metrics.
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// Config returns the current configuration.
func (s *Service) Config() *config.Config {
	return s.config
}

// RowRejected implements ingestion.Observer.
func (s *Service) RowRejected(ctx context.Context, r types.Rejection) {
	s.metrics.RowRejected()

	if !s.quarantine.Push(r) {
		logging.FromContext(ctx, log).Debug("quarantine full, oldest rejection dropped")
	}

	logging.FromContext(ctx, log).Warn("row rejected", "row", r.Row, "reasons", r.Reasons)
}

// ChunkDone implements ingestion.Observer.
func (s *Service) ChunkDone(ctx context.Context, c ingestion.ChunkStats, err error) {
	s.metrics.Chunk(err != nil)
	s.metrics.RowsAccepted(c.Accepted)

	if c.Accepted > 0 {
		for ch, n := range s.store.Counts() {
			s.metrics.SetStored(ch.String(), n)
		}
	}
}

// SessionDone implements ingestion.Observer.
func (s *Service) SessionDone(ctx context.Context, st ingestion.SessionStats, err error) {
	s.metrics.Session(st.Source, err != nil)
}

// quarantineWorker periodically evicts expired rejections.
func (s *Service) quarantineWorker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(defaults.DefaultQuarantineSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweepQuarantine(now)
		}
	}
}

func (s *Service) sweepQuarantine(now time.Time) int {
	n := s.quarantine.EvictOlderThan(now.Add(-s.config.Quarantine.MaxAge))
	if n > 0 {
		log.Debug("expired rejections evicted", "count", n)
	}
	return n
}

// Stats returns combined statistics.
func (s *Service) Stats() ServiceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var uptime time.Duration
	if !s.startTime.IsZero() && s.running.Load() {
		uptime = time.Since(s.startTime)
	}

	return ServiceStats{
		Running:    s.running.Load(),
		Uptime:     uptime,
		Ingestion:  s.pipeline.Stats(),
		Store:      s.store.Stats(),
		Query:      s.query.Stats(),
		Quarantine: s.quarantine.Stats(),
	}
}

// ServiceStats holds combined statistics.
type ServiceStats struct {
	Running    bool                    `json:"running"`
	Uptime     time.Duration           `json:"uptime"`
	Ingestion  ingestion.PipelineStats `json:"ingestion"`
	Store      store.Stats             `json:"store"`
	Query      query.QueryStats        `json:"query"`
	Quarantine buffer.BufferStats      `json:"quarantine"`
}
