// Package ingestion turns byte streams of newline-separated rows into store
// writes.
//
// A stream is processed as a Session of chunks. Each chunk is split into
// rows, every row is validated independently, and the accepted readings are
// written to the store with one bulk upsert per channel. Malformed rows are
// reported and skipped; a failing chunk is reported and the session
// continues with the next one.
package ingestion

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	defaults "github.com/xtxerr/gridpower/config"
	gperrors "github.com/xtxerr/gridpower/internal/errors"
	"github.com/xtxerr/gridpower/internal/logging"
	"github.com/xtxerr/gridpower/internal/storage/types"
)

var log = logging.Component("ingestion")

// Store is the write side of the time-series store.
type Store interface {
	UpsertBulk(ch types.Channel, batch []types.KeyedReading) ([]types.KeyedReading, error)
}

// Options configures a Pipeline.
type Options struct {
	// ChunkSize is the number of bytes Ingest reads per chunk.
	ChunkSize int

	// CarryPartialLines holds back a trailing partial row until the next
	// chunk. When false, a row split across chunks is parsed as two rows.
	CarryPartialLines bool

	// Observer receives ingest events. Nil means NopObserver.
	Observer Observer
}

// Pipeline creates ingest sessions against a store.
type Pipeline struct {
	store    Store
	observer Observer

	chunkSize int
	carry     bool

	// Statistics
	stats Stats
}

// Stats holds pipeline statistics.
type Stats struct {
	SessionsStarted atomic.Int64
	SessionsFailed  atomic.Int64
	SessionsActive  atomic.Int64
	ChunksProcessed atomic.Int64
	ChunksFailed    atomic.Int64
	BytesReceived   atomic.Int64
	RowsAccepted    atomic.Int64
	RowsRejected    atomic.Int64
	RowsSkipped     atomic.Int64
}

// PipelineStats is a snapshot of Stats.
type PipelineStats struct {
	SessionsStarted int64 `json:"sessions_started"`
	SessionsFailed  int64 `json:"sessions_failed"`
	SessionsActive  int64 `json:"sessions_active"`
	ChunksProcessed int64 `json:"chunks_processed"`
	ChunksFailed    int64 `json:"chunks_failed"`
	BytesReceived   int64 `json:"bytes_received"`
	RowsAccepted    int64 `json:"rows_accepted"`
	RowsRejected    int64 `json:"rows_rejected"`
	RowsSkipped     int64 `json:"rows_skipped"`
}

// New creates a new pipeline writing to st.
func New(st Store, opts Options) *Pipeline {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaults.DefaultChunkSize
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}

	return &Pipeline{
		store:     st,
		observer:  opts.Observer,
		chunkSize: opts.ChunkSize,
		carry:     opts.CarryPartialLines,
	}
}

// Ingest drives one session from r, reading ChunkSize bytes at a time.
// EOF completes the session. A read error or context cancellation fails it
// with an error wrapping errors.ErrStreamTransport; a chunk that was already
// read is processed first.
func (p *Pipeline) Ingest(ctx context.Context, r io.Reader, source string) (SessionStats, error) {
	sess := p.NewSession(source)
	buf := make([]byte, p.chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return sess.Stats(), sess.Fail(ctx, err)
		}

		n, err := r.Read(buf)
		if n > 0 {
			// Chunk failures are reported to the observer and do not end the session
			if _, cerr := sess.Chunk(ctx, buf[:n]); cerr != nil && !gperrors.IsRecoverable(cerr) {
				return sess.Stats(), sess.Fail(ctx, cerr)
			}
		}

		if errors.Is(err, io.EOF) {
			return sess.Complete(ctx), nil
		}
		if err != nil {
			return sess.Stats(), sess.Fail(ctx, gperrors.Wrap(err, "read body"))
		}
	}
}

// Stats returns current statistics.
func (p *Pipeline) Stats() PipelineStats {
	return PipelineStats{
		SessionsStarted: p.stats.SessionsStarted.Load(),
		SessionsFailed:  p.stats.SessionsFailed.Load(),
		SessionsActive:  p.stats.SessionsActive.Load(),
		ChunksProcessed: p.stats.ChunksProcessed.Load(),
		ChunksFailed:    p.stats.ChunksFailed.Load(),
		BytesReceived:   p.stats.BytesReceived.Load(),
		RowsAccepted:    p.stats.RowsAccepted.Load(),
		RowsRejected:    p.stats.RowsRejected.Load(),
		RowsSkipped:     p.stats.RowsSkipped.Load(),
	}
}

// ChunkSize returns the configured chunk size.
func (p *Pipeline) ChunkSize() int {
	return p.chunkSize
}
