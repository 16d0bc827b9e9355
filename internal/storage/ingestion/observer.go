package ingestion

import (
	"context"
	"time"

	"github.com/xtxerr/gridpower/internal/storage/types"
)

// ChunkStats describes one processed chunk.
type ChunkStats struct {
	Index    int `json:"index"`
	Bytes    int `json:"bytes"`
	Rows     int `json:"rows"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Skipped  int `json:"skipped"`
}

// SessionStats summarizes an ingest session.
type SessionStats struct {
	ID           string        `json:"id"`
	Source       string        `json:"source"`
	Chunks       int           `json:"chunks"`
	FailedChunks int           `json:"failed_chunks"`
	Bytes        int64         `json:"bytes"`
	Rows         int64         `json:"rows"`
	Accepted     int64         `json:"accepted"`
	Rejected     int64         `json:"rejected"`
	Skipped      int64         `json:"skipped"`
	Started      time.Time     `json:"started"`
	Duration     time.Duration `json:"duration"`
}

func (s *SessionStats) add(c ChunkStats) {
	s.Bytes += int64(c.Bytes)
	s.Rows += int64(c.Rows)
	s.Accepted += int64(c.Accepted)
	s.Rejected += int64(c.Rejected)
	s.Skipped += int64(c.Skipped)
}

// Observer receives ingest events. Implementations must be safe for
// concurrent use; sessions report from their callers' goroutines.
type Observer interface {
	// RowRejected is called once per rejected row.
	RowRejected(ctx context.Context, r types.Rejection)

	// ChunkDone is called after every chunk. err is non-nil if batching the
	// chunk failed; the session continues regardless.
	ChunkDone(ctx context.Context, c ChunkStats, err error)

	// SessionDone is called once when a session completes or fails.
	SessionDone(ctx context.Context, s SessionStats, err error)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) RowRejected(context.Context, types.Rejection) {}
func (NopObserver) ChunkDone(context.Context, ChunkStats, error) {}
func (NopObserver) SessionDone(context.Context, SessionStats, error) {}
