package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	gperrors "github.com/xtxerr/gridpower/internal/errors"
	"github.com/xtxerr/gridpower/internal/logging"
	"github.com/xtxerr/gridpower/internal/storage/types"
	"github.com/xtxerr/gridpower/internal/validation"
)

// Session is one ingest stream. Chunks are processed in the order Chunk is
// called; a session is closed by exactly one Complete or Fail.
type Session struct {
	mu sync.Mutex

	p       *Pipeline
	id      string
	source  string
	started time.Time

	// Trailing partial row, only used with CarryPartialLines
	pending []byte

	closed bool
	stats  SessionStats
}

// NewSession opens a session. source names the transport for logging.
func (p *Pipeline) NewSession(source string) *Session {
	s := &Session{
		p:       p,
		id:      uuid.NewString(),
		source:  source,
		started: time.Now(),
	}
	s.stats.ID = s.id
	s.stats.Source = source
	s.stats.Started = s.started

	p.stats.SessionsStarted.Add(1)
	p.stats.SessionsActive.Add(1)

	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Chunk processes one chunk of the stream. A non-nil error wrapping
// errors.ErrChunkProcessing reports a failed chunk; the session stays open.
// Chunk on a closed session returns errors.ErrSessionClosed.
func (s *Session) Chunk(ctx context.Context, data []byte) (ChunkStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ChunkStats{}, gperrors.ErrSessionClosed
	}

	ctx = s.context(ctx)
	s.stats.Chunks++
	cs := ChunkStats{Index: s.stats.Chunks, Bytes: len(data)}

	text := s.cut(data)
	err := s.process(ctx, &cs, strings.Split(text, "\n"))
	s.record(ctx, cs, err)

	return cs, err
}

// Complete closes the session successfully. With CarryPartialLines, a
// pending partial row is processed first. Completing a closed session
// returns its stats unchanged.
func (s *Session) Complete(ctx context.Context) SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.stats
	}

	ctx = s.context(ctx)

	if len(s.pending) > 0 {
		s.stats.Chunks++
		cs := ChunkStats{Index: s.stats.Chunks}
		rows := []string{string(s.pending)}
		s.pending = nil

		err := s.process(ctx, &cs, rows)
		s.record(ctx, cs, err)
	}

	s.close()
	s.p.observer.SessionDone(ctx, s.stats, nil)

	logging.FromContext(ctx, log).Info("session completed",
		"bytes", humanize.Bytes(uint64(s.stats.Bytes)),
		"chunks", s.stats.Chunks,
		"accepted", s.stats.Accepted,
		"rejected", s.stats.Rejected,
		"failed_chunks", s.stats.FailedChunks,
		"duration", s.stats.Duration)

	return s.stats
}

// Fail closes the session after a transport failure and returns an error
// wrapping errors.ErrStreamTransport. Pending partial rows are discarded.
// Writes from earlier chunks are kept.
func (s *Session) Fail(ctx context.Context, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return gperrors.Wrapf(gperrors.ErrSessionClosed, "fail session %s", s.id)
	}

	ctx = s.context(ctx)
	err := gperrors.NewStreamTransport(cause)

	s.pending = nil
	s.close()
	s.p.stats.SessionsFailed.Add(1)
	s.p.observer.SessionDone(ctx, s.stats, err)

	logging.FromContext(ctx, log).Error("session failed",
		"error", err,
		"bytes", humanize.Bytes(uint64(s.stats.Bytes)),
		"chunks", s.stats.Chunks,
		"accepted", s.stats.Accepted)

	return err
}

// Stats returns the session statistics so far.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	if !s.closed {
		stats.Duration = time.Since(s.started)
	}
	return stats
}

func (s *Session) context(ctx context.Context) context.Context {
	ctx = logging.ContextWithSessionID(ctx, s.id)
	if s.source != "" {
		ctx = logging.ContextWithSource(ctx, s.source)
	}
	return ctx
}

func (s *Session) close() {
	s.closed = true
	s.stats.Duration = time.Since(s.started)
	s.p.stats.SessionsActive.Add(-1)
}

// cut returns the chunk text to process. With CarryPartialLines, text after
// the last newline is held back and prefixed to the next chunk.
func (s *Session) cut(data []byte) string {
	if !s.p.carry {
		return string(data)
	}

	buf := append(s.pending, data...)
	idx := bytes.LastIndexByte(buf, '\n')
	if idx < 0 {
		s.pending = buf
		return ""
	}

	text := string(buf[:idx])
	s.pending = append([]byte(nil), buf[idx+1:]...)
	return text
}

// process validates rows and writes the accepted readings. A panic or store
// error is converted into a chunk processing error.
func (s *Session) process(ctx context.Context, cs *ChunkStats, rows []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = gperrors.NewChunkProcessing(cs.Index, fmt.Errorf("panic: %v", r))
		}
	}()

	batch := types.NewReadingBatch()

	for _, row := range rows {
		res := validation.ParseRow(row)

		switch {
		case res.Blank:
			cs.Skipped++
			continue
		case !res.OK:
			cs.Rows++
			cs.Rejected++
			rej := types.Rejection{
				Row:     strings.TrimSpace(row),
				Reasons: res.Reasons,
				At:      time.Now().UTC(),
				Session: s.id,
			}
			s.p.observer.RowRejected(ctx, rej)
			continue
		}

		cs.Rows++
		cs.Accepted++
		batch.Add(res.Reading)
	}

	if batch.Len() == 0 {
		return nil
	}

	for _, ch := range batch.Channels() {
		if _, err := s.p.store.UpsertBulk(ch, batch.For(ch)); err != nil {
			return gperrors.NewChunkProcessing(cs.Index, err)
		}
	}

	return nil
}

// record folds chunk stats into the session and pipeline counters.
func (s *Session) record(ctx context.Context, cs ChunkStats, err error) {
	s.stats.add(cs)

	s.p.stats.ChunksProcessed.Add(1)
	s.p.stats.BytesReceived.Add(int64(cs.Bytes))
	s.p.stats.RowsAccepted.Add(int64(cs.Accepted))
	s.p.stats.RowsRejected.Add(int64(cs.Rejected))
	s.p.stats.RowsSkipped.Add(int64(cs.Skipped))

	if err != nil {
		s.stats.FailedChunks++
		s.p.stats.ChunksFailed.Add(1)
		logging.FromContext(ctx, log).Error("chunk failed", "chunk", cs.Index, "error", err)
	} else {
		logging.FromContext(ctx, log).Debug("chunk processed",
			"chunk", cs.Index,
			"bytes", cs.Bytes,
			"accepted", cs.Accepted,
			"rejected", cs.Rejected)
	}

	s.p.observer.ChunkDone(ctx, cs, err)
}
