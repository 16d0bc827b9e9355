// Package source feeds readings from message brokers into the ingest
// pipeline.
//
// A source holds one long-lived ingest session for as long as it runs.
// Every message payload is one chunk of that session, processed in arrival
// order. Stopping the source completes the session; a broker failure fails
// it.
package source

import (
	"context"

	gperrors "github.com/xtxerr/gridpower/internal/errors"
	"github.com/xtxerr/gridpower/internal/logging"
	"github.com/xtxerr/gridpower/internal/storage/ingestion"
)

var log = logging.Component("source")

// Sessions opens ingest sessions. *storage.Service implements it.
type Sessions interface {
	NewSession(source string) (*ingestion.Session, error)
}

// Source is a transport that delivers chunks until its context is canceled.
type Source interface {
	Name() string
	Run(ctx context.Context) error
}

// deliver processes one message as one chunk. Chunk failures are recovered
// by the session and only logged here.
func deliver(ctx context.Context, sess *ingestion.Session, payload []byte) {
	cs, err := sess.Chunk(ctx, payload)
	switch {
	case err == nil:
	case gperrors.IsTransport(err):
		logging.FromContext(ctx, log).Error("message dropped, session closed",
			"session_id", sess.ID(),
			"bytes", len(payload),
			"error", err)
	default:
		logging.FromContext(ctx, log).Warn("chunk not processed",
			"session_id", sess.ID(),
			"chunk", cs.Index,
			"error", err)
	}
}

// complete closes sess after a clean stop. ctx may already be canceled.
func complete(ctx context.Context, sess *ingestion.Session) ingestion.SessionStats {
	return sess.Complete(context.WithoutCancel(ctx))
}
