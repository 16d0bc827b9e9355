package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/segmentio/kafka-go"
	"github.com/xtxerr/gridpower/internal/storage/config"
)

// messageReader is the part of *kafka.Reader the source uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka consumes a topic as a consumer group member and ingests each
// message value. Offsets are committed after the chunk is processed.
type Kafka struct {
	cfg      config.KafkaConfig
	sessions Sessions
	reader   messageReader
}

// NewKafka creates a Kafka source. The reader connects lazily on Run.
func NewKafka(cfg config.KafkaConfig, sessions Sessions) *Kafka {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newKafka(cfg, sessions, reader)
}

func newKafka(cfg config.KafkaConfig, sessions Sessions, reader messageReader) *Kafka {
	return &Kafka{cfg: cfg, sessions: sessions, reader: reader}
}

// Name implements Source.
func (k *Kafka) Name() string {
	return "kafka"
}

// Run consumes until ctx is canceled or the reader is closed. Any other
// fetch error fails the session and is returned.
func (k *Kafka) Run(ctx context.Context) error {
	sess, err := k.sessions.NewSession(k.Name())
	if err != nil {
		return fmt.Errorf("kafka: open session: %w", err)
	}
	defer k.reader.Close()

	log.Info("kafka source started", "topic", k.cfg.Topic, "group", k.cfg.GroupID, "session_id", sess.ID())

	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, kafka.ErrGroupClosed) {
				st := complete(ctx, sess)
				log.Info("kafka source stopped", "chunks", st.Chunks, "accepted", st.Accepted)
				return nil
			}
			return sess.Fail(ctx, fmt.Errorf("kafka: fetch: %w", err))
		}

		deliver(ctx, sess, msg.Value)

		if err := k.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error("kafka commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}
