package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"bandwatch/internal/config"
	"bandwatch/internal/logging"
)

// StartKafka consumes monitor data objects from a topic in the background.
// It returns at once; the reader closes when ctx is done.
func StartKafka(ctx context.Context, cfg config.KafkaConfig, tracker *Tracker, handle Handler, logger *slog.Logger) {
	if logger == nil {
		logger = logging.Discard()
	}
	if tracker == nil {
		tracker = NewTracker()
	}
	logger.Info("kafka collector enabled", "brokers", cfg.Brokers, "topic", cfg.Topic, "group_id", cfg.GroupID)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	go func() {
		defer reader.Close()
		var backoff time.Duration
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				backoff = nextBackoff(backoff, 200*time.Millisecond)
				logger.Warn("kafka read error", "err", err, "retry_in", backoff.String())
				if !BackoffSleep(ctx, backoff) {
					return
				}
				continue
			}
			backoff = 0
			reading, err := DecodeData(m.Value)
			if err != nil {
				logger.Warn("kafka decode error", "err", err, "partition", m.Partition, "offset", m.Offset)
				continue
			}
			if handle != nil {
				handle(ctx, tracker.Observe(time.Now(), reading))
			}
		}
	}()
}
