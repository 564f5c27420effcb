package repository

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fuzoj/internal/common/mq"
	"fuzoj/pkg/utils/logger"
)

// OutboxSweeper polls unpublished outbox rows and republishes them to the
// broker, marking each row published once the publish succeeds. Running this
// out-of-band is what makes the submission finalize write and the
// SubmissionJudged publish atomic from the outside: the DB transaction always
// commits first, and the publish can lag or retry without affecting it.
type OutboxSweeper struct {
	repo      *OutboxRepository
	queue     mq.MessageQueue
	topic     string
	interval  time.Duration
	batchSize int
}

// NewOutboxSweeper creates a sweeper publishing unpublished events to topic.
func NewOutboxSweeper(repo *OutboxRepository, queue mq.MessageQueue, topic string, interval time.Duration, batchSize int) *OutboxSweeper {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxSweeper{repo: repo, queue: queue, topic: topic, interval: interval, batchSize: batchSize}
}

// Run sweeps on a fixed interval until ctx is canceled.
func (s *OutboxSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.sweepOnce(ctx); err != nil {
				logger.Error(ctx, "outbox sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *OutboxSweeper) sweepOnce(ctx context.Context) error {
	events, err := s.repo.FetchUnpublished(ctx, s.batchSize)
	if err != nil {
		return err
	}
	for _, ev := range events {
		message := mq.NewMessage(ev.Payload)
		message.ID = ev.ID
		message.Headers = map[string]string{
			"event-type":    ev.EventType,
			"submission-id": ev.SubmissionID,
		}
		if err := s.queue.Publish(ctx, s.topic, message); err != nil {
			logger.Warn(ctx, "publish outbox event failed", zap.String("event_id", ev.ID), zap.Error(err))
			continue
		}
		if err := s.repo.MarkPublished(ctx, ev.ID); err != nil {
			logger.Warn(ctx, "mark outbox event published failed", zap.String("event_id", ev.ID), zap.Error(err))
		}
	}
	return nil
}
