package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// JobWakeupStream carries "there is new work" hints for notification
// workers. The jobs table stays the source of truth; a lost hint only
// delays delivery until the next poll.
const JobWakeupStream = "jobs:wakeup"

const wakeupStreamMaxLen = 10000

type StreamProducer struct {
	client redis.Cmdable
}

func NewStreamProducer(client redis.Cmdable) *StreamProducer {
	return &StreamProducer{client: client}
}

// NotifyJobs publishes one wake-up hint per enqueued job.
func (p *StreamProducer) NotifyJobs(ctx context.Context, jobIDs ...uuid.UUID) error {
	for _, id := range jobIDs {
		args := &redis.XAddArgs{
			Stream: JobWakeupStream,
			MaxLen: wakeupStreamMaxLen,
			Approx: true,
			Values: map[string]any{
				"job_id":    id.String(),
				"timestamp": time.Now().Unix(),
			},
		}
		if err := p.client.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("failed to publish job wakeup: %w", err)
		}
	}
	return nil
}

type StreamConsumer struct {
	client        redis.Cmdable
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client redis.Cmdable,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XStream, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	return streams, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.stream, c.group, messageIDs...).Err(); err != nil {
		return fmt.Errorf("failed to ack messages: %w", err)
	}
	return nil
}

// Next blocks until wake-up hints arrive or the block duration passes,
// acknowledges them and returns how many were read.
func (c *StreamConsumer) Next(ctx context.Context) (int, error) {
	streams, err := c.Read(ctx)
	if err != nil {
		return 0, err
	}

	var ids []string
	for _, s := range streams {
		for _, msg := range s.Messages {
			ids = append(ids, msg.ID)
		}
	}
	if err := c.Ack(ctx, ids...); err != nil {
		return len(ids), err
	}
	return len(ids), nil
}
