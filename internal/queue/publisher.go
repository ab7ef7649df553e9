package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"vidgen-backend/internal/models"
)

// Publisher pushes post-processing jobs onto the list the external worker
// pops from. Delivery is at-least-once from the worker's point of view.
type Publisher struct {
	redis *redis.Client
	queue string
}

func NewPublisher(redisClient *redis.Client, queue string) *Publisher {
	return &Publisher{redis: redisClient, queue: queue}
}

func (p *Publisher) Publish(ctx context.Context, job models.ProcessingJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job for task %s: %w", job.TaskID, err)
	}

	if err := p.redis.LPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job for task %s: %w", job.TaskID, err)
	}
	return nil
}
