package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients groups the connections the API needs. Jobs points at the
// instance the post-processing worker consumes from, which may be a
// different server than the one holding task state.
type RedisClients struct {
	Tasks  *redis.Client
	PubSub *redis.Client
	Jobs   *redis.Client
}

func NewRedisClients(redisURL, jobsRedisURL string) (*RedisClients, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	jobsOpt, err := redis.ParseURL(jobsRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse AI Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Task state + callback inbox
	tasksClient := redis.NewClient(opt)
	if err := tasksClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis (tasks): %w", err)
	}

	// PubSub client (separate connection)
	pubsubOpt := *opt
	pubsubClient := redis.NewClient(&pubsubOpt)
	if err := pubsubClient.Ping(ctx).Err(); err != nil {
		tasksClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (pubsub): %w", err)
	}

	jobsClient := redis.NewClient(jobsOpt)
	if err := jobsClient.Ping(ctx).Err(); err != nil {
		tasksClient.Close()
		pubsubClient.Close()
		return nil, fmt.Errorf("failed to ping Redis (jobs): %w", err)
	}

	return &RedisClients{
		Tasks:  tasksClient,
		PubSub: pubsubClient,
		Jobs:   jobsClient,
	}, nil
}

func (r *RedisClients) Close() {
	r.Tasks.Close()
	r.PubSub.Close()
	r.Jobs.Close()
}
