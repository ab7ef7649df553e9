package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"vidgen-backend/internal/models"
)

const (
	CallbackQueue = "queue:callbacks"

	callbackLockTTL = 10 * time.Minute
	popTimeout      = 5 * time.Second
)

// CallbackHandler processes one provider callback. It must not return until
// the callback is fully handled.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, payload models.CallbackPayload)
}

// Inbox buffers provider callbacks in a Redis list so the HTTP handler can
// acknowledge immediately.
type Inbox struct {
	redis *redis.Client
	queue string
}

func NewInbox(redisClient *redis.Client) *Inbox {
	return &Inbox{redis: redisClient, queue: CallbackQueue}
}

func (i *Inbox) Enqueue(ctx context.Context, payload models.CallbackPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode callback: %w", err)
	}
	if err := i.redis.LPush(ctx, i.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue callback: %w", err)
	}
	return nil
}

// Pool drains the callback inbox with a fixed number of goroutines. A
// per-task lock keeps duplicate deliveries from being processed in parallel
// across workers and instances.
type Pool struct {
	redis       *redis.Client
	handler     CallbackHandler
	queue       string
	workerCount int
	popTimeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(redisClient *redis.Client, handler CallbackHandler, workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		redis:       redisClient,
		handler:     handler,
		queue:       CallbackQueue,
		workerCount: workerCount,
		popTimeout:  popTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	log.Info().Int("workers", p.workerCount).Str("queue", p.queue).Msg("callback workers started")
}

// Stop asks workers to exit and waits for in-flight callbacks to finish.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		if p.ctx.Err() != nil {
			log.Debug().Int("worker", id).Msg("callback worker shutting down")
			return
		}

		result, err := p.redis.BLPop(p.ctx, p.popTimeout, p.queue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && p.ctx.Err() == nil {
				log.Warn().Err(err).Int("worker", id).Msg("callback inbox pop failed")
				time.Sleep(time.Second)
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		p.process(id, []byte(result[1]))
	}
}

func (p *Pool) process(id int, raw []byte) {
	var payload models.CallbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Int("worker", id).Msg("failed to parse queued callback")
		return
	}

	// in-flight work finishes even during shutdown
	ctx := context.WithoutCancel(p.ctx)

	// Deliveries without results change nothing, so they never take the lock
	// and cannot shadow the real callback for the same task.
	if taskID := payload.Data.TaskID; taskID != "" && len(payload.Data.Info.ResultURLs) > 0 {
		lockKey := fmt.Sprintf("callback_lock:%s", taskID)
		locked, err := p.redis.SetNX(ctx, lockKey, "1", callbackLockTTL).Result()
		if err != nil {
			log.Error().Err(err).Str("task_id", taskID).Msg("failed to take callback lock")
			return
		}
		if !locked {
			log.Info().Str("task_id", taskID).Msg("callback already being handled, skipped")
			return
		}
		// the lock only covers the in-flight window; afterwards the task
		// status keeps a later duplicate from publishing a second job
		defer func() {
			if err := p.redis.Del(ctx, lockKey).Err(); err != nil {
				log.Warn().Err(err).Str("task_id", taskID).Msg("failed to release callback lock")
			}
		}()
	}

	log.Debug().Int("worker", id).Str("task_id", payload.Data.TaskID).Msg("processing callback")
	p.handler.HandleCallback(ctx, payload)
}
