package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"vidgen-backend/internal/models"
)

var ErrTaskNotFound = errors.New("task not found")

const (
	taskKeyPrefix  = "task:"
	cacheMaxAge    = 5 * time.Second
	maxCASAttempts = 10
)

type cachedTask struct {
	task     models.Task
	loadedAt time.Time
}

// TaskRepo keeps in-flight task state in Redis so it survives restarts, with
// a short-lived in-process copy for hot status polling. Writes go to Redis
// first and then replace the cached copy.
type TaskRepo struct {
	redis *redis.Client
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[string]cachedTask
	now   func() time.Time
}

func NewTaskRepo(redisClient *redis.Client, ttl time.Duration) *TaskRepo {
	return &TaskRepo{
		redis: redisClient,
		ttl:   ttl,
		cache: make(map[string]cachedTask),
		now:   time.Now,
	}
}

func (r *TaskRepo) Create(ctx context.Context, t *models.Task) error {
	now := r.now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	return r.write(ctx, t)
}

func (r *TaskRepo) Get(ctx context.Context, id string) (*models.Task, error) {
	r.mu.RLock()
	c, ok := r.cache[id]
	r.mu.RUnlock()
	if ok && r.now().Sub(c.loadedAt) < cacheMaxAge {
		t := c.task
		return &t, nil
	}

	fields, err := r.redis.HGetAll(ctx, taskKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	if len(fields) == 0 {
		r.evict(id)
		return nil, fmt.Errorf("%s: %w", id, ErrTaskNotFound)
	}

	t, err := decodeTask(id, fields)
	if err != nil {
		return nil, err
	}
	r.rememberIfNewer(*t)
	return t, nil
}

// Update applies fn to the current stored task inside a WATCH/MULTI
// transaction and retries when another writer got there first. fn returns
// false to leave the task untouched. The returned bool reports whether the
// write happened.
func (r *TaskRepo) Update(ctx context.Context, id string, fn func(t *models.Task) bool) (*models.Task, bool, error) {
	key := taskKeyPrefix + id

	var (
		result  *models.Task
		changed bool
	)

	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return ErrTaskNotFound
		}

		t, err := decodeTask(id, fields)
		if err != nil {
			return err
		}

		result, changed = t, fn(t)
		if !changed {
			return nil
		}
		t.UpdatedAt = r.now().UTC()

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeTask(t))
			if r.ttl > 0 {
				pipe.Expire(ctx, key, r.ttl)
			}
			return nil
		})
		return err
	}

	r.evict(id)
	for i := 0; i < maxCASAttempts; i++ {
		err := r.redis.Watch(ctx, txf, key)
		if err == nil {
			r.remember(*result)
			return result, changed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrTaskNotFound) {
			return nil, false, fmt.Errorf("%s: %w", id, ErrTaskNotFound)
		}
		return nil, false, fmt.Errorf("update task %s: %w", id, err)
	}
	return nil, false, fmt.Errorf("update task %s: too much contention", id)
}

func (r *TaskRepo) write(ctx context.Context, t *models.Task) error {
	key := taskKeyPrefix + t.ID

	// Drop the cached copy first so a failed write never leaves it ahead of Redis.
	r.evict(t.ID)

	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeTask(t))
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}

	r.remember(*t)
	return nil
}

func (r *TaskRepo) remember(t models.Task) {
	r.mu.Lock()
	r.cache[t.ID] = cachedTask{task: t, loadedAt: r.now()}
	r.mu.Unlock()
}

// rememberIfNewer keeps a concurrent writer's copy when a slower read
// returns an older version.
func (r *TaskRepo) rememberIfNewer(t models.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cache[t.ID]; ok && c.task.UpdatedAt.After(t.UpdatedAt) {
		return
	}
	r.cache[t.ID] = cachedTask{task: t, loadedAt: r.now()}
}

func (r *TaskRepo) evict(id string) {
	r.mu.Lock()
	delete(r.cache, id)
	r.mu.Unlock()
}

func encodeTask(t *models.Task) map[string]interface{} {
	return map[string]interface{}{
		"user_id":    t.UserID,
		"prompt":     t.Prompt,
		"status":     string(t.Status),
		"error":      t.Error,
		"created_at": t.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": t.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func decodeTask(id string, fields map[string]string) (*models.Task, error) {
	t := &models.Task{
		ID:     id,
		UserID: fields["user_id"],
		Prompt: fields["prompt"],
		Status: models.TaskStatus(fields["status"]),
		Error:  fields["error"],
	}
	if !t.Status.Valid() {
		return nil, fmt.Errorf("task %s has invalid status %q", id, fields["status"])
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	return t, nil
}
