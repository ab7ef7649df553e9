package services

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"vidgen-backend/internal/models"
	"vidgen-backend/internal/websocket"
)

// RedisNotifier fans task transitions out to the websocket hub through
// Redis pub/sub, one channel per user.
type RedisNotifier struct {
	redis *redis.Client
}

func NewRedisNotifier(redisClient *redis.Client) *RedisNotifier {
	return &RedisNotifier{redis: redisClient}
}

func (n *RedisNotifier) NotifyTask(ctx context.Context, t *models.Task) {
	data, _ := json.Marshal(models.WSMessage{
		Type:    "task_update",
		Payload: models.TaskUpdate{TaskID: t.ID, Status: t.Status},
	})
	if err := n.redis.Publish(ctx, websocket.UserChannel(t.UserID), data).Err(); err != nil {
		log.Warn().Err(err).Str("task_id", t.ID).Msg("failed to publish task update")
	}
}
