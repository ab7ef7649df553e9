package repository

import (
	"context"

	"github.com/rs/zerolog/log"

	"vidgen-backend/internal/models"
)

type OperationLogRepo struct {
	db DBTX
}

func NewOperationLogRepo(db DBTX) *OperationLogRepo {
	return &OperationLogRepo{db: db}
}

// InsertOperationLog is best effort: a failed write is logged and dropped so
// it never interrupts the caller.
func (r *OperationLogRepo) InsertOperationLog(ctx context.Context, entry models.OperationLog) {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ai_operation_logs (user_id, log_type, status, video_key, message)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.UserID, entry.LogType, entry.Status, entry.VideoKey, entry.Message,
	)
	if err != nil {
		log.Warn().Err(err).
			Str("log_type", entry.LogType).
			Str("status", entry.Status).
			Msg("insert operation log failed")
	}
}
