package repository

import (
	"context"
	"fmt"

	"vidgen-backend/internal/models"
)

type FinalVideoRepo struct {
	db DBTX
}

func NewFinalVideoRepo(db DBTX) *FinalVideoRepo {
	return &FinalVideoRepo{db: db}
}

// InsertFinalVideo records a user's final choice. A second insert for the
// same video_key is a no-op.
func (r *FinalVideoRepo) InsertFinalVideo(ctx context.Context, v *models.FinalVideo) error {
	query := `INSERT INTO ai_final_videos (video_key, user_id, title, description)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (video_key) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, v.VideoKey, v.UserID, v.Title, v.Description); err != nil {
		return fmt.Errorf("insert final video %s: %w", v.VideoKey, err)
	}
	return nil
}

func (r *FinalVideoRepo) MarkPublished(ctx context.Context, videoKey, youtubeVideoID string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin mark published: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE ai_final_videos
		SET youtube_uploaded = TRUE, youtube_video_id = $1, youtube_uploaded_at = NOW()
		WHERE video_key = $2`, youtubeVideoID, videoKey)
	if err != nil {
		return fmt.Errorf("mark published %s: %w", videoKey, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("video %s: %w", videoKey, ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit mark published %s: %w", videoKey, err)
	}
	return nil
}

func (r *FinalVideoRepo) ListByUser(ctx context.Context, userID string) ([]*models.FinalVideo, error) {
	query := `SELECT video_key, user_id, title, description, selected_at,
			youtube_uploaded, youtube_video_id, youtube_uploaded_at
		FROM ai_final_videos
		WHERE user_id = $1
		ORDER BY selected_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list final videos: %w", err)
	}
	defer rows.Close()

	videos := []*models.FinalVideo{}
	for rows.Next() {
		v := &models.FinalVideo{}
		if err := rows.Scan(
			&v.VideoKey, &v.UserID, &v.Title, &v.Description, &v.SelectedAt,
			&v.YouTubeUploaded, &v.YouTubeVideoID, &v.YouTubeUploadedAt,
		); err != nil {
			return nil, fmt.Errorf("scan final video: %w", err)
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list final videos: %w", err)
	}
	return videos, nil
}
