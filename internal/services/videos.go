package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"vidgen-backend/internal/models"
	"vidgen-backend/internal/storage"
)

type ObjectStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
	PutFile(ctx context.Context, key, path, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

type CredentialResolver interface {
	Resolve(ctx context.Context, userID string) (oauth2.TokenSource, error)
}

type VideoUploader interface {
	Upload(ctx context.Context, ts oauth2.TokenSource, media io.Reader, meta VideoMetadata) (string, error)
}

type FinalVideoStore interface {
	InsertFinalVideo(ctx context.Context, v *models.FinalVideo) error
	MarkPublished(ctx context.Context, videoKey, youtubeVideoID string) error
	ListByUser(ctx context.Context, userID string) ([]*models.FinalVideo, error)
}

type Thumbnailer interface {
	Extract(ctx context.Context, input, output string) error
}

// VideoService serves a user's stored videos and publishes them.
type VideoService struct {
	store       ObjectStore
	credentials CredentialResolver
	uploader    VideoUploader
	finals      FinalVideoStore
	oplog       OperationLogger
	thumbnailer Thumbnailer
	scratchDir  string

	thumbs singleflight.Group
}

func NewVideoService(
	store ObjectStore,
	credentials CredentialResolver,
	uploader VideoUploader,
	finals FinalVideoStore,
	oplog OperationLogger,
	thumbnailer Thumbnailer,
	scratchDir string,
) *VideoService {
	return &VideoService{
		store:       store,
		credentials: credentials,
		uploader:    uploader,
		finals:      finals,
		oplog:       oplog,
		thumbnailer: thumbnailer,
		scratchDir:  scratchDir,
	}
}

func (s *VideoService) ListVideos(ctx context.Context, userID string) ([]models.VideoEntry, error) {
	keys, err := s.store.List(ctx, storage.UserPrefix(userID))
	if err != nil {
		return nil, &TransientIOError{Op: "list videos", Err: err}
	}
	return storage.GroupVideos(keys), nil
}

// OpenVideo returns a reader over the user's video. The caller closes it.
func (s *VideoService) OpenVideo(ctx context.Context, userID, taskID string, kind models.VideoKind) (io.ReadCloser, storage.ObjectInfo, error) {
	rc, info, err := s.store.Get(ctx, storage.VideoKey(userID, taskID, kind))
	if err != nil {
		return nil, storage.ObjectInfo{}, objectError("open video", err)
	}
	return rc, info, nil
}

// OpenThumbnail returns the stored thumbnail, extracting it from the
// original video first if it does not exist yet. Concurrent requests for
// the same missing thumbnail share one extraction.
func (s *VideoService) OpenThumbnail(ctx context.Context, userID, taskID string) (io.ReadCloser, storage.ObjectInfo, error) {
	key := storage.ThumbnailKey(userID, taskID)

	rc, info, err := s.store.Get(ctx, key)
	if err == nil {
		return rc, info, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, storage.ObjectInfo{}, objectError("open thumbnail", err)
	}

	// the flight is shared, so one caller going away must not fail the others
	_, err, _ = s.thumbs.Do(key, func() (interface{}, error) {
		return nil, s.generateThumbnail(context.WithoutCancel(ctx), userID, taskID, key)
	})
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}

	rc, info, err = s.store.Get(ctx, key)
	if err != nil {
		return nil, storage.ObjectInfo{}, objectError("open thumbnail", err)
	}
	return rc, info, nil
}

func (s *VideoService) generateThumbnail(ctx context.Context, userID, taskID, key string) error {
	// a previous flight may have finished between our miss and this call
	if ok, err := s.store.Exists(ctx, key); err == nil && ok {
		return nil
	}

	src, _, err := s.store.Get(ctx, storage.VideoKey(userID, taskID, models.KindOriginal))
	if err != nil {
		return objectError("open video", err)
	}
	defer src.Close()

	video, err := os.CreateTemp(s.scratchDir, "thumb-src-*.mp4")
	if err != nil {
		return &TransientIOError{Op: "create scratch file", Err: err}
	}
	defer os.Remove(video.Name())

	buf := make([]byte, downloadChunkSize)
	if _, err := io.CopyBuffer(video, src, buf); err != nil {
		video.Close()
		return &TransientIOError{Op: "read video", Err: err}
	}
	if err := video.Close(); err != nil {
		return &TransientIOError{Op: "flush scratch file", Err: err}
	}

	thumb, err := os.CreateTemp(s.scratchDir, "thumb-*.jpg")
	if err != nil {
		return &TransientIOError{Op: "create scratch file", Err: err}
	}
	thumb.Close()
	defer os.Remove(thumb.Name())

	if err := s.thumbnailer.Extract(ctx, video.Name(), thumb.Name()); err != nil {
		log.Error().Err(err).Str("task_id", taskID).Msg("thumbnail extraction failed")
		return fmt.Errorf("thumbnail extraction failed: %w", err)
	}

	if err := s.store.PutFile(ctx, key, thumb.Name(), storage.ContentTypeJPEG); err != nil {
		return &TransientIOError{Op: "upload thumbnail", Err: err}
	}
	log.Info().Str("task_id", taskID).Str("key", key).Msg("thumbnail generated")
	return nil
}

// PublishToYouTube uploads the chosen video to the user's linked channel and
// records it as published.
func (s *VideoService) PublishToYouTube(ctx context.Context, userID string, req models.YouTubeUploadRequest) (string, error) {
	kind, ok := models.ParseVideoKind(req.Type)
	if !ok {
		return "", &ValidationError{Fields: map[string]string{"type": "Invalid video type"}}
	}
	fields := map[string]string{}
	if strings.TrimSpace(req.TaskID) == "" {
		fields["task_id"] = "Task ID is required"
	}
	if strings.TrimSpace(req.Title) == "" {
		fields["title"] = "Title is required"
	}
	if len(fields) > 0 {
		return "", &ValidationError{Fields: fields}
	}

	ts, err := s.credentials.Resolve(ctx, userID)
	if err != nil {
		return "", err
	}

	key := storage.VideoKey(userID, req.TaskID, kind)
	media, _, err := s.store.Get(ctx, key)
	if err != nil {
		return "", objectError("open video", err)
	}
	defer media.Close()

	videoID, err := s.uploader.Upload(ctx, ts, media, VideoMetadata{TaskID: req.TaskID, Title: req.Title})
	if err != nil {
		log.Error().Err(err).Str("task_id", req.TaskID).Str("user_id", userID).Msg("youtube upload failed")
		s.record(ctx, userID, "PUBLISH", "FAILED", key, err.Error())
		return "", err
	}

	// The video is live on YouTube at this point; bookkeeping failures are
	// logged but do not fail the request.
	title := req.Title
	if err := s.finals.InsertFinalVideo(ctx, &models.FinalVideo{VideoKey: key, UserID: userID, Title: &title}); err != nil {
		log.Error().Err(err).Str("video_key", key).Msg("failed to record final video")
	} else if err := s.finals.MarkPublished(ctx, key, videoID); err != nil {
		log.Error().Err(err).Str("video_key", key).Msg("failed to mark video published")
	}

	log.Info().Str("task_id", req.TaskID).Str("youtube_video_id", videoID).Msg("video published")
	s.record(ctx, userID, "PUBLISH", "SUCCESS", key, "published as "+videoID)
	return videoID, nil
}

// Finalize records the user's chosen variant of a task in the library.
func (s *VideoService) Finalize(ctx context.Context, userID string, req models.FinalizeVideoRequest) (*models.FinalVideo, error) {
	kind, ok := models.ParseVideoKind(req.Type)
	if !ok {
		return nil, &ValidationError{Fields: map[string]string{"type": "Invalid video type"}}
	}
	if strings.TrimSpace(req.TaskID) == "" {
		return nil, &ValidationError{Fields: map[string]string{"task_id": "Task ID is required"}}
	}

	key := storage.VideoKey(userID, req.TaskID, kind)
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return nil, &TransientIOError{Op: "check video", Err: err}
	}
	if !exists {
		return nil, &NotFoundError{Message: "Video not found"}
	}

	v := &models.FinalVideo{
		VideoKey:    key,
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
	}
	if err := s.finals.InsertFinalVideo(ctx, v); err != nil {
		return nil, &PersistenceError{Op: "insert final video", Err: err}
	}

	s.record(ctx, userID, "FINALIZE", "SUCCESS", key, "video finalized")
	return v, nil
}

func (s *VideoService) Library(ctx context.Context, userID string) ([]*models.FinalVideo, error) {
	videos, err := s.finals.ListByUser(ctx, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "list final videos", Err: err}
	}
	if videos == nil {
		videos = []*models.FinalVideo{}
	}
	return videos, nil
}

func (s *VideoService) record(ctx context.Context, userID, logType, status, key, message string) {
	if s.oplog == nil {
		return
	}
	s.oplog.InsertOperationLog(ctx, models.OperationLog{
		UserID:   &userID,
		LogType:  logType,
		Status:   status,
		VideoKey: &key,
		Message:  message,
	})
}

func objectError(op string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return &NotFoundError{Message: "Video not found"}
	}
	return &TransientIOError{Op: op, Err: err}
}
