package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"vidgen-backend/internal/middleware"
	"vidgen-backend/internal/models"
	"vidgen-backend/internal/storage"
)

const (
	videoChunkSize  = 1024 * 1024
	thumbChunkSize  = 256 * 1024
	maxPromptBody   = 64 * 1024
	maxCallbackBody = 1 << 20
)

type TaskCoordinator interface {
	Submit(ctx context.Context, prompt, userID string) (*models.Task, error)
	HandleCallback(ctx context.Context, payload models.CallbackPayload)
	QueryStatus(ctx context.Context, taskID, userID string) (models.TaskStatus, error)
}

type VideoLibrary interface {
	ListVideos(ctx context.Context, userID string) ([]models.VideoEntry, error)
	OpenVideo(ctx context.Context, userID, taskID string, kind models.VideoKind) (io.ReadCloser, storage.ObjectInfo, error)
	OpenThumbnail(ctx context.Context, userID, taskID string) (io.ReadCloser, storage.ObjectInfo, error)
	PublishToYouTube(ctx context.Context, userID string, req models.YouTubeUploadRequest) (string, error)
	Finalize(ctx context.Context, userID string, req models.FinalizeVideoRequest) (*models.FinalVideo, error)
	Library(ctx context.Context, userID string) ([]*models.FinalVideo, error)
}

// CallbackInbox hands callbacks to the background worker pool.
type CallbackInbox interface {
	Enqueue(ctx context.Context, payload models.CallbackPayload) error
}

type VideoHandler struct {
	coordinator TaskCoordinator
	videos      VideoLibrary
	inbox       CallbackInbox
}

func NewVideoHandler(coordinator TaskCoordinator, videos VideoLibrary, inbox CallbackInbox) *VideoHandler {
	return &VideoHandler{coordinator: coordinator, videos: videos, inbox: inbox}
}

// POST /api/video/generate
func (h *VideoHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.GenerateVideoRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPromptBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("INVALID_REQUEST", "Invalid request body", r))
		return
	}

	task, err := h.coordinator.Submit(r.Context(), req.Prompt, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.TaskStatusResponse{TaskID: task.ID, Status: task.Status})
}

// POST /api/video/callback
// Always answers {"code":200}; the provider must never see our failures.
func (h *VideoHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ack := map[string]int{"code": 200}

	var payload models.CallbackPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCallbackBody)).Decode(&payload); err != nil {
		log.Warn().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Msg("malformed callback ignored")
		writeJSON(w, http.StatusOK, ack)
		return
	}

	log.Info().
		Str("task_id", payload.Data.TaskID).
		Int("provider_code", payload.Code).
		Int("result_urls", len(payload.Data.Info.ResultURLs)).
		Msg("callback received")

	if err := h.inbox.Enqueue(r.Context(), payload); err != nil {
		// inbox unavailable: process inline so the callback is not lost
		log.Error().Err(err).Str("task_id", payload.Data.TaskID).Msg("failed to enqueue callback, processing inline")
		h.coordinator.HandleCallback(context.WithoutCancel(r.Context()), payload)
	}

	writeJSON(w, http.StatusOK, ack)
}

// GET /api/video/list
func (h *VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	videos, err := h.videos.ListVideos(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"videos": videos})
}

// GET /api/video/status/{task_id}
func (h *VideoHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	taskID := chi.URLParam(r, "task_id")

	status, err := h.coordinator.QueryStatus(r.Context(), taskID, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.TaskStatusResponse{TaskID: taskID, Status: status})
}

// GET /api/video/stream/{task_id}?type=original|processed
func (h *VideoHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	taskID := chi.URLParam(r, "task_id")

	kind, ok := models.ParseVideoKind(r.URL.Query().Get("type"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("INVALID_TYPE", "type must be original or processed", r))
		return
	}

	body, info, err := h.videos.OpenVideo(r.Context(), userID, taskID, kind)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	defer body.Close()

	streamObject(w, r, body, info, storage.ContentTypeMP4, videoChunkSize)
}

// GET /api/video/thumb/{task_id}.jpg
func (h *VideoHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	taskID := chi.URLParam(r, "task_id")

	body, info, err := h.videos.OpenThumbnail(r.Context(), userID, taskID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	defer body.Close()

	streamObject(w, r, body, info, storage.ContentTypeJPEG, thumbChunkSize)
}

// POST /api/video/upload/youtube
func (h *VideoHandler) UploadYouTube(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.YouTubeUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("INVALID_REQUEST", "Invalid request body", r))
		return
	}

	videoID, err := h.videos.PublishToYouTube(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.YouTubeUploadResponse{Status: "UPLOADED", ExternalVideoID: videoID})
}

// POST /api/video/videos/finalize
func (h *VideoHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.FinalizeVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("INVALID_REQUEST", "Invalid request body", r))
		return
	}

	v, err := h.videos.Finalize(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"video_key": v.VideoKey, "status": "FINALIZED"})
}

// GET /api/video/videos/library
func (h *VideoHandler) Library(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	videos, err := h.videos.Library(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"videos": videos})
}

func streamObject(w http.ResponseWriter, r *http.Request, body io.Reader, info storage.ObjectInfo, contentType string, chunk int) {
	w.Header().Set("Content-Type", contentType)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, chunk)
	if _, err := io.CopyBuffer(w, body, buf); err != nil {
		// headers are gone; all we can do is log and drop the connection
		log.Warn().Err(err).Str("request_id", middleware.GetRequestID(r.Context())).Str("key", info.Key).Msg("stream interrupted")
	}
}
