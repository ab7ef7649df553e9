package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"vidgen-backend/internal/models"
	"vidgen-backend/internal/repository"
	"vidgen-backend/internal/storage"
)

const downloadChunkSize = 1024 * 1024

type VideoGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type TaskStore interface {
	Create(ctx context.Context, t *models.Task) error
	Get(ctx context.Context, id string) (*models.Task, error)
	Update(ctx context.Context, id string, fn func(t *models.Task) bool) (*models.Task, bool, error)
}

type ArtifactStore interface {
	PutFile(ctx context.Context, key, path, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
}

type JobPublisher interface {
	Publish(ctx context.Context, job models.ProcessingJob) error
}

type OperationLogger interface {
	InsertOperationLog(ctx context.Context, entry models.OperationLog)
}

type TaskNotifier interface {
	NotifyTask(ctx context.Context, t *models.Task)
}

// Coordinator owns the lifecycle of generation tasks: submission to the
// provider, callback handling, post-processing dispatch, and completion
// detection by polling storage for the processed artifact.
type Coordinator struct {
	generator  VideoGenerator
	tasks      TaskStore
	store      ArtifactStore
	queue      JobPublisher
	oplog      OperationLogger
	notifier   TaskNotifier
	httpClient *http.Client
	scratchDir string
}

func NewCoordinator(
	generator VideoGenerator,
	tasks TaskStore,
	store ArtifactStore,
	queue JobPublisher,
	oplog OperationLogger,
	notifier TaskNotifier,
	scratchDir string,
) *Coordinator {
	return &Coordinator{
		generator:  generator,
		tasks:      tasks,
		store:      store,
		queue:      queue,
		oplog:      oplog,
		notifier:   notifier,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		scratchDir: scratchDir,
	}
}

// Submit asks the provider to generate a video for prompt and registers the
// resulting task as QUEUED. The provider is called exactly once.
func (c *Coordinator) Submit(ctx context.Context, prompt, userID string) (*models.Task, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, &ValidationError{Fields: map[string]string{"prompt": "Prompt is required"}}
	}

	taskID, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("generation request failed")
		c.record(ctx, userID, "GENERATE", "FAILED", nil, err.Error())
		return nil, err
	}

	task := &models.Task{
		ID:     taskID,
		UserID: userID,
		Prompt: prompt,
		Status: models.TaskQueued,
	}
	if err := c.tasks.Create(ctx, task); err != nil {
		return nil, &PersistenceError{Op: "create task", Err: err}
	}

	log.Info().Str("task_id", taskID).Str("user_id", userID).Msg("task queued")
	c.record(ctx, userID, "GENERATE", "SUCCESS", nil, "task "+taskID+" queued")
	c.notify(ctx, task)

	return task, nil
}

// HandleCallback processes a provider callback. It never returns an error:
// failures mark the task FAILED so the provider is not prompted to retry.
// Unknown tasks, empty results, and tasks already past QUEUED are ignored.
func (c *Coordinator) HandleCallback(ctx context.Context, payload models.CallbackPayload) {
	taskID := payload.Data.TaskID
	urls := payload.Data.Info.ResultURLs

	if taskID == "" || len(urls) == 0 {
		log.Debug().Str("task_id", taskID).Msg("callback without task or results ignored")
		return
	}

	task, err := c.tasks.Get(ctx, taskID)
	if errors.Is(err, repository.ErrTaskNotFound) {
		log.Debug().Str("task_id", taskID).Msg("callback for unknown task ignored")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("task_id", taskID).Msg("callback: failed to load task")
		return
	}

	if task.Status != models.TaskQueued {
		log.Info().Str("task_id", taskID).Str("status", string(task.Status)).Msg("duplicate callback ignored")
		return
	}

	inputKey := storage.VideoKey(task.UserID, task.ID, models.KindOriginal)
	outputKey := storage.VideoKey(task.UserID, task.ID, models.KindProcessed)

	if err := c.stageOriginal(ctx, urls[0], inputKey); err != nil {
		c.fail(ctx, task, inputKey, err)
		return
	}

	job := models.ProcessingJob{
		TaskID:    task.ID,
		UserID:    task.UserID,
		InputKey:  inputKey,
		OutputKey: outputKey,
	}
	if err := c.queue.Publish(ctx, job); err != nil {
		c.fail(ctx, task, inputKey, err)
		return
	}

	if _, err := c.transition(ctx, task.ID, models.TaskQueuedForAI, ""); err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Msg("callback: failed to record QUEUED_FOR_AI")
		return
	}

	log.Info().Str("task_id", task.ID).Str("input_key", inputKey).Msg("post-processing job published")
	c.record(ctx, task.UserID, "CALLBACK", "SUCCESS", &inputKey, "post-processing job published")
}

// QueryStatus reports the task's status, promoting it to DONE once the
// processed artifact exists. Unknown tasks are reported DONE: they are
// assumed to have completed and expired from the task store.
func (c *Coordinator) QueryStatus(ctx context.Context, taskID, userID string) (models.TaskStatus, error) {
	task, err := c.tasks.Get(ctx, taskID)
	if errors.Is(err, repository.ErrTaskNotFound) {
		log.Warn().Str("task_id", taskID).Msg("status requested for unknown task, reporting DONE")
		return models.TaskDone, nil
	}
	if err != nil {
		return "", &TransientIOError{Op: "load task", Err: err}
	}

	if userID != "" && task.UserID != userID {
		return "", &NotFoundError{Message: "Task not found"}
	}

	if task.Status.IsTerminal() {
		return task.Status, nil
	}

	key := storage.VideoKey(task.UserID, task.ID, models.KindProcessed)
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("processed artifact check failed, using last known status")
		return task.Status, nil
	}
	if !exists {
		return task.Status, nil
	}

	updated, err := c.transition(ctx, taskID, models.TaskDone, "")
	if err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("failed to persist DONE")
		return models.TaskDone, nil
	}
	return updated.Status, nil
}

// transition moves the task to status `to` if the state machine allows it
// from the currently stored status. The returned task reflects what is
// stored afterwards, which may differ from `to` when a concurrent writer
// already reached a terminal state.
func (c *Coordinator) transition(ctx context.Context, taskID string, to models.TaskStatus, reason string) (*models.Task, error) {
	task, changed, err := c.tasks.Update(ctx, taskID, func(t *models.Task) bool {
		if !models.CanTransition(t.Status, to) {
			return false
		}
		t.Status = to
		t.Error = reason
		return true
	})
	if err != nil {
		return nil, err
	}

	if changed {
		log.Info().Str("task_id", taskID).Str("status", string(to)).Msg("task transitioned")
		c.notify(ctx, task)
	} else if task.Status != to {
		log.Debug().Str("task_id", taskID).Str("status", string(task.Status)).Str("rejected", string(to)).Msg("transition rejected")
	}
	return task, nil
}

func (c *Coordinator) fail(ctx context.Context, task *models.Task, key string, cause error) {
	log.Error().Err(cause).Str("task_id", task.ID).Msg("callback processing failed")

	if _, err := c.transition(ctx, task.ID, models.TaskFailed, cause.Error()); err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Msg("failed to record FAILED")
	}
	c.record(ctx, task.UserID, "CALLBACK", "FAILED", &key, cause.Error())
}

// stageOriginal downloads url into a scratch file and uploads it under key.
// The scratch file is removed on every path.
func (c *Coordinator) stageOriginal(ctx context.Context, url, key string) error {
	f, err := os.CreateTemp(c.scratchDir, "callback-*.mp4")
	if err != nil {
		return fmt.Errorf("failed to create scratch file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if err := c.download(ctx, url, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to flush scratch file: %w", err)
	}

	if err := c.store.PutFile(ctx, key, path, storage.ContentTypeMP4); err != nil {
		return fmt.Errorf("failed to upload original: %w", err)
	}
	return nil
}

func (c *Coordinator) download(ctx context.Context, url string, dst io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid result url: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download result: status %d", resp.StatusCode)
	}

	buf := make([]byte, downloadChunkSize)
	if _, err := io.CopyBuffer(dst, resp.Body, buf); err != nil {
		return fmt.Errorf("failed to download result: %w", err)
	}
	return nil
}

func (c *Coordinator) record(ctx context.Context, userID, logType, status string, videoKey *string, message string) {
	if c.oplog == nil {
		return
	}
	var uid *string
	if userID != "" {
		uid = &userID
	}
	c.oplog.InsertOperationLog(ctx, models.OperationLog{
		UserID:   uid,
		LogType:  logType,
		Status:   status,
		VideoKey: videoKey,
		Message:  message,
	})
}

func (c *Coordinator) notify(ctx context.Context, t *models.Task) {
	if c.notifier != nil {
		c.notifier.NotifyTask(ctx, t)
	}
}
