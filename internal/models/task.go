package models

import "time"

type TaskStatus string

const (
	TaskQueued      TaskStatus = "QUEUED"
	TaskQueuedForAI TaskStatus = "QUEUED_FOR_AI"
	TaskFailed      TaskStatus = "FAILED"
	TaskDone        TaskStatus = "DONE"
)

// IsTerminal reports whether no further automatic transition may leave s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskFailed || s == TaskDone
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskQueued, TaskQueuedForAI, TaskFailed, TaskDone:
		return true
	}
	return false
}

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskQueued:      {TaskQueuedForAI, TaskFailed, TaskDone},
	TaskQueuedForAI: {TaskFailed, TaskDone},
}

// CanTransition reports whether a task in status from may move to status to.
// DONE and FAILED have no outgoing edges.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range taskTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Task struct {
	ID        string     `json:"task_id"`
	UserID    string     `json:"user_id"`
	Prompt    string     `json:"prompt,omitempty"`
	Status    TaskStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CallbackPayload is the body the generation provider posts once a task settles.
type CallbackPayload struct {
	Code int          `json:"code"`
	Msg  string       `json:"msg"`
	Data CallbackData `json:"data"`
}

type CallbackData struct {
	TaskID string       `json:"taskId"`
	Info   CallbackInfo `json:"info"`
}

type CallbackInfo struct {
	ResultURLs []string `json:"resultUrls"`
}

type GenerateVideoRequest struct {
	Prompt string `json:"prompt"`
}

type TaskStatusResponse struct {
	TaskID string     `json:"task_id"`
	Status TaskStatus `json:"status"`
}
