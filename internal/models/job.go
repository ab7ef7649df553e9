package models

// ProcessingJob is handed to the external post-processing worker queue.
type ProcessingJob struct {
	TaskID    string `json:"task_id"`
	UserID    string `json:"user_id"`
	InputKey  string `json:"input_key"`
	OutputKey string `json:"output_key"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type TaskUpdate struct {
	TaskID string     `json:"task_id"`
	Status TaskStatus `json:"status"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
