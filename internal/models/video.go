package models

import "time"

type VideoKind string

const (
	KindOriginal  VideoKind = "original"
	KindProcessed VideoKind = "processed"
	KindThumbnail VideoKind = "thumbnail"
)

// ParseVideoKind accepts the two streamable kinds; empty defaults to original.
func ParseVideoKind(s string) (VideoKind, bool) {
	switch s {
	case "", string(KindOriginal):
		return KindOriginal, true
	case string(KindProcessed):
		return KindProcessed, true
	}
	return "", false
}

type VideoEntry struct {
	TaskID       string `json:"task_id"`
	HasOriginal  bool   `json:"has_original"`
	HasProcessed bool   `json:"has_processed"`
}

type FinalVideo struct {
	VideoKey          string     `json:"video_key"`
	UserID            string     `json:"user_id"`
	Title             *string    `json:"title"`
	Description       *string    `json:"description"`
	SelectedAt        time.Time  `json:"selected_at"`
	YouTubeUploaded   bool       `json:"youtube_uploaded"`
	YouTubeVideoID    *string    `json:"youtube_video_id"`
	YouTubeUploadedAt *time.Time `json:"youtube_uploaded_at"`
}

type OperationLog struct {
	UserID   *string
	LogType  string // "GENERATE" | "CALLBACK" | "PUBLISH" | "FINALIZE"
	Status   string // "SUCCESS" | "FAILED" | "IGNORED"
	VideoKey *string
	Message  string
}

type YouTubeUploadRequest struct {
	TaskID string `json:"task_id"`
	Type   string `json:"type"`
	Title  string `json:"title"`
}

type YouTubeUploadResponse struct {
	Status          string `json:"status"`
	ExternalVideoID string `json:"external_video_id"`
}

type FinalizeVideoRequest struct {
	TaskID      string  `json:"task_id"`
	Type        string  `json:"type"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type OAuthToken struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}
