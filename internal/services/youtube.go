package services

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const youtubeChunkSize = 8 * 1024 * 1024

// VideoMetadata describes a video being published.
type VideoMetadata struct {
	TaskID      string
	Title       string
	Description string
}

// YouTubePublisher uploads videos on behalf of a user.
type YouTubePublisher struct {
	categoryID string
	privacy    string
	opts       []option.ClientOption
}

func NewYouTubePublisher(categoryID, privacy string, opts ...option.ClientOption) *YouTubePublisher {
	return &YouTubePublisher{categoryID: categoryID, privacy: privacy, opts: opts}
}

// Upload streams media to YouTube with a resumable upload and returns the
// new video's ID.
func (p *YouTubePublisher) Upload(ctx context.Context, ts oauth2.TokenSource, media io.Reader, meta VideoMetadata) (string, error) {
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, p.opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return "", &UpstreamError{Service: "youtube", Err: fmt.Errorf("failed to create client: %w", err)}
	}

	description := meta.Description
	if description == "" {
		description = "Generated by Justic AI\nTask ID: " + meta.TaskID
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: description,
			CategoryId:  p.categoryID,
		},
		Status: &youtube.VideoStatus{PrivacyStatus: p.privacy},
	}

	call := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(media, googleapi.ContentType("video/mp4"), googleapi.ChunkSize(youtubeChunkSize)).
		Context(ctx)

	resp, err := call.Do()
	if err != nil {
		return "", &UpstreamError{Service: "youtube", Err: err}
	}
	if resp.Id == "" {
		return "", &UpstreamError{Service: "youtube", Err: fmt.Errorf("upload returned no video id")}
	}
	return resp.Id, nil
}
