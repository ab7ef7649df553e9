package services

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// FFmpegThumbnailer grabs a single frame from a video file.
type FFmpegThumbnailer struct {
	binary string
}

func NewFFmpegThumbnailer(binary string) *FFmpegThumbnailer {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegThumbnailer{binary: binary}
}

// Extract writes the frame at one second into input as a JPEG at output.
func (t *FFmpegThumbnailer) Extract(ctx context.Context, input, output string) error {
	cmd := exec.CommandContext(ctx, t.binary,
		"-y",
		"-ss", "00:00:01",
		"-i", input,
		"-frames:v", "1",
		output,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, msg)
	}
	return nil
}
