package storage

import (
	"path"
	"strings"

	"vidgen-backend/internal/models"
)

const (
	videoExt      = ".mp4"
	thumbExt      = ".jpg"
	processedMark = "_processed"

	ContentTypeMP4  = "video/mp4"
	ContentTypeJPEG = "image/jpeg"
)

func UserPrefix(userID string) string {
	return userID + "/"
}

// VideoKey is {user}/{task}.mp4 or {user}/{task}_processed.mp4.
func VideoKey(userID, taskID string, kind models.VideoKind) string {
	if kind == models.KindProcessed {
		return userID + "/" + taskID + processedMark + videoExt
	}
	return userID + "/" + taskID + videoExt
}

func ThumbnailKey(userID, taskID string) string {
	return userID + "/" + taskID + thumbExt
}

// GroupVideos folds a key listing into one entry per task, keeping the order
// in which each task first appears. Non-video keys are skipped.
func GroupVideos(keys []string) []models.VideoEntry {
	entries := make([]models.VideoEntry, 0, len(keys))
	index := make(map[string]int)

	for _, key := range keys {
		name := path.Base(key)
		if !strings.HasSuffix(name, videoExt) {
			continue
		}
		name = strings.TrimSuffix(name, videoExt)

		processed := strings.HasSuffix(name, processedMark)
		base := strings.TrimSuffix(name, processedMark)

		i, ok := index[base]
		if !ok {
			i = len(entries)
			index[base] = i
			entries = append(entries, models.VideoEntry{TaskID: base})
		}
		if processed {
			entries[i].HasProcessed = true
		} else {
			entries[i].HasOriginal = true
		}
	}

	return entries
}
