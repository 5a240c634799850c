package model

import (
	"fmt"
	"strings"
	"time"
)

// DownloadTask represents the transfer of one remote resource to a local file
type DownloadTask struct {
	ID         string
	Key        string // resource key, e.g. "train_images"
	URL        string
	Status     TaskStatus
	Progress   float64   // 0.0 to 1.0
	Percent    int       // 0 to 100
	BytesDone  int64     // bytes written so far
	BytesTotal int64     // content length, -1 if unknown
	Speed      string    // human readable speed (e.g., "1.2MB/s")
	ETASec     int       // ETA in seconds, -1 if unknown
	Attempts   int       // number of transfer attempts made
	LastError  string    // last error message if any
	OutputPath string    // path to downloaded file
	StartedAt  time.Time // when download started
	FinishedAt time.Time // when download finished
}

// GetETAString returns ETA formatted as hh:mm:ss, or "—" if unknown
func (dt *DownloadTask) GetETAString() string {
	if dt.ETASec <= 0 {
		return "—"
	}

	hours := dt.ETASec / 3600
	minutes := (dt.ETASec % 3600) / 60
	seconds := dt.ETASec % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// GetDisplayName returns the resource key, file name, or URL in order of preference
func (dt *DownloadTask) GetDisplayName() string {
	if dt.Key != "" {
		return dt.Key
	}

	if dt.OutputPath != "" {
		// Support both / and \ separators
		parts := strings.FieldsFunc(dt.OutputPath, func(r rune) bool {
			return r == '/' || r == '\\'
		})
		if len(parts) > 0 {
			return parts[len(parts)-1]
		}
	}

	return dt.URL
}

// SetProgress records transferred bytes and derives percent and progress.
// A non-positive total leaves the percentage untouched.
func (dt *DownloadTask) SetProgress(done, total int64) {
	dt.BytesDone = done
	dt.BytesTotal = total
	if total <= 0 {
		return
	}
	progress := float64(done) / float64(total)
	if progress > 1.0 {
		progress = 1.0
	}
	dt.Progress = progress
	dt.Percent = int(progress * 100)
}
