package download

import (
	"context"

	"github.com/ytget/plastic-in-river/internal/model"
)

// Downloader defines the interface for the download service.
type Downloader interface {
	// Download fetches every URL and returns local paths under the same keys
	Download(ctx context.Context, urls map[string]string) (map[string]string, error)

	SetUpdateCallback(func(*model.DownloadTask))
	GetTask(id string) (*model.DownloadTask, bool)
	GetAllTasks() []*model.DownloadTask
	RemoveTask(id string) error

	// SetMaxParallelDownloads sets the maximum number of parallel downloads
	SetMaxParallelDownloads(max int)

	// SetRetries sets how many extra attempts a failed transfer gets
	SetRetries(n int)

	// SetForce makes Download ignore cached copies
	SetForce(force bool)
}

// Logger is the subset of *log.Logger the service writes to
type Logger interface {
	Printf(format string, v ...any)
}
