package model

// TaskStatus represents the status of a download task
type TaskStatus string

const (
	// TaskStatusPending means the task is queued but not started
	TaskStatusPending TaskStatus = "Pending"

	// TaskStatusStarting means the task is waiting for a download slot
	TaskStatusStarting TaskStatus = "Starting"

	// TaskStatusDownloading means bytes are being transferred
	TaskStatusDownloading TaskStatus = "Downloading"

	// TaskStatusCached means a valid local copy was found and reused
	TaskStatusCached TaskStatus = "Cached"

	// TaskStatusStopped means the task was cancelled through its context
	TaskStatusStopped TaskStatus = "Stopped"

	// TaskStatusCompleted means the task finished successfully
	TaskStatusCompleted TaskStatus = "Completed"

	// TaskStatusError means the task failed with an error
	TaskStatusError TaskStatus = "Error"
)

// String returns the string representation of TaskStatus
func (ts TaskStatus) String() string {
	return string(ts)
}

// IsActive returns true if the task is in an active state
func (ts TaskStatus) IsActive() bool {
	return ts == TaskStatusStarting || ts == TaskStatusDownloading
}

// IsFinished returns true if the task is in a finished state (completed, cached, stopped, or error)
func (ts TaskStatus) IsFinished() bool {
	return ts == TaskStatusCompleted || ts == TaskStatusCached || ts == TaskStatusStopped || ts == TaskStatusError
}

// IsSuccess returns true if the task produced a usable local file
func (ts TaskStatus) IsSuccess() bool {
	return ts == TaskStatusCompleted || ts == TaskStatusCached
}
