package model

import (
	"time"
)

// BatchStatus represents the aggregate state of a download batch
type BatchStatus string

const (
	BatchStatusPending     BatchStatus = "pending"
	BatchStatusDownloading BatchStatus = "downloading"
	BatchStatusCompleted   BatchStatus = "completed"
	BatchStatusError       BatchStatus = "error"
)

// DownloadBatch groups the tasks fetched by a single Download call, keyed by
// resource key ("train_images", "test_annotations", ...).
type DownloadBatch struct {
	ID        string          `json:"id"`
	Tasks     []*DownloadTask `json:"tasks"`
	Status    BatchStatus     `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewDownloadBatch creates a new empty batch
func NewDownloadBatch(id string) *DownloadBatch {
	now := time.Now()
	return &DownloadBatch{
		ID:        id,
		Status:    BatchStatusPending,
		Tasks:     make([]*DownloadTask, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddTask adds a task to the batch
func (b *DownloadBatch) AddTask(task *DownloadTask) {
	b.Tasks = append(b.Tasks, task)
	b.UpdatedAt = time.Now()
}

// Task returns the task registered under key
func (b *DownloadBatch) Task(key string) (*DownloadTask, bool) {
	for _, task := range b.Tasks {
		if task.Key == key {
			return task, true
		}
	}
	return nil, false
}

// UpdateStatus updates the batch status
func (b *DownloadBatch) UpdateStatus(status BatchStatus) {
	b.Status = status
	b.UpdatedAt = time.Now()
}

// GetPendingTasks returns all tasks that have not finished yet
func (b *DownloadBatch) GetPendingTasks() []*DownloadTask {
	var pending []*DownloadTask
	for _, task := range b.Tasks {
		if !task.Status.IsFinished() {
			pending = append(pending, task)
		}
	}
	return pending
}

// GetCompletedTasks returns all tasks that produced a local file
func (b *DownloadBatch) GetCompletedTasks() []*DownloadTask {
	var completed []*DownloadTask
	for _, task := range b.Tasks {
		if task.Status.IsSuccess() {
			completed = append(completed, task)
		}
	}
	return completed
}

// GetDownloadProgress returns overall progress as percentage of finished tasks
func (b *DownloadBatch) GetDownloadProgress() float64 {
	if len(b.Tasks) == 0 {
		return 0
	}

	completed := len(b.GetCompletedTasks())
	return float64(completed) / float64(len(b.Tasks)) * 100
}

// HasErrors checks if any task failed
func (b *DownloadBatch) HasErrors() bool {
	for _, task := range b.Tasks {
		if task.Status == TaskStatusError {
			return true
		}
	}
	return false
}

// Paths returns the local output path of every successful task by key
func (b *DownloadBatch) Paths() map[string]string {
	paths := make(map[string]string, len(b.Tasks))
	for _, task := range b.Tasks {
		if task.Status.IsSuccess() {
			paths[task.Key] = task.OutputPath
		}
	}
	return paths
}
