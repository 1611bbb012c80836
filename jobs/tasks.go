package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDirectoryWarmup re-primes the directory snapshot cache.
	TaskDirectoryWarmup = "directory:warmup"
)

// DirectoryWarmupPayload selects which snapshot to warm.
type DirectoryWarmupPayload struct {
	Limit int `json:"limit"`
}

// NewDirectoryWarmupTask constructs an Asynq task.
func NewDirectoryWarmupTask(payload DirectoryWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDirectoryWarmup, data), nil
}
