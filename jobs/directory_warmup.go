package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/beacon-portal/beacon-portal/internal/directory"
)

// DirectoryWarmupJob pre-populates the directory snapshot cache so the
// first admin page view after expiry does not pay the Graph round trip.
type DirectoryWarmupJob struct {
	Directory *directory.Service
	Logger    *slog.Logger
}

// NewDirectoryWarmupJob wires dependencies for the warmup handler.
func NewDirectoryWarmupJob(dir *directory.Service, logger *slog.Logger) *DirectoryWarmupJob {
	return &DirectoryWarmupJob{Directory: dir, Logger: logger}
}

// Handle processes directory warmup tasks. A missing Graph configuration is
// not an error; the job simply has nothing to warm.
func (j *DirectoryWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Directory == nil {
		return errors.New("directory warmup: handler not configured")
	}
	var payload DirectoryWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = directory.DefaultPageSize
	}

	logger := j.logger().With(slog.Int("limit", payload.Limit))

	if !j.Directory.Configured() {
		logger.Info("graph not configured, skipping warmup")
		return nil
	}

	if err := j.Directory.Refresh(ctx, payload.Limit); err != nil {
		logger.Warn("directory warmup", slog.Any("error", err))
		return err
	}
	logger.Info("directory snapshot warmed")
	return nil
}

func (j *DirectoryWarmupJob) logger() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
