package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/ledgerline/ledgerline/jobs"
)

// JobHandler processes report generation requests coming from the queue.
type JobHandler struct {
	service *Service
	logger  *slog.Logger
}

// NewJobHandler constructs a JobHandler.
func NewJobHandler(service *Service, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{service: service, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract. Malformed payloads and
// unknown jobs are not retried; transient processing errors are, with
// Process itself guarding against double execution.
func (j *JobHandler) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.service == nil {
		return fmt.Errorf("report job not configured")
	}
	var payload jobs.ReportGeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.JobID == "" {
		return asynq.SkipRetry
	}
	if err := j.service.Process(ctx, payload.JobID); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return asynq.SkipRetry
		}
		j.logger.Error("report job processing failed",
			slog.String("job", payload.JobID),
			slog.Any("error", err))
		// Process records the failure on the job itself; retrying the
		// task would see a terminal job and no-op.
		return asynq.SkipRetry
	}
	return nil
}

// HandleScheduled runs one cron-triggered report: a fresh job with the
// default request over every known tenant. Failures are recorded on the
// job itself and not retried; the scheduler fires again next period.
func (j *JobHandler) HandleScheduled(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.service == nil {
		return fmt.Errorf("report job not configured")
	}
	job, err := j.service.Enqueue(ctx, Request{Synchronous: true})
	if err != nil {
		j.logger.Error("scheduled report failed", slog.Any("error", err))
		return asynq.SkipRetry
	}
	j.logger.Info("scheduled report finished",
		slog.String("job", job.ID),
		slog.String("status", string(job.Status)))
	return nil
}
