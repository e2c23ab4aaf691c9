package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeReportGenerate is the task type for aged-receivables
	// report generation.
	TaskTypeReportGenerate = "report:generate"
	// TaskTypeReportScheduled is the task type emitted by the cron
	// scheduler; each firing submits a fresh default report run.
	TaskTypeReportScheduled = "report:scheduled"
)

// ReportGeneratePayload identifies the persisted job a worker should
// execute.
type ReportGeneratePayload struct {
	JobID string `json:"job_id"`
}

// NewReportGenerateTask constructs an Asynq task. The task id equals
// the job id so a job is enqueued at most once.
func NewReportGenerateTask(payload ReportGeneratePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeReportGenerate, data), nil
}

// NewReportScheduledTask constructs the recurring task the scheduler
// registers. It carries no payload: the handler builds a default
// request covering every known tenant.
func NewReportScheduledTask() *asynq.Task {
	return asynq.NewTask(TaskTypeReportScheduled, nil)
}
