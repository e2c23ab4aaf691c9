package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/source"
)

// Enqueuer hands a persisted job to the background queue.
type Enqueuer interface {
	EnqueueReportGenerate(ctx context.Context, jobID string) error
}

// Service owns the report job lifecycle: submission, status, result
// retrieval and the worker-side processing.
type Service struct {
	store      JobStore
	directory  TenantDirectory
	aggregator *Aggregator
	enqueuer   Enqueuer
	sink       Sink
	logger     *slog.Logger
}

// ServiceConfig wires the service dependencies. Enqueuer may be nil
// when every request runs synchronously; Sink is optional.
type ServiceConfig struct {
	Store      JobStore
	Directory  TenantDirectory
	Aggregator *Aggregator
	Enqueuer   Enqueuer
	Sink       Sink
	Logger     *slog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      cfg.Store,
		directory:  cfg.Directory,
		aggregator: cfg.Aggregator,
		enqueuer:   cfg.Enqueuer,
		sink:       cfg.Sink,
		logger:     logger,
	}
}

// Enqueue validates and persists a report request. Asynchronous
// requests come back queued with an id to poll; synchronous requests
// run inline and come back terminal.
func (s *Service) Enqueue(ctx context.Context, req Request) (Job, error) {
	req.Normalize(timeNow())
	if err := req.Validate(); err != nil {
		return Job{}, err
	}
	job := Job{
		ID:         uuid.NewString(),
		Request:    req,
		Status:     StatusQueued,
		EnqueuedAt: timeNow().UTC(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return Job{}, err
	}
	if req.Synchronous || s.enqueuer == nil {
		if err := s.Process(ctx, job.ID); err != nil {
			return Job{}, err
		}
		return s.store.GetJob(ctx, job.ID)
	}
	if err := s.enqueuer.EnqueueReportGenerate(ctx, job.ID); err != nil {
		now := timeNow().UTC()
		job.Status = StatusFailed
		job.Error = fmt.Sprintf("enqueue: %v", err)
		job.FinishedAt = &now
		if ferr := s.store.Finish(ctx, job); ferr != nil {
			s.logger.Error("record enqueue failure", slog.String("job", job.ID), slog.Any("error", ferr))
		}
		return Job{}, err
	}
	return job, nil
}

// Status returns the job without its result payload.
func (s *Service) Status(ctx context.Context, id string) (Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return Job{}, err
	}
	job.Result = nil
	return job, nil
}

// Result returns the consolidated report of a finished job. A job that
// is still queued or running returns ErrResultNotReady; a failed job
// returns its recorded error.
func (s *Service) Result(ctx context.Context, id string) (Consolidated, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return Consolidated{}, err
	}
	if !job.Status.Terminal() {
		return Consolidated{}, ErrResultNotReady
	}
	if job.Status == StatusFailed || job.Result == nil {
		return Consolidated{}, fmt.Errorf("report: job %s failed: %s", id, job.Error)
	}
	return *job.Result, nil
}

// Process executes one persisted job to completion. It is idempotent:
// a job already terminal is left untouched, so queue redeliveries are
// harmless.
func (s *Service) Process(ctx context.Context, id string) error {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	started := timeNow().UTC()
	if err := s.store.MarkRunning(ctx, id, started); err != nil {
		return err
	}
	job.Status = StatusRunning
	job.StartedAt = &started

	tenants, err := s.directory.Resolve(ctx, job.Request.TenantIDs)
	if err != nil {
		return s.fail(ctx, job, fmt.Errorf("resolve tenants: %w", err))
	}
	if len(tenants) == 0 {
		return s.fail(ctx, job, fmt.Errorf("no tenants to report on"))
	}

	result, err := s.aggregator.Run(ctx, job.Request, tenants)
	if err != nil {
		return s.fail(ctx, job, err)
	}

	job.Result = &result
	job.Failures = result.Failures
	usable := 0
	for _, row := range result.Rows {
		if !row.Failed {
			usable++
		}
	}
	switch {
	case usable == 0:
		job.Status = StatusFailed
		job.Error = "every tenant failed"
		job.Result = nil
	case len(result.Failures) > 0:
		job.Status = StatusPartiallyFailed
	default:
		job.Status = StatusSucceeded
	}

	if s.sink != nil && job.Status != StatusFailed {
		if err := s.sink.Deliver(ctx, result); err != nil {
			s.logger.Warn("report delivery failed", slog.String("job", job.ID), slog.Any("error", err))
		}
	}

	finished := timeNow().UTC()
	job.FinishedAt = &finished
	if err := s.store.Finish(ctx, job); err != nil {
		return err
	}
	s.logger.Info("report job finished",
		slog.String("job", job.ID),
		slog.String("status", string(job.Status)),
		slog.Int("rows", len(result.Rows)),
		slog.Int("failures", len(result.Failures)))
	return nil
}

func (s *Service) fail(ctx context.Context, job Job, cause error) error {
	now := timeNow().UTC()
	job.Status = StatusFailed
	job.Error = cause.Error()
	job.FinishedAt = &now
	if err := s.store.Finish(ctx, job); err != nil {
		s.logger.Error("record job failure", slog.String("job", job.ID), slog.Any("error", err))
	}
	s.logger.Error("report job failed", slog.String("job", job.ID), slog.Any("error", cause))
	return cause
}

// StaticDirectory is a TenantDirectory backed by a fixed tenant list,
// for configuration-supplied tenants.
type StaticDirectory struct {
	tenants map[string]source.Tenant
	order   []string
}

// NewStaticDirectory builds a directory from a fixed list.
func NewStaticDirectory(tenants []source.Tenant) *StaticDirectory {
	d := &StaticDirectory{tenants: make(map[string]source.Tenant, len(tenants))}
	for _, t := range tenants {
		if _, ok := d.tenants[t.ID]; ok {
			continue
		}
		d.tenants[t.ID] = t
		d.order = append(d.order, t.ID)
	}
	return d
}

// Resolve returns the requested tenants in request order, or every
// known tenant when ids is empty. Unknown ids resolve to bare tenants
// so the downstream failure names them instead of silently dropping
// them.
func (d *StaticDirectory) Resolve(_ context.Context, ids []string) ([]source.Tenant, error) {
	if len(ids) == 0 {
		out := make([]source.Tenant, 0, len(d.order))
		for _, id := range d.order {
			out = append(out, d.tenants[id])
		}
		return out, nil
	}
	out := make([]source.Tenant, 0, len(ids))
	for _, id := range ids {
		if t, ok := d.tenants[id]; ok {
			out = append(out, t)
			continue
		}
		out = append(out, source.Tenant{ID: id})
	}
	return out, nil
}
