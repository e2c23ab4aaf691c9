package report

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JobStore persists report jobs across the enqueue/worker boundary.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, id string) (Job, error)
	MarkRunning(ctx context.Context, id string, at time.Time) error
	Finish(ctx context.Context, job Job) error
}

// Repository provides PostgreSQL backed job persistence.
//
// Schema:
//
//	CREATE TABLE report_jobs (
//	    id          TEXT PRIMARY KEY,
//	    status      TEXT NOT NULL,
//	    request     JSONB NOT NULL,
//	    failures    JSONB,
//	    result      JSONB,
//	    error       TEXT NOT NULL DEFAULT '',
//	    enqueued_at TIMESTAMPTZ NOT NULL,
//	    started_at  TIMESTAMPTZ,
//	    finished_at TIMESTAMPTZ
//	);
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateJob inserts a queued job. A duplicate id returns ErrJobExists.
func (r *Repository) CreateJob(ctx context.Context, job Job) error {
	request, err := json.Marshal(job.Request)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO report_jobs (id, status, request, enqueued_at)
VALUES ($1, $2, $3, $4)`, job.ID, string(job.Status), request, job.EnqueuedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrJobExists
	}
	return err
}

// GetJob fetches a job by id.
func (r *Repository) GetJob(ctx context.Context, id string) (Job, error) {
	var (
		job      Job
		status   string
		request  []byte
		failures []byte
		result   []byte
	)
	err := r.pool.QueryRow(ctx, `SELECT id, status, request, failures, result, error, enqueued_at, started_at, finished_at
FROM report_jobs WHERE id = $1`, id).Scan(
		&job.ID, &status, &request, &failures, &result, &job.Error,
		&job.EnqueuedAt, &job.StartedAt, &job.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, err
	}
	job.Status = Status(status)
	if err := json.Unmarshal(request, &job.Request); err != nil {
		return Job{}, err
	}
	if len(failures) > 0 {
		if err := json.Unmarshal(failures, &job.Failures); err != nil {
			return Job{}, err
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &job.Result); err != nil {
			return Job{}, err
		}
	}
	return job, nil
}

// MarkRunning flips a queued job to running.
func (r *Repository) MarkRunning(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE report_jobs SET status = $2, started_at = $3
WHERE id = $1`, id, string(StatusRunning), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Finish records a job's terminal state, result and failures.
func (r *Repository) Finish(ctx context.Context, job Job) error {
	var failures, result []byte
	var err error
	if len(job.Failures) > 0 {
		if failures, err = json.Marshal(job.Failures); err != nil {
			return err
		}
	}
	if job.Result != nil {
		if result, err = json.Marshal(job.Result); err != nil {
			return err
		}
	}
	tag, err := r.pool.Exec(ctx, `UPDATE report_jobs SET status = $2, failures = $3, result = $4, error = $5, finished_at = $6
WHERE id = $1`, job.ID, string(job.Status), failures, result, job.Error, job.FinishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MemoryJobStore is an in-memory JobStore for tests and single-process
// synchronous use.
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

// NewMemoryJobStore constructs an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]Job)}
}

func (s *MemoryJobStore) CreateJob(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return ErrJobExists
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryJobStore) GetJob(_ context.Context, id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

func (s *MemoryJobStore) MarkRunning(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusRunning
	job.StartedAt = &at
	s.jobs[id] = job
	return nil
}

func (s *MemoryJobStore) Finish(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ErrJobNotFound
	}
	s.jobs[job.ID] = job
	return nil
}
