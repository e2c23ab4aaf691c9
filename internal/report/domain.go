package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ledgerline/ledgerline/internal/aging"
	"github.com/ledgerline/ledgerline/internal/source"
)

// Status captures the lifecycle of a report job. PartiallyFailed is
// terminal but retrievable: its result holds every row that succeeded.
type Status string

const (
	StatusQueued          Status = "QUEUED"
	StatusRunning         Status = "RUNNING"
	StatusSucceeded       Status = "SUCCEEDED"
	StatusPartiallyFailed Status = "PARTIALLY_FAILED"
	StatusFailed          Status = "FAILED"
)

// Terminal reports whether the job will never change again.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusPartiallyFailed, StatusFailed:
		return true
	}
	return false
}

// FailureCategory classifies why a tenant dropped out of a report.
type FailureCategory string

const (
	// FailureTransient covers timeouts, rate limits and 5xx-equivalent
	// source errors that survived bounded retries.
	FailureTransient FailureCategory = "transient"
	// FailureTenant covers permanent per-tenant fetch errors.
	FailureTenant FailureCategory = "tenant"
	// FailureClassification covers classifier defects, including a row
	// total that disagrees with its contributions.
	FailureClassification FailureCategory = "classification"
)

// TenantFailure names one tenant that could not be fully reported on.
type TenantFailure struct {
	TenantID   string          `json:"tenant_id"`
	TenantName string          `json:"tenant_name,omitempty"`
	Category   FailureCategory `json:"category"`
	Message    string          `json:"message"`
}

// Request describes one aged-receivables report run. An empty tenant
// set means every known tenant.
type Request struct {
	TenantIDs   []string         `json:"tenant_ids,omitempty"`
	ReportDate  aging.Date       `json:"report_date"`
	Periods     int              `json:"periods" validate:"min=1,max=12"`
	PeriodType  aging.PeriodType `json:"period_type" validate:"oneof=Day Week Month"`
	Synchronous bool             `json:"synchronous,omitempty"`
}

var requestValidator = validator.New()

// ErrInvalidRequest marks a malformed report request; it fails the job
// before any tenant work starts.
var ErrInvalidRequest = errors.New("report: invalid request")

// Normalize fills the conventional defaults: four monthly periods as of
// today is the report everyone asks for.
func (r *Request) Normalize(now time.Time) {
	if r.Periods == 0 {
		r.Periods = 4
	}
	if r.PeriodType == "" {
		r.PeriodType = aging.PeriodMonth
	}
	if r.ReportDate.IsZero() {
		r.ReportDate = aging.DateOf(now)
	}
}

// Validate rejects malformed requests.
func (r Request) Validate() error {
	if err := requestValidator.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.ReportDate.IsZero() {
		return fmt.Errorf("%w: report date required", ErrInvalidRequest)
	}
	return nil
}

// Buckets builds the aging configuration the request asks for.
func (r Request) Buckets() (aging.BucketSet, error) {
	return aging.NewBucketSet(r.Periods, r.PeriodType)
}

// TenantRow is one tenant's share of the consolidated report: an amount
// per bucket, a checked total and the audit trail of contributions.
type TenantRow struct {
	TenantID   string             `json:"tenant_id"`
	TenantName string             `json:"tenant_name,omitempty"`
	Currency   string             `json:"currency,omitempty"`
	Amounts    map[string]float64 `json:"amounts"`
	Total      float64            `json:"total"`
	// Comments is the human-readable audit trail, contributions grouped
	// by bucket.
	Comments string `json:"comments,omitempty"`
	// Partial marks a row missing one or more record kinds.
	Partial bool `json:"partial,omitempty"`
	// Failed marks a row that contributed nothing.
	Failed   bool            `json:"failed,omitempty"`
	Failures []TenantFailure `json:"failures,omitempty"`
}

// Consolidated is the cross-tenant report: every requested tenant in
// request order, a synthetic total row and per-bucket percentages of
// the grand total.
type Consolidated struct {
	ReportDate  aging.Date         `json:"report_date"`
	Periods     int                `json:"periods"`
	PeriodType  aging.PeriodType   `json:"period_type"`
	Buckets     []string           `json:"buckets"`
	Rows        []TenantRow        `json:"rows"`
	TotalRow    TenantRow          `json:"total_row"`
	Percentages map[string]float64 `json:"percentages"`
	Failures    []TenantFailure    `json:"failures,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// Job is one submitted report run and its outcome.
type Job struct {
	ID         string          `json:"id"`
	Request    Request         `json:"request"`
	Status     Status          `json:"status"`
	Failures   []TenantFailure `json:"failures,omitempty"`
	Result     *Consolidated   `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

var (
	// ErrJobNotFound indicates an unknown job id.
	ErrJobNotFound = errors.New("report: job not found")
	// ErrJobExists indicates a duplicate job id on creation.
	ErrJobExists = errors.New("report: job already exists")
	// ErrResultNotReady indicates the job has not reached a terminal
	// state with a result yet.
	ErrResultNotReady = errors.New("report: result not ready")
)

// TenantDirectory supplies the externally managed tenant list. Resolve
// with no ids returns every known tenant; unknown ids come back as
// bare tenants so their failure is reported rather than dropped.
type TenantDirectory interface {
	Resolve(ctx context.Context, ids []string) ([]source.Tenant, error)
}

// Sink accepts a finished consolidated report for rendering or
// delivery. Rendering itself is out of scope here.
type Sink interface {
	Deliver(ctx context.Context, report Consolidated) error
}
