package report

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/aging"
	"github.com/ledgerline/ledgerline/internal/source"
)

type fakeEnqueuer struct {
	ids []string
	err error
}

func (f *fakeEnqueuer) EnqueueReportGenerate(_ context.Context, jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, jobID)
	return nil
}

type recordingSink struct {
	delivered []Consolidated
}

func (s *recordingSink) Deliver(_ context.Context, report Consolidated) error {
	s.delivered = append(s.delivered, report)
	return nil
}

func lifecycleFetcher() *tenantFetcher {
	timeouts := make(map[source.Kind]error, len(source.Kinds()))
	for _, kind := range source.Kinds() {
		timeouts[kind] = source.Transient(context.DeadlineExceeded)
	}
	return &tenantFetcher{byTenant: map[string]*fakeFetcher{
		"t1": {items: map[source.Kind][]aging.FinancialItem{
			source.KindUnpaidInvoices: {unpaidInvoice("a", aging.NewDate(2024, time.July, 1), aging.NewDate(2024, time.August, 1), 100)},
		}},
		"t2": {items: map[source.Kind][]aging.FinancialItem{
			source.KindUnpaidInvoices: {unpaidInvoice("b", aging.NewDate(2024, time.May, 1), aging.NewDate(2024, time.May, 15), 400)},
		}},
		"slow": {fail: timeouts},
	}}
}

func newTestService(t *testing.T, fetcher ItemFetcher, tenants []source.Tenant, enqueuer Enqueuer, sink Sink) (*Service, *MemoryJobStore) {
	t.Helper()
	store := NewMemoryJobStore()
	service := NewService(ServiceConfig{
		Store:      store,
		Directory:  NewStaticDirectory(tenants),
		Aggregator: newTestAggregator(fetcher),
		Enqueuer:   enqueuer,
		Sink:       sink,
		Logger:     slog.Default(),
	})
	return service, store
}

func TestEnqueueRejectsInvalidRequest(t *testing.T) {
	service, _ := newTestService(t, &tenantFetcher{}, nil, nil, nil)

	_, err := service.Enqueue(context.Background(), Request{Periods: 20, PeriodType: aging.PeriodMonth})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = service.Enqueue(context.Background(), Request{Periods: 4, PeriodType: "Fortnight"})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestEnqueueQueuesJob(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	service, store := newTestService(t, lifecycleFetcher(), []source.Tenant{{ID: "t1"}}, enqueuer, nil)

	job, err := service.Enqueue(context.Background(), Request{ReportDate: aging.NewDate(2024, time.July, 20)})
	require.NoError(t, err)
	require.Equal(t, StatusQueued, job.Status)
	require.Equal(t, []string{job.ID}, enqueuer.ids)

	// Defaults are filled in before the job is persisted.
	stored, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, 4, stored.Request.Periods)
	require.Equal(t, aging.PeriodMonth, stored.Request.PeriodType)

	_, err = service.Result(context.Background(), job.ID)
	require.ErrorIs(t, err, ErrResultNotReady)
}

func TestJobLifecyclePartiallyFailed(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	tenants := []source.Tenant{{ID: "t1"}, {ID: "t2"}, {ID: "slow"}}
	service, _ := newTestService(t, lifecycleFetcher(), tenants, &fakeEnqueuer{}, sink)

	job, err := service.Enqueue(ctx, Request{ReportDate: aging.NewDate(2024, time.July, 20)})
	require.NoError(t, err)
	require.NoError(t, service.Process(ctx, job.ID))

	status, err := service.Status(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyFailed, status.Status)
	require.Nil(t, status.Result)
	require.NotNil(t, status.FinishedAt)

	result, err := service.Result(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, result.Rows, 3)
	require.Equal(t, "slow", result.Rows[2].TenantID)
	require.True(t, result.Rows[2].Failed)
	require.Equal(t, FailureTransient, result.Failures[0].Category)
	require.Equal(t, 500.0, result.TotalRow.Total)
	require.Len(t, sink.delivered, 1)
}

func TestJobLifecycleSucceeded(t *testing.T) {
	ctx := context.Background()
	tenants := []source.Tenant{{ID: "t1"}, {ID: "t2"}}
	service, _ := newTestService(t, lifecycleFetcher(), tenants, &fakeEnqueuer{}, nil)

	job, err := service.Enqueue(ctx, Request{ReportDate: aging.NewDate(2024, time.July, 20), Synchronous: true})
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, job.Status)
	require.NotNil(t, job.Result)
	require.Empty(t, job.Failures)
}

func TestJobLifecycleFailedWhenEveryTenantFails(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t, lifecycleFetcher(), []source.Tenant{{ID: "slow"}}, &fakeEnqueuer{}, nil)

	job, err := service.Enqueue(ctx, Request{ReportDate: aging.NewDate(2024, time.July, 20), Synchronous: true})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, job.Status)
	require.Nil(t, job.Result)

	_, err = service.Result(ctx, job.ID)
	require.Error(t, err)
}

func TestProcessIsIdempotent(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(t, lifecycleFetcher(), []source.Tenant{{ID: "t1"}}, &fakeEnqueuer{}, nil)

	job, err := service.Enqueue(ctx, Request{ReportDate: aging.NewDate(2024, time.July, 20)})
	require.NoError(t, err)
	require.NoError(t, service.Process(ctx, job.ID))

	first, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)

	// A redelivered task sees a terminal job and leaves it alone.
	require.NoError(t, service.Process(ctx, job.ID))
	second, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, first.FinishedAt, second.FinishedAt)
}

func TestStatusUnknownJob(t *testing.T) {
	service, _ := newTestService(t, &tenantFetcher{}, nil, nil, nil)

	_, err := service.Status(context.Background(), "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}
