package report

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/aging"
	"github.com/ledgerline/ledgerline/internal/source"
)

// tenantFetcher serves different fixtures per tenant id.
type tenantFetcher struct {
	byTenant map[string]*fakeFetcher
}

func (f *tenantFetcher) Fetch(ctx context.Context, tenant source.Tenant, kind source.Kind, reportDate aging.Date) ([]aging.FinancialItem, error) {
	inner, ok := f.byTenant[tenant.ID]
	if !ok {
		return nil, errors.New("unknown tenant")
	}
	return inner.Fetch(ctx, tenant, kind, reportDate)
}

func testRequest() Request {
	return Request{
		ReportDate: aging.NewDate(2024, time.July, 20),
		Periods:    4,
		PeriodType: aging.PeriodMonth,
	}
}

func newTestAggregator(fetcher ItemFetcher) *Aggregator {
	return NewAggregator(NewTenantAggregator(fetcher, nil, slog.Default()), 2, slog.Default())
}

func TestAggregatorKeepsRequestOrder(t *testing.T) {
	fetcher := &tenantFetcher{byTenant: map[string]*fakeFetcher{
		"t1": {items: map[source.Kind][]aging.FinancialItem{
			source.KindUnpaidInvoices: {unpaidInvoice("a", aging.NewDate(2024, time.July, 1), aging.NewDate(2024, time.August, 1), 100)},
		}},
		"t2": {items: map[source.Kind][]aging.FinancialItem{
			source.KindUnpaidInvoices: {unpaidInvoice("b", aging.NewDate(2024, time.July, 1), aging.NewDate(2024, time.August, 1), 200)},
		}},
		"t3": {},
	}}
	tenants := []source.Tenant{{ID: "t3"}, {ID: "t1"}, {ID: "t2"}}

	out, err := newTestAggregator(fetcher).Run(context.Background(), testRequest(), tenants)
	require.NoError(t, err)

	require.Len(t, out.Rows, 3)
	require.Equal(t, "t3", out.Rows[0].TenantID)
	require.Equal(t, "t1", out.Rows[1].TenantID)
	require.Equal(t, "t2", out.Rows[2].TenantID)
	require.Equal(t, 300.0, out.TotalRow.Total)
}

func TestAggregatorFailedTenantYieldsZeroRow(t *testing.T) {
	fail := make(map[source.Kind]error, len(source.Kinds()))
	for _, kind := range source.Kinds() {
		fail[kind] = errors.New("revoked")
	}
	fetcher := &tenantFetcher{byTenant: map[string]*fakeFetcher{
		"ok": {items: map[source.Kind][]aging.FinancialItem{
			source.KindUnpaidInvoices: {unpaidInvoice("a", aging.NewDate(2024, time.July, 1), aging.NewDate(2024, time.August, 1), 500)},
		}},
		"broken": {fail: fail},
	}}
	tenants := []source.Tenant{{ID: "ok"}, {ID: "broken"}}

	out, err := newTestAggregator(fetcher).Run(context.Background(), testRequest(), tenants)
	require.NoError(t, err)

	require.Len(t, out.Rows, 2)
	require.True(t, out.Rows[1].Failed)
	require.Zero(t, out.Rows[1].Total)
	require.NotEmpty(t, out.Failures)
	// The failed tenant contributes nothing to the totals.
	require.Equal(t, 500.0, out.TotalRow.Total)
}

func TestAggregatorPercentagesSumToHundred(t *testing.T) {
	fetcher := &tenantFetcher{byTenant: map[string]*fakeFetcher{
		"t1": {items: map[source.Kind][]aging.FinancialItem{
			source.KindUnpaidInvoices: {
				unpaidInvoice("a", aging.NewDate(2024, time.July, 1), aging.NewDate(2024, time.August, 1), 750),
				unpaidInvoice("b", aging.NewDate(2024, time.May, 1), aging.NewDate(2024, time.May, 15), 250),
			},
		}},
	}}

	out, err := newTestAggregator(fetcher).Run(context.Background(), testRequest(), []source.Tenant{{ID: "t1"}})
	require.NoError(t, err)

	require.Equal(t, 75.0, out.Percentages[aging.BucketCurrent])
	require.Equal(t, 25.0, out.Percentages["2 Months"])
	var sum float64
	for _, p := range out.Percentages {
		sum += p
	}
	require.InDelta(t, 100.0, sum, 1e-9)
}

func TestAggregatorZeroGrandTotalZeroPercentages(t *testing.T) {
	fetcher := &tenantFetcher{byTenant: map[string]*fakeFetcher{"t1": {}}}

	out, err := newTestAggregator(fetcher).Run(context.Background(), testRequest(), []source.Tenant{{ID: "t1"}})
	require.NoError(t, err)

	require.Zero(t, out.TotalRow.Total)
	for bucket, p := range out.Percentages {
		require.Zerof(t, p, "bucket %s", bucket)
	}
}
