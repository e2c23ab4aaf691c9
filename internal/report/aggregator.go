package report

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ledgerline/ledgerline/internal/source"
)

// DefaultConcurrency bounds how many tenants are processed at once when
// no explicit limit is configured.
const DefaultConcurrency = 8

// Aggregator fans a report request out across tenants and folds the
// rows into one consolidated report. The semaphore is shared across
// every report run in the process, so concurrent jobs still respect one
// global tenant-concurrency budget.
type Aggregator struct {
	tenants *TenantAggregator
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

// NewAggregator constructs an Aggregator. concurrency <= 0 falls back
// to DefaultConcurrency.
func NewAggregator(tenants *TenantAggregator, concurrency int, logger *slog.Logger) *Aggregator {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		tenants: tenants,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		logger:  logger,
	}
}

// Run builds the consolidated report for the given tenants. Tenants are
// processed concurrently but rows keep request order. A tenant that
// fails entirely stays in the rows as a zero row flagged failed and is
// listed under Failures; it contributes nothing to the total row. A
// partial row stays in with its own failure records surfaced.
func (a *Aggregator) Run(ctx context.Context, req Request, tenants []source.Tenant) (Consolidated, error) {
	buckets, err := req.Buckets()
	if err != nil {
		return Consolidated{}, err
	}

	rows := make([]TenantRow, len(tenants))
	g, gctx := errgroup.WithContext(ctx)
	for i, tenant := range tenants {
		g.Go(func() error {
			if err := a.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer a.sem.Release(1)
			rows[i] = a.tenants.Run(gctx, tenant, req.ReportDate, buckets)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Consolidated{}, err
	}

	out := Consolidated{
		ReportDate:  req.ReportDate,
		Periods:     req.Periods,
		PeriodType:  req.PeriodType,
		Buckets:     buckets.Names(),
		GeneratedAt: time.Now().UTC(),
	}

	// Every requested tenant keeps its slot: a fully failed tenant shows
	// up as a zero row flagged failed, never silently disappears.
	out.Rows = rows
	total := TenantRow{TenantName: "Total", Amounts: zeroAmounts(buckets)}
	for _, row := range rows {
		out.Failures = append(out.Failures, row.Failures...)
		if row.Failed {
			a.logger.Warn("tenant row failed",
				slog.String("tenant", row.TenantID),
				slog.Int("failures", len(row.Failures)))
			continue
		}
		for bucket, amount := range row.Amounts {
			total.Amounts[bucket] += amount
		}
		total.Total += row.Total
	}
	out.TotalRow = total

	out.Percentages = make(map[string]float64, len(out.Buckets))
	for _, bucket := range out.Buckets {
		if total.Total == 0 {
			out.Percentages[bucket] = 0
			continue
		}
		out.Percentages[bucket] = total.Amounts[bucket] / total.Total * 100
	}
	return out, nil
}
