package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ledgerline/ledgerline/internal/aging"
	"github.com/ledgerline/ledgerline/internal/cache"
	"github.com/ledgerline/ledgerline/internal/source"
)

// totalTolerance absorbs float summation noise when checking the row
// total against its contributions.
const totalTolerance = 1e-6

// timeNow is swapped in tests.
var timeNow = time.Now

// ItemFetcher is the record-retrieval contract the tenant aggregator
// drives, satisfied by source.Fetcher.
type ItemFetcher interface {
	Fetch(ctx context.Context, tenant source.Tenant, kind source.Kind, reportDate aging.Date) ([]aging.FinancialItem, error)
}

// TenantAggregator builds one tenant's report row: it fetches every
// record kind, classifies each item and folds the signed contributions
// into buckets with an audit trail.
type TenantAggregator struct {
	fetcher ItemFetcher
	cache   *cache.Store
	logger  *slog.Logger
}

// NewTenantAggregator constructs a TenantAggregator. cache may be nil.
func NewTenantAggregator(fetcher ItemFetcher, store *cache.Store, logger *slog.Logger) *TenantAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantAggregator{fetcher: fetcher, cache: store, logger: logger}
}

// Run produces the tenant's row as of reportDate. A failure fetching
// one record kind does not abort the others: the row comes back partial
// with the failure recorded. Only a row with no usable contributions at
// all is marked failed.
func (a *TenantAggregator) Run(ctx context.Context, tenant source.Tenant, reportDate aging.Date, buckets aging.BucketSet) TenantRow {
	reportKey := cache.ReportKey(tenant.ID, reportDate, buckets.Periods(), buckets.PeriodType())
	var cached TenantRow
	if hit, err := a.cache.GetJSON(ctx, reportKey, &cached); err == nil && hit {
		return cached
	}

	row := TenantRow{
		TenantID:   tenant.ID,
		TenantName: tenant.Name,
		Currency:   tenant.Currency,
		Amounts:    zeroAmounts(buckets),
	}

	var contribs []aging.Contribution
	fetchedAny := false
	for _, kind := range source.Kinds() {
		items, err := a.fetcher.Fetch(ctx, tenant, kind, reportDate)
		if err != nil {
			category := FailureTenant
			if source.IsTransient(err) {
				category = FailureTransient
			}
			row.Partial = true
			row.Failures = append(row.Failures, TenantFailure{
				TenantID:   tenant.ID,
				TenantName: tenant.Name,
				Category:   category,
				Message:    fmt.Sprintf("fetch %s: %v", kind, err),
			})
			a.logger.Warn("tenant fetch failed",
				slog.String("tenant", tenant.ID),
				slog.String("kind", string(kind)),
				slog.Any("error", err))
			continue
		}
		fetchedAny = true
		for _, item := range items {
			itemContribs, err := aging.Classify(item, reportDate, buckets)
			if err != nil {
				if errors.Is(err, aging.ErrNoScenario) {
					// A defect in the decision table's coverage: log the full
					// item, mark the row partial, keep going.
					a.logger.Error("unclassifiable item",
						slog.String("tenant", tenant.ID),
						slog.String("item", item.ID),
						slog.String("kind", string(item.Kind)),
						slog.String("issue", item.IssueDate.String()),
						slog.String("due", item.DueDate.String()),
						slog.Any("error", err))
					row.Partial = true
					row.Failures = append(row.Failures, TenantFailure{
						TenantID:   tenant.ID,
						TenantName: tenant.Name,
						Category:   FailureClassification,
						Message:    err.Error(),
					})
					continue
				}
				row.Failures = append(row.Failures, TenantFailure{
					TenantID: tenant.ID, TenantName: tenant.Name,
					Category: FailureClassification, Message: err.Error(),
				})
				row.Partial = true
				continue
			}
			contribs = append(contribs, itemContribs...)
		}
	}

	if !fetchedAny {
		row.Failed = true
		return row
	}

	var contribTotal float64
	for _, c := range contribs {
		row.Amounts[c.Bucket] += c.Amount
		contribTotal += c.Amount
	}
	for _, amount := range row.Amounts {
		row.Total += amount
	}
	row.Comments = systemComments(contribs, buckets.Names())

	// The total is a checked invariant, not a convenience field.
	if math.Abs(row.Total-contribTotal) > totalTolerance {
		a.logger.Error("row total diverges from contributions",
			slog.String("tenant", tenant.ID),
			slog.Float64("total", row.Total),
			slog.Float64("contributions", contribTotal),
			slog.String("comments", row.Comments))
		return TenantRow{
			TenantID:   tenant.ID,
			TenantName: tenant.Name,
			Currency:   tenant.Currency,
			Amounts:    zeroAmounts(buckets),
			Failed:     true,
			Failures: []TenantFailure{{
				TenantID:   tenant.ID,
				TenantName: tenant.Name,
				Category:   FailureClassification,
				Message:    fmt.Sprintf("total %.2f does not match contributions %.2f", row.Total, contribTotal),
			}},
		}
	}

	if !row.Partial && !row.Failed {
		ttl := cache.TTLFor(reportDate, timeNow())
		if err := a.cache.PutJSON(ctx, reportKey, row, ttl); err != nil {
			a.logger.Warn("report row cache write failed", slog.String("key", reportKey), slog.Any("error", err))
		}
	}
	return row
}

func zeroAmounts(buckets aging.BucketSet) map[string]float64 {
	amounts := make(map[string]float64, len(buckets.Names()))
	for _, name := range buckets.Names() {
		amounts[name] = 0
	}
	return amounts
}
