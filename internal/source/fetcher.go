package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/ledgerline/ledgerline/internal/aging"
	"github.com/ledgerline/ledgerline/internal/cache"
)

const (
	// DefaultPageSize bounds one List call; result sets are drained to
	// the end before returning.
	DefaultPageSize = 1000

	defaultMaxRetries  = 3
	defaultRetryBase   = 500 * time.Millisecond
	defaultCallTimeout = 30 * time.Second
)

// FetcherConfig collects Fetcher dependencies. Client is required; the
// rest default sensibly.
type FetcherConfig struct {
	Client      Client
	Cache       *cache.Store
	Limiter     *rate.Limiter
	Logger      *slog.Logger
	PageSize    int
	MaxRetries  int
	RetryBase   time.Duration
	CallTimeout time.Duration
	Now         func() time.Time
}

// Fetcher retrieves raw financial records for one tenant and report
// date, consulting the cache first and shielding the rate-limited
// external source behind a shared limiter with bounded retries.
type Fetcher struct {
	client      Client
	cache       *cache.Store
	limiter     *rate.Limiter
	logger      *slog.Logger
	pageSize    int
	maxRetries  int
	retryBase   time.Duration
	callTimeout time.Duration
	now         func() time.Time
}

// NewFetcher constructs a Fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	f := &Fetcher{
		client:      cfg.Client,
		cache:       cfg.Cache,
		limiter:     cfg.Limiter,
		logger:      cfg.Logger,
		pageSize:    cfg.PageSize,
		maxRetries:  cfg.MaxRetries,
		retryBase:   cfg.RetryBase,
		callTimeout: cfg.CallTimeout,
		now:         cfg.Now,
	}
	if f.pageSize <= 0 {
		f.pageSize = DefaultPageSize
	}
	if f.maxRetries < 0 {
		f.maxRetries = 0
	} else if cfg.MaxRetries == 0 {
		f.maxRetries = defaultMaxRetries
	}
	if f.retryBase <= 0 {
		f.retryBase = defaultRetryBase
	}
	if f.callTimeout <= 0 {
		f.callTimeout = defaultCallTimeout
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if f.now == nil {
		f.now = time.Now
	}
	return f
}

// Fetch returns every record of kind relevant to reportDate for tenant.
// Paid and early-paid invoice queries are meaningless for future report
// dates and yield an empty result. A hit in the cache skips the source
// entirely; a miss drains every page and populates the cache with a TTL
// derived from report-date freshness. Partial drains are errors, never
// a short result.
func (f *Fetcher) Fetch(ctx context.Context, tenant Tenant, kind Kind, reportDate aging.Date) ([]aging.FinancialItem, error) {
	futureDated := reportDate.After(aging.DateOf(f.now()))
	if futureDated && (kind == KindPaidInvoices || kind == KindEarlyPaidInvoices) {
		return nil, nil
	}

	key := cache.ItemsKey(tenant.ID, string(kind), reportDate)
	var cached []aging.FinancialItem
	hit, err := f.cache.GetJSON(ctx, key, &cached)
	if err != nil {
		// A broken cache never blocks a report; fall through to the source.
		f.logger.Warn("cache read failed", slog.String("key", key), slog.Any("error", err))
	} else if hit {
		return cached, nil
	}

	filter := BuildFilter(kind, reportDate, futureDated, f.pageSize)
	var items []aging.FinancialItem
	cursor := ""
	for {
		page, err := f.listWithRetry(ctx, tenant, kind, filter, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch %s for tenant %s: %w", kind, tenant.ID, err)
		}
		items = append(items, page.Items...)
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	ttl := cache.TTLFor(reportDate, f.now())
	if err := f.cache.PutJSON(ctx, key, items, ttl); err != nil {
		f.logger.Warn("cache write failed", slog.String("key", key), slog.Any("error", err))
	}
	return items, nil
}

func (f *Fetcher) listWithRetry(ctx context.Context, tenant Tenant, kind Kind, filter Filter, cursor string) (Page, error) {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			if err := f.backoff(ctx, attempt); err != nil {
				return Page{}, err
			}
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return Page{}, err
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, f.callTimeout)
		page, err := f.client.List(callCtx, tenant, kind, filter, cursor)
		cancel()
		if err == nil {
			return page, nil
		}
		if !IsTransient(err) {
			return Page{}, err
		}
		lastErr = err
		f.logger.Warn("transient source failure",
			slog.String("tenant", tenant.ID),
			slog.String("kind", string(kind)),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
	}
	return Page{}, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (f *Fetcher) backoff(ctx context.Context, attempt int) error {
	delay := f.retryBase << (attempt - 1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
