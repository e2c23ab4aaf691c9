package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"

	"github.com/ledgerline/ledgerline/internal/app"
	"github.com/ledgerline/ledgerline/internal/cache"
	platformcache "github.com/ledgerline/ledgerline/internal/platform/cache"
	"github.com/ledgerline/ledgerline/internal/platform/db"
	"github.com/ledgerline/ledgerline/internal/report"
	"github.com/ledgerline/ledgerline/internal/source"
	"github.com/ledgerline/ledgerline/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := platformcache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	tenants, err := cfg.LoadTenants()
	if err != nil {
		logger.Error("load tenants", slog.Any("error", err))
		os.Exit(1)
	}

	store := cache.NewStore(redisClient)
	fetcher := source.NewFetcher(source.FetcherConfig{
		Client:      source.NewHTTPClient(cfg.SourceBaseURL, cfg.SourceToken),
		Cache:       store,
		Limiter:     rate.NewLimiter(rate.Limit(cfg.SourceRatePerSec), cfg.SourceBurst),
		Logger:      logger,
		PageSize:    cfg.SourcePageSize,
		MaxRetries:  cfg.SourceMaxRetries,
		RetryBase:   cfg.SourceRetryBase,
		CallTimeout: cfg.SourceCallTimeout,
	})

	service := report.NewService(report.ServiceConfig{
		Store:     report.NewRepository(pool),
		Directory: report.NewStaticDirectory(tenants),
		Aggregator: report.NewAggregator(
			report.NewTenantAggregator(fetcher, store, logger),
			cfg.ReportConcurrency,
			logger,
		),
		Logger: logger,
	})
	reportJob := report.NewJobHandler(service, logger)

	var cron []jobs.CronRegistration
	if cfg.ReportScheduleCron != "" {
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.ReportScheduleCron,
			Task:    jobs.NewReportScheduledTask(),
			Options: []asynq.Option{asynq.Queue(jobs.QueueDefault)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeReportGenerate, Handler: reportJob.Handle},
			{Type: jobs.TaskTypeReportScheduled, Handler: reportJob.HandleScheduled},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
