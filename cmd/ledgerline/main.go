package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"

	"github.com/ledgerline/ledgerline/internal/app"
	"github.com/ledgerline/ledgerline/internal/cache"
	platformcache "github.com/ledgerline/ledgerline/internal/platform/cache"
	"github.com/ledgerline/ledgerline/internal/platform/db"
	"github.com/ledgerline/ledgerline/internal/report"
	reporthttp "github.com/ledgerline/ledgerline/internal/report/http"
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

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	service := report.NewService(report.ServiceConfig{
		Store:     report.NewRepository(pool),
		Directory: report.NewStaticDirectory(tenants),
		Aggregator: report.NewAggregator(
			report.NewTenantAggregator(fetcher, store, logger),
			cfg.ReportConcurrency,
			logger,
		),
		Enqueuer: queueClient,
		Logger:   logger,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		ReportHandler: reporthttp.NewHandler(logger, service),
		JobsHandler:   jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
