package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/finance-ingest/internal/app"
	"github.com/dvloznov/finance-ingest/internal/config"
	"github.com/dvloznov/finance-ingest/internal/jobs"
	"github.com/dvloznov/finance-ingest/internal/jobs/inmemory"
	"github.com/dvloznov/finance-ingest/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	if a.Syncer == nil {
		log.Fatal().Msg("Bank link is not configured; set BANKLINK_BASE_URL and BANKLINK_ACCESS_TOKEN")
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(10, jobStore, inmemory.WithWorkers(1), inmemory.WithLogger(log))

	handler := func(ctx context.Context, job *jobs.Job) (any, error) {
		log.Info().Str("job_id", job.JobID).Str("trigger", job.Trigger).Msg("Processing bank sync job")
		res, err := a.HandleJob(ctx, job)
		if err != nil {
			log.Error().Err(err).Str("job_id", job.JobID).Msg("Bank sync failed")
			return nil, err
		}
		log.Info().Str("job_id", job.JobID).Interface("result", res).Msg("Bank sync completed")
		return res, nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	go schedule(ctx, jobQueue, cfg.BankLink.Interval, func(err error) {
		log.Warn().Err(err).Msg("Failed to enqueue scheduled bank sync")
	})

	log.Info().Dur("interval", cfg.BankLink.Interval).Msg("Worker service started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

// schedule publishes one bank sync job immediately and then every interval.
func schedule(ctx context.Context, pub jobs.Publisher, interval time.Duration, onErr func(error)) {
	publish := func() {
		if err := pub.Publish(ctx, jobs.NewBankSyncJob(jobs.TriggerSchedule)); err != nil && ctx.Err() == nil {
			onErr(err)
		}
	}

	publish()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish()
		}
	}
}
