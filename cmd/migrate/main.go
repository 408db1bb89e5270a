package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dvloznov/finance-ingest/internal/app"
	"github.com/dvloznov/finance-ingest/internal/config"
	bqbackend "github.com/dvloznov/finance-ingest/internal/infra/bigquery"
	"github.com/dvloznov/finance-ingest/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var (
		backend   = flag.String("backend", cfg.Store.Backend, "Store backend to migrate (or set STORE_BACKEND env)")
		projectID = flag.String("project", cfg.Store.BigQueryProject, "GCP project ID for the bigquery backend")
		datasetID = flag.String("dataset", cfg.Store.BigQueryDataset, "BigQuery dataset ID")
		appliedBy = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		list      = flag.Bool("list", false, "Print the embedded BigQuery migrations and exit")
	)
	flag.Parse()

	log := logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat)

	if *list {
		migrations, err := bqbackend.Migrations(*projectID, *datasetID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read migrations")
		}
		for _, m := range migrations {
			fmt.Printf("%04d_%s  %s\n", m.Version, m.Name, m.Checksum[:12])
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if *backend != config.BackendBigQuery {
		// The SQL backends apply their schema when they connect.
		cfg.Store.Backend = *backend
		if err := cfg.Validate(); err != nil {
			log.Fatal().Err(err).Msg("Invalid configuration")
		}
		b, err := app.OpenBackend(ctx, cfg.Store)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open backend")
		}
		defer b.Close()
		log.Info().Str("backend", *backend).Msg("Schema is up to date")
		return
	}

	if *projectID == "" {
		log.Fatal().Msg("Error: -project flag is required. Please specify your GCP project ID.")
	}

	b, err := bqbackend.NewBackend(ctx, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer b.Close()

	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	n, err := b.Migrate(ctx, *appliedBy, log)
	if err != nil {
		log.Fatal().Err(err).Int("applied", n).Msg("Migration failed")
	}
	if n == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
		return
	}
	log.Info().Int("applied", n).Msg("Successfully applied migrations")
}
