package main

import (
	"context"
	"os"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/finance-ingest/internal/app"
	"github.com/dvloznov/finance-ingest/internal/config"
	"github.com/dvloznov/finance-ingest/internal/logger"
)

func main() {
	decimal.MarshalJSONWithoutQuotes = true

	newApp := func(ctx context.Context) (*app.App, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		return app.New(ctx, cfg, logger.NewFromConfig(cfg.LogLevel, cfg.LogFormat), app.Options{})
	}

	if err := newRootCommand(newApp, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
