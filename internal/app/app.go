// Package app wires configuration into the store, services and job handlers
// shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-ingest/internal/banklink"
	"github.com/dvloznov/finance-ingest/internal/categorize"
	"github.com/dvloznov/finance-ingest/internal/config"
	"github.com/dvloznov/finance-ingest/internal/csvimport"
	"github.com/dvloznov/finance-ingest/internal/gcsuploader"
	bqbackend "github.com/dvloznov/finance-ingest/internal/infra/bigquery"
	pgbackend "github.com/dvloznov/finance-ingest/internal/infra/postgres"
	"github.com/dvloznov/finance-ingest/internal/infra/sqlstore"
	"github.com/dvloznov/finance-ingest/internal/ingest"
	"github.com/dvloznov/finance-ingest/internal/jobs"
	"github.com/dvloznov/finance-ingest/internal/notionsync"
	"github.com/dvloznov/finance-ingest/internal/receipt"
	"github.com/dvloznov/finance-ingest/internal/store"
)

// ErrBankLinkDisabled is returned for bank sync requests without credentials.
var ErrBankLinkDisabled = errors.New("bank link is not configured")

// ErrNotionDisabled is returned for exports without a Notion token.
var ErrNotionDisabled = errors.New("notion export is not configured")

// App holds the wired services.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Store    *store.Store
	Engine   *categorize.Engine
	Registry *csvimport.Registry
	Service  *ingest.Service
	// Syncer is nil when the bank link is not configured.
	Syncer *banklink.Syncer

	analyzer receipt.Analyzer
	closers  []func() error
}

// Options override collaborators, mainly in tests.
type Options struct {
	Backend  store.Backend
	Analyzer receipt.Analyzer
	Blobs    gcsuploader.BlobStore
	BankLink banklink.Client
}

// New builds an App from cfg.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: log, Registry: csvimport.DefaultRegistry()}

	engine, err := loadEngine(cfg.RulesPath)
	if err != nil {
		return nil, err
	}
	a.Engine = engine

	backend := opts.Backend
	if backend == nil {
		if backend, err = OpenBackend(ctx, cfg.Store); err != nil {
			return nil, err
		}
	}
	a.Store = store.Open(ctx, backend, store.WithTimeout(cfg.Store.Timeout), store.WithCooldown(cfg.Store.Cooldown), store.WithLogger(log))
	a.closers = append(a.closers, a.Store.Close)

	blobs := opts.Blobs
	if blobs == nil {
		blobs, err = a.openBlobs(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	a.analyzer = opts.Analyzer
	if a.analyzer == nil && cfg.Receipts.Model != "" {
		gemini, err := receipt.NewGeminiAnalyzer(ctx, cfg.Receipts.Model)
		if err != nil {
			// Everything except receipt OCR still works.
			log.Warn().Err(err).Msg("Receipt analyzer unavailable")
		} else {
			a.analyzer = gemini
		}
	}

	a.Service = ingest.NewService(ingest.Deps{
		Store:             a.Store,
		Registry:          a.Registry,
		Engine:            a.Engine,
		Analyzer:          a.analyzer,
		Blobs:             blobs,
		Logger:            log,
		CategorizeUploads: cfg.CategorizeUploads,
	})

	client := opts.BankLink
	if client == nil && cfg.BankLink.Enabled() {
		client, err = banklink.NewHTTPClient(banklink.HTTPConfig{
			BaseURL:     cfg.BankLink.BaseURL,
			ClientID:    cfg.BankLink.ClientID,
			Secret:      cfg.BankLink.Secret,
			AccessToken: cfg.BankLink.AccessToken,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("New: bank link client: %w", err)
		}
	}
	if client != nil {
		a.Syncer = banklink.NewSyncer(client, a.Store, a.Engine, log)
	}

	return a, nil
}

func loadEngine(rulesPath string) (*categorize.Engine, error) {
	if rulesPath == "" {
		return categorize.Default(), nil
	}
	table, err := categorize.LoadTable(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("New: loading rules: %w", err)
	}
	return categorize.NewEngine(table), nil
}

func (a *App) openBlobs(ctx context.Context) (gcsuploader.BlobStore, error) {
	if a.Config.Receipts.Bucket == "" {
		a.Log.Warn().Msg("No GCS bucket configured, receipt images and CSV archives stay in memory")
		return gcsuploader.NewMemoryStore(), nil
	}
	gcs, err := gcsuploader.NewGCSStore(ctx, a.Config.Receipts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("New: blob store: %w", err)
	}
	a.closers = append(a.closers, gcs.Close)
	return gcs, nil
}

// OpenBackend connects the persistence backend named in cfg.
func OpenBackend(ctx context.Context, cfg config.StoreConfig) (store.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return store.NewMemoryBackend(), nil
	case config.BackendSQLite, config.BackendMySQL:
		d, err := sqlstore.DialectFor(cfg.Backend)
		if err != nil {
			return nil, err
		}
		b, err := sqlstore.Open(ctx, d, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("OpenBackend: %w", err)
		}
		return b, nil
	case config.BackendPostgres:
		b, err := pgbackend.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("OpenBackend: %w", err)
		}
		return b, nil
	case config.BackendBigQuery:
		b, err := bqbackend.NewBackend(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			return nil, fmt.Errorf("OpenBackend: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("OpenBackend: unknown backend %q", cfg.Backend)
	}
}

// HandleJob is the jobs.Handler for every job type the binaries run.
func (a *App) HandleJob(ctx context.Context, job *jobs.Job) (any, error) {
	switch job.Type {
	case jobs.JobTypeBankSync:
		return a.SyncBankLink(ctx)
	default:
		return nil, fmt.Errorf("HandleJob: unexpected job type %q", job.Type)
	}
}

// SyncBankLink runs one bank-link sync.
func (a *App) SyncBankLink(ctx context.Context) (*banklink.Result, error) {
	if a.Syncer == nil {
		return nil, ErrBankLinkDisabled
	}
	return a.Syncer.Sync(ctx)
}

// NotionClient returns a client for the configured token.
func (a *App) NotionClient() (notionsync.NotionService, error) {
	if a.Config.Notion.Token == "" || a.Config.Notion.DatabaseID == "" {
		return nil, ErrNotionDisabled
	}
	return notionsync.NewNotionClient(a.Config.Notion.Token), nil
}

// Status feeds GET /status.
func (a *App) Status() map[string]interface{} {
	return map[string]interface{}{
		"service":     "finance-ingest",
		"environment": a.Config.Env,
		"store": map[string]interface{}{
			"backend":      a.Config.Store.Backend,
			"hydrated":     a.Store.Hydrated(),
			"transactions": a.Store.Len(),
		},
		"banks":    a.Registry.Banks(),
		"bankLink": a.Syncer != nil,
		"receipts": a.analyzer != nil,
	}
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
