// Package bigquery is the BigQuery persistence backend for the transaction
// store.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/finance-ingest/internal/infra"
	"github.com/dvloznov/finance-ingest/internal/store"
)

const transactionsTable = "transactions"

// Backend implements store.Backend on BigQuery. It holds one shared client.
type Backend struct {
	client  *bigquery.Client
	project string
	dataset string
}

// NewBackend connects to BigQuery.
func NewBackend(ctx context.Context, project, dataset string) (*Backend, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewBackend: creating client: %w", err)
	}
	return NewBackendWithClient(client, project, dataset), nil
}

// NewBackendWithClient wraps an existing client.
func NewBackendWithClient(client *bigquery.Client, project, dataset string) *Backend {
	return &Backend{client: client, project: project, dataset: dataset}
}

// Close closes the BigQuery client connection.
func (b *Backend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// table returns the fully qualified, backquoted name of a table.
func (b *Backend) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", b.project, b.dataset, name)
}

func (b *Backend) cursorsTable() string {
	return b.table(infra.CursorsTable)
}

// runDML runs a DML statement and returns the number of affected rows.
func (b *Backend) runDML(ctx context.Context, sql string, params []bigquery.QueryParameter) (int64, error) {
	q := b.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return qs.NumDMLAffectedRows, nil
		}
	}
	return 0, nil
}

var _ store.Backend = (*Backend)(nil)
