package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// GetCursor returns the stored cursor, or "" when none exists.
func (b *Backend) GetCursor(ctx context.Context, name string) (string, error) {
	q := b.client.Query(fmt.Sprintf(`
		SELECT IFNULL(cursor_value, '') AS cursor_value
		FROM %s
		WHERE name = @name
		LIMIT 1
	`, b.cursorsTable()))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "name", Value: name},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("GetCursor: query read: %w", err)
	}
	var row struct {
		Cursor string `bigquery:"cursor_value"`
	}
	err = it.Next(&row)
	if err == iterator.Done {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("GetCursor: iter next: %w", err)
	}
	return row.Cursor, nil
}

// PutCursor upserts a cursor.
func (b *Backend) PutCursor(ctx context.Context, name, cursor string) error {
	_, err := b.runDML(ctx, fmt.Sprintf(`
		MERGE %s T
		USING (SELECT @name AS name) S
		ON T.name = S.name
		WHEN MATCHED THEN
		  UPDATE SET cursor_value = @cursor_value, updated_ts = @updated_ts
		WHEN NOT MATCHED THEN
		  INSERT (name, cursor_value, updated_ts) VALUES (@name, @cursor_value, @updated_ts)
	`, b.cursorsTable()), []bigquery.QueryParameter{
		{Name: "name", Value: name},
		{Name: "cursor_value", Value: cursor},
		{Name: "updated_ts", Value: time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("PutCursor: %w", err)
	}
	return nil
}
