package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/finance-ingest/internal/domain"
)

const transactionColumns = `
	transaction_id,
	transaction_date,
	name,
	merchant_name,
	amount,
	currency,
	account_id,
	category,
	subcategory,
	confidence,
	source,
	upload_id,
	upload_filename,
	duplicate_key,
	parent_transaction_id,
	location,
	raw_data,
	flags,
	created_ts,
	updated_ts`

// rowParams binds every column of row as a named parameter.
func rowParams(row *TransactionRow) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "transaction_id", Value: row.TransactionID},
		{Name: "transaction_date", Value: row.TransactionDate},
		{Name: "name", Value: row.Name},
		{Name: "merchant_name", Value: row.MerchantName},
		{Name: "amount", Value: row.Amount},
		{Name: "currency", Value: row.Currency},
		{Name: "account_id", Value: row.AccountID},
		{Name: "category", Value: row.Category},
		{Name: "subcategory", Value: row.Subcategory},
		{Name: "confidence", Value: row.Confidence},
		{Name: "source", Value: row.Source},
		{Name: "upload_id", Value: row.UploadID},
		{Name: "upload_filename", Value: row.UploadFilename},
		{Name: "duplicate_key", Value: row.DuplicateKey},
		{Name: "parent_transaction_id", Value: row.ParentID},
		{Name: "location", Value: row.Location},
		{Name: "raw_data", Value: row.RawData},
		{Name: "flags", Value: row.Flags},
		{Name: "created_ts", Value: row.CreatedTS},
		{Name: "updated_ts", Value: row.UpdatedTS},
	}
}

// PutIfAbsent inserts tx unless a row with its id exists. MERGE makes the
// check and insert one statement.
func (b *Backend) PutIfAbsent(ctx context.Context, tx *domain.Transaction) (bool, error) {
	row, err := toRow(tx)
	if err != nil {
		return false, fmt.Errorf("PutIfAbsent: %w", err)
	}

	sql := fmt.Sprintf(`
		MERGE %s T
		USING (SELECT @transaction_id AS transaction_id) S
		ON T.transaction_id = S.transaction_id
		WHEN NOT MATCHED THEN
		  INSERT (%s)
		  VALUES (
			@transaction_id, @transaction_date, @name, @merchant_name, @amount, @currency,
			@account_id, @category, @subcategory, @confidence, @source, @upload_id,
			@upload_filename, @duplicate_key, @parent_transaction_id, @location,
			@raw_data, @flags, @created_ts, @updated_ts
		  )
	`, b.table(transactionsTable), transactionColumns)

	n, err := b.runDML(ctx, sql, rowParams(row))
	if err != nil {
		return false, fmt.Errorf("PutIfAbsent: %w", err)
	}
	return n > 0, nil
}

// Update overwrites the mutable columns of an existing row.
func (b *Backend) Update(ctx context.Context, tx *domain.Transaction) error {
	row, err := toRow(tx)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	sql := fmt.Sprintf(`
		UPDATE %s
		SET name = @name,
		    merchant_name = @merchant_name,
		    amount = @amount,
		    category = @category,
		    subcategory = @subcategory,
		    confidence = @confidence,
		    duplicate_key = @duplicate_key,
		    location = @location,
		    raw_data = @raw_data,
		    flags = @flags,
		    updated_ts = @updated_ts
		WHERE transaction_id = @transaction_id
	`, b.table(transactionsTable))

	if _, err := b.runDML(ctx, sql, rowParams(row)); err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	return nil
}

// Scan reads every stored transaction.
func (b *Backend) Scan(ctx context.Context) ([]*domain.Transaction, error) {
	q := b.client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			transaction_date,
			IFNULL(name, '') AS name,
			IFNULL(merchant_name, '') AS merchant_name,
			amount,
			IFNULL(currency, '') AS currency,
			IFNULL(account_id, '') AS account_id,
			category,
			subcategory,
			IFNULL(confidence, 0) AS confidence,
			IFNULL(source, '') AS source,
			IFNULL(upload_id, '') AS upload_id,
			IFNULL(upload_filename, '') AS upload_filename,
			IFNULL(duplicate_key, '') AS duplicate_key,
			IFNULL(parent_transaction_id, '') AS parent_transaction_id,
			IFNULL(location, '') AS location,
			IFNULL(raw_data, '') AS raw_data,
			IFNULL(flags, '') AS flags,
			created_ts,
			updated_ts
		FROM %s
		ORDER BY transaction_date DESC, created_ts DESC
	`, b.table(transactionsTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("Scan: query read: %w", err)
	}

	var out []*domain.Transaction
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("Scan: iter next: %w", err)
		}
		tx, err := r.toDomain()
		if err != nil {
			return nil, fmt.Errorf("Scan: %w", err)
		}
		out = append(out, tx)
	}
	return out, nil
}

// HasDuplicateKey reports whether any row carries the fingerprint.
func (b *Backend) HasDuplicateKey(ctx context.Context, key string) (bool, error) {
	q := b.client.Query(fmt.Sprintf(`
		SELECT COUNT(1) AS n
		FROM %s
		WHERE duplicate_key = @duplicate_key
	`, b.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "duplicate_key", Value: key},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return false, fmt.Errorf("HasDuplicateKey: query read: %w", err)
	}
	var row struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return false, fmt.Errorf("HasDuplicateKey: iter next: %w", err)
	}
	return row.N > 0, nil
}

// DeleteByUploadID deletes every row of an upload.
func (b *Backend) DeleteByUploadID(ctx context.Context, uploadID string) (int, error) {
	n, err := b.runDML(ctx, fmt.Sprintf(`
		DELETE FROM %s
		WHERE upload_id = @upload_id
	`, b.table(transactionsTable)), []bigquery.QueryParameter{
		{Name: "upload_id", Value: uploadID},
	})
	if err != nil {
		return 0, fmt.Errorf("DeleteByUploadID: %w", err)
	}
	return int(n), nil
}

// Delete deletes one row by id.
func (b *Backend) Delete(ctx context.Context, id string) error {
	_, err := b.runDML(ctx, fmt.Sprintf(`
		DELETE FROM %s
		WHERE transaction_id = @transaction_id
	`, b.table(transactionsTable)), []bigquery.QueryParameter{
		{Name: "transaction_id", Value: id},
	})
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}
