// Package infra holds what the persistence backends share: the encoding of a
// transaction's nested fields into flat columns.
package infra

import (
	"encoding/json"
	"fmt"

	"github.com/dvloznov/finance-ingest/internal/domain"
)

// CursorsTable names the table that stores sync cursors in every SQL backend.
const CursorsTable = "sync_cursors"

// JSONColumns are the nested parts of a transaction serialized as JSON text.
// Empty values encode as "".
type JSONColumns struct {
	Category    string
	Subcategory string
	Location    string
	RawData     string
	Flags       string
}

// EncodeJSONColumns serializes the nested fields of tx.
func EncodeJSONColumns(tx *domain.Transaction) (JSONColumns, error) {
	var cols JSONColumns
	var err error
	if cols.Category, err = encode(tx.Category, len(tx.Category) == 0); err != nil {
		return cols, fmt.Errorf("EncodeJSONColumns: category: %w", err)
	}
	if cols.Subcategory, err = encode(tx.Subcategory, len(tx.Subcategory) == 0); err != nil {
		return cols, fmt.Errorf("EncodeJSONColumns: subcategory: %w", err)
	}
	if cols.Location, err = encode(tx.Location, tx.Location.IsZero()); err != nil {
		return cols, fmt.Errorf("EncodeJSONColumns: location: %w", err)
	}
	if cols.RawData, err = encode(tx.RawData, len(tx.RawData) == 0); err != nil {
		return cols, fmt.Errorf("EncodeJSONColumns: raw_data: %w", err)
	}
	if cols.Flags, err = encode(tx.Flags, len(tx.Flags) == 0); err != nil {
		return cols, fmt.Errorf("EncodeJSONColumns: flags: %w", err)
	}
	return cols, nil
}

// DecodeJSONColumns fills the nested fields of tx from cols.
func DecodeJSONColumns(cols JSONColumns, tx *domain.Transaction) error {
	if err := decode(cols.Category, &tx.Category); err != nil {
		return fmt.Errorf("DecodeJSONColumns: category: %w", err)
	}
	if err := decode(cols.Subcategory, &tx.Subcategory); err != nil {
		return fmt.Errorf("DecodeJSONColumns: subcategory: %w", err)
	}
	if cols.Location != "" {
		tx.Location = &domain.Location{}
		if err := decode(cols.Location, tx.Location); err != nil {
			return fmt.Errorf("DecodeJSONColumns: location: %w", err)
		}
	}
	if err := decode(cols.RawData, &tx.RawData); err != nil {
		return fmt.Errorf("DecodeJSONColumns: raw_data: %w", err)
	}
	if err := decode(cols.Flags, &tx.Flags); err != nil {
		return fmt.Errorf("DecodeJSONColumns: flags: %w", err)
	}
	return nil
}

func encode(v any, empty bool) (string, error) {
	if empty {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decode(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
