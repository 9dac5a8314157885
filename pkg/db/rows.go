package db

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"
)

// Row is a result row addressable by column name or position.
type Row struct {
	columns []string
	index   map[string]int
	values  []any
}

func (r Row) Columns() []string { return r.columns }

func (r Row) Len() int { return len(r.values) }

// At returns the value at position i.
func (r Row) At(i int) any {
	if i < 0 || i >= len(r.values) {
		return nil
	}
	return r.values[i]
}

// Get returns the value of the named column.
func (r Row) Get(name string) (any, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// String returns the named column formatted as text, or "" when NULL or missing.
func (r Row) String(name string) string {
	v, ok := r.Get(name)
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Query runs a parameterized statement and materializes every row. Byte
// slices are converted to strings so callers see identical values on every
// backend.
func Query(ctx context.Context, tx *gorm.DB, query string, args ...any) ([]Row, error) {
	rows, err := tx.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, Wrap(err)
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, Wrap(err)
	}
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, Wrap(err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, Row{columns: columns, index: index, values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(err)
	}
	return out, nil
}
