package core

import (
	"fmt"

	"github.com/goccy/go-json"
)

// TabularResult is the normalized result of every read.
// Every row has exactly len(Columns) values, each of the Go type that
// matches its column: int64, float64, string, bool, time.Time or nil.
type TabularResult struct {
	Columns []Column
	Rows    [][]any
}

// NewTabularResult builds a result, rejecting ragged rows.
func NewTabularResult(columns []Column, rows [][]any) (*TabularResult, error) {
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
	}
	if rows == nil {
		rows = [][]any{}
	}
	return &TabularResult{Columns: columns, Rows: rows}, nil
}

// NumRows returns the number of rows.
func (r *TabularResult) NumRows() int { return len(r.Rows) }

// NumColumns returns the number of columns.
func (r *TabularResult) NumColumns() int { return len(r.Columns) }

// ColumnNames returns column names in result order.
func (r *TabularResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of the named column, or -1.
func (r *TabularResult) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column returns the values of the named column.
func (r *TabularResult) Column(name string) ([]any, bool) {
	idx := r.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	values := make([]any, len(r.Rows))
	for i, row := range r.Rows {
		values[i] = row[idx]
	}
	return values, true
}

// Records returns the rows as column-name keyed maps.
func (r *TabularResult) Records() []map[string]any {
	out := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		rec := make(map[string]any, len(r.Columns))
		for j, c := range r.Columns {
			rec[c.Name] = row[j]
		}
		out[i] = rec
	}
	return out
}

// Head returns a result sharing the first n rows. n < 0 means all rows.
func (r *TabularResult) Head(n int) *TabularResult {
	if n < 0 || n >= len(r.Rows) {
		return r
	}
	return &TabularResult{Columns: r.Columns, Rows: r.Rows[:n]}
}

type resultJSON struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// MarshalJSON encodes the result as {"columns": [...], "rows": [...]}.
func (r *TabularResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{Columns: r.Columns, Rows: r.Rows})
}
