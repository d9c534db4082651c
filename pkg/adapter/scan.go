package adapter

import (
	"database/sql"
	"fmt"

	"github.com/leapstack-labs/leapdata/pkg/core"
)

// ScanRows drains rows into a normalized TabularResult.
// Column types come from the driver's type names; columns without one are
// typed by their first non-null value. The caller closes rows.
func ScanRows(rows *sql.Rows) (*core.TabularResult, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	columns := make([]core.Column, len(colTypes))
	pending := make([]bool, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = core.Column{Name: ct.Name(), DatabaseType: ct.DatabaseTypeName()}
		if columns[i].DatabaseType == "" {
			pending[i] = true
			continue
		}
		t, err := core.ColumnTypeFromDatabase(columns[i].DatabaseType)
		if err != nil {
			return nil, &core.UnsupportedTypeError{Column: ct.Name(), DatabaseType: columns[i].DatabaseType}
		}
		columns[i].Type = t
	}

	var out [][]any
	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make([]any, len(columns))
		for i, v := range raw {
			if v == nil {
				continue
			}
			if pending[i] {
				t, err := core.InferColumnType(v)
				if err != nil {
					return nil, &core.UnsupportedTypeError{Column: columns[i].Name, DatabaseType: fmt.Sprintf("%T", v), Err: err}
				}
				columns[i].Type = t
				pending[i] = false
			}
			cv, err := core.CoerceColumn(columns[i], v)
			if err != nil {
				return nil, &core.UnsupportedTypeError{Column: columns[i].Name, DatabaseType: columns[i].DatabaseType, Err: err}
			}
			row[i] = cv
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return core.NewTabularResult(columns, out)
}
