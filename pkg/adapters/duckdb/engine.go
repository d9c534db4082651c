package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"github.com/marcboeker/go-duckdb"
)

// Open opens a DuckDB database at path (":memory:" or "" for in-memory).
// Extensions and settings from params are applied to every pooled connection.
func Open(ctx context.Context, path string, params *Params) (*sql.DB, error) {
	if params == nil {
		params = &Params{}
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	dsn := path
	if dsn == ":memory:" {
		dsn = ""
	}
	if dsn != "" && params.ReadOnly {
		dsn += "?access_mode=READ_ONLY"
	}

	boot := bootQueries(params)
	// Runs for every new pooled connection, possibly after ctx is gone.
	connector, err := duckdb.NewConnector(dsn, func(execer driver.ExecerContext) error {
		for _, q := range boot {
			if _, err := execer.ExecContext(context.Background(), q, nil); err != nil {
				return fmt.Errorf("%s: %w", q, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory DuckDB database.
func OpenMemory(ctx context.Context, params *Params) (*sql.DB, error) {
	return Open(ctx, "", params)
}

func bootQueries(p *Params) []string {
	var qs []string
	for _, ext := range p.Extensions {
		if ext == "" {
			continue
		}
		qs = append(qs, "INSTALL "+ext, "LOAD "+ext)
	}
	keys := make([]string, 0, len(p.Settings))
	for k := range p.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		qs = append(qs, fmt.Sprintf("SET %s = %s", k, adapter.QuoteLiteral(p.Settings[k])))
	}
	return qs
}

// Relation returns the DuckDB table function that reads a file of the given kind.
func Relation(kind core.SourceKind, path string, p *Params) (string, error) {
	lit := adapter.QuoteLiteral(path)
	switch kind {
	case core.KindCSV:
		var args []string
		if p != nil && p.Delimiter != "" {
			args = append(args, "delim="+adapter.QuoteLiteral(p.Delimiter))
		}
		if p != nil && p.Header != nil {
			args = append(args, fmt.Sprintf("header=%t", *p.Header))
		}
		if len(args) == 0 {
			return fmt.Sprintf("read_csv_auto(%s)", lit), nil
		}
		return fmt.Sprintf("read_csv_auto(%s, %s)", lit, strings.Join(args, ", ")), nil
	case core.KindJSON:
		return fmt.Sprintf("read_json_auto(%s)", lit), nil
	case core.KindParquet:
		return fmt.Sprintf("read_parquet(%s)", lit), nil
	}
	return "", fmt.Errorf("%s is not a file format", kind)
}

// KindForFile guesses a file kind from its extension, honouring an explicit format.
func KindForFile(name, format string) (core.SourceKind, bool) {
	if format != "" {
		k, err := core.ParseSourceKind(format)
		return k, err == nil && k.SingleTable()
	}
	lower := strings.ToLower(name)
	for _, suffix := range []string{".gz", ".zst"} {
		lower = strings.TrimSuffix(lower, suffix)
	}
	switch {
	case strings.HasSuffix(lower, ".csv"), strings.HasSuffix(lower, ".tsv"), strings.HasSuffix(lower, ".txt"):
		return core.KindCSV, true
	case strings.HasSuffix(lower, ".json"), strings.HasSuffix(lower, ".ndjson"), strings.HasSuffix(lower, ".jsonl"):
		return core.KindJSON, true
	case strings.HasSuffix(lower, ".parquet"), strings.HasSuffix(lower, ".pq"):
		return core.KindParquet, true
	}
	return "", false
}
