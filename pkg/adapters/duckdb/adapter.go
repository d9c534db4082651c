// Package duckdb provides the DuckDB-backed adapters: DuckDB database files
// and flat files (CSV, JSON, Parquet) read through DuckDB's table functions.
package duckdb

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/core"
)

// Adapter implements adapter.Adapter for DuckDB database files.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger}}
}

// Connect opens the database file, read-only unless read_only=false.
func (a *Adapter) Connect(ctx context.Context, desc core.SourceDescriptor) error {
	params, err := ParseParams(desc.Options)
	if err != nil {
		return err
	}

	path := desc.Location
	if path != ":memory:" {
		if path, err = filepath.Abs(path); err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
		if params.ReadOnly {
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("database file: %w", err)
			}
		}
	}

	db, err := Open(ctx, path, params)
	if err != nil {
		return err
	}
	a.DB = db
	a.Source = desc
	a.Logger.Debug("connected to duckdb", "path", path, "read_only", params.ReadOnly)
	return nil
}

// Tables lists base tables and views; tables outside the main schema are schema-qualified.
func (a *Adapter) Tables(ctx context.Context) ([]string, error) {
	return a.TablesFromQuery(ctx, `
		SELECT CASE WHEN table_schema = 'main' THEN table_name
		            ELSE table_schema || '.' || table_name END
		FROM information_schema.tables
		WHERE table_catalog = current_database()
		  AND table_schema NOT IN ('information_schema', 'pg_catalog')
	`)
}

// FileAdapter serves a single CSV, JSON or Parquet file as one table.
// The file is exposed as a view in a private in-memory DuckDB database,
// so every read sees the file's current contents.
type FileAdapter struct {
	adapter.BaseSQLAdapter
	kind     core.SourceKind
	table    string
	relation string
}

// NewFile creates a file adapter for the given kind.
func NewFile(kind core.SourceKind, logger *slog.Logger) *FileAdapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileAdapter{kind: kind, BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger}}
}

// Connect parses the file once through a view so format errors surface here.
func (a *FileAdapter) Connect(ctx context.Context, desc core.SourceDescriptor) error {
	params, err := ParseParams(desc.Options)
	if err != nil {
		return err
	}

	path := desc.Location
	if !isRemote(path) {
		if path, err = filepath.Abs(path); err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
		if !strings.ContainsAny(path, "*?[") {
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("source file: %w", err)
			}
		}
	}

	relation, err := Relation(a.kind, path, params)
	if err != nil {
		return err
	}

	db, err := OpenMemory(ctx, params)
	if err != nil {
		return err
	}
	table := desc.TableName()
	stmt := fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM %s", adapter.QuoteIdent(table), relation)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to read %s file: %w", a.kind, err)
	}

	a.DB = db
	a.Source = desc
	a.table = table
	a.relation = relation
	a.Logger.Debug("opened file source", "path", path, "table", table)
	return nil
}

// Tables returns the single table name.
func (a *FileAdapter) Tables(_ context.Context) ([]string, error) {
	if a.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	return []string{a.table}, nil
}

// ReadTable reads the whole file; the table name is implicit.
func (a *FileAdapter) ReadTable(ctx context.Context, _ string) (*core.TabularResult, error) {
	return a.BaseSQLAdapter.ReadTable(ctx, a.table)
}

// Relation returns the table function reading the file.
func (a *FileAdapter) Relation(_ string) (string, bool) {
	return a.relation, a.relation != ""
}

func isRemote(path string) bool {
	for _, scheme := range []string{"http://", "https://", "s3://", "gs://", "gcs://"} {
		if strings.HasPrefix(path, scheme) {
			return true
		}
	}
	return false
}

// Ensure adapters implement the interfaces
var (
	_ adapter.Adapter     = (*Adapter)(nil)
	_ adapter.Adapter     = (*FileAdapter)(nil)
	_ core.NativeRelation = (*FileAdapter)(nil)
)
