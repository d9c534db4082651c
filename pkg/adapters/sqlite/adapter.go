// Package sqlite provides a SQLite source adapter for leapdata.
package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/core"

	_ "modernc.org/sqlite" // sqlite driver
)

// Adapter implements adapter.Adapter for SQLite database files.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger}}
}

// Connect opens the database file, read-only unless read_only=false.
func (a *Adapter) Connect(ctx context.Context, desc core.SourceDescriptor) error {
	path, err := filepath.Abs(desc.Location)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("database file: %w", err)
	}
	readOnly, err := strconv.ParseBool(desc.Option("read_only", "true"))
	if err != nil {
		return fmt.Errorf("invalid read_only option: %w", err)
	}

	db, err := adapter.OpenDB(ctx, "sqlite", dsn(path, readOnly))
	if err != nil {
		return err
	}
	a.DB = db
	a.Source = desc
	a.Logger.Debug("connected to sqlite", "path", path, "read_only", readOnly)
	return nil
}

func dsn(path string, readOnly bool) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	if readOnly {
		q.Set("mode", "ro")
	}
	// SQLite decodes %XX in URI filenames; '?' and '#' would otherwise end the path.
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?" + q.Encode()
}

// Tables lists tables and views, skipping SQLite's internal tables.
func (a *Adapter) Tables(ctx context.Context) ([]string, error) {
	return a.TablesFromQuery(ctx, `
		SELECT name FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
	`)
}

// Exclusive reports that a SQLite handle serializes its callers.
func (a *Adapter) Exclusive() bool { return true }

// Ensure Adapter implements the interfaces
var (
	_ adapter.Adapter = (*Adapter)(nil)
	_ core.Exclusive  = (*Adapter)(nil)
)
