// Package objectstore provides S3 and GCS source adapters for leapdata.
//
// Objects under the source prefix are downloaded once at connect time and
// each readable object (CSV, JSON, Parquet) becomes one table, named after
// the object's base name.
package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/adapters/duckdb"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"golang.org/x/sync/errgroup"
)

// downloadConcurrency bounds parallel object downloads per source.
const downloadConcurrency = 4

// Opener creates a bucket client for a source.
type Opener func(ctx context.Context, desc core.SourceDescriptor, loc Location) (Bucket, error)

// Adapter implements adapter.Adapter for object-store prefixes.
type Adapter struct {
	adapter.BaseSQLAdapter
	open      Opener
	dir       string
	relations map[string]string
	tables    []string
}

// New creates an object-store adapter that reaches its bucket through open.
func New(open Opener, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{open: open, BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger}}
}

// Connect lists and downloads the objects, then exposes each as a view.
// Any failure removes the downloaded files.
func (a *Adapter) Connect(ctx context.Context, desc core.SourceDescriptor) (err error) {
	params, err := duckdb.ParseParams(desc.Options)
	if err != nil {
		return err
	}
	loc, err := ParseLocation(desc.Location)
	if err != nil {
		return err
	}

	bucket, err := a.open(ctx, desc, loc)
	if err != nil {
		return err
	}
	defer func() { _ = bucket.Close() }()

	keys, err := bucket.List(ctx, loc.Prefix)
	if err != nil {
		return err
	}
	objects := selectObjects(keys, params.Format)
	if len(objects) == 0 {
		return fmt.Errorf("no csv, json or parquet objects under %s", desc.Location)
	}

	dir, err := os.MkdirTemp("", "leapdata-"+sanitize(desc.Name)+"-")
	if err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	if err := download(ctx, bucket, dir, objects); err != nil {
		return err
	}

	db, err := duckdb.OpenMemory(ctx, params)
	if err != nil {
		return err
	}
	relations := make(map[string]string, len(objects))
	for _, obj := range objects {
		rel, err := duckdb.Relation(obj.kind, filepath.Join(dir, obj.file), params)
		if err != nil {
			_ = db.Close()
			return err
		}
		stmt := fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM %s", adapter.QuoteIdent(obj.table), rel)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to read %s: %w", obj.key, err)
		}
		relations[obj.table] = rel
	}

	// A single object is exposed under the source's table name.
	if len(objects) == 1 && objects[0].table != desc.TableName() {
		name := desc.TableName()
		stmt := fmt.Sprintf("CREATE VIEW %s AS SELECT * FROM %s", adapter.QuoteIdent(name), relations[objects[0].table])
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to alias %s: %w", objects[0].key, err)
		}
		relations = map[string]string{name: relations[objects[0].table]}
	}

	tables := make([]string, 0, len(relations))
	for t := range relations {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	a.DB = db
	a.Source = desc
	a.dir = dir
	a.relations = relations
	a.tables = tables
	a.Logger.Debug("downloaded object store source", "objects", len(objects), "dir", dir)
	return nil
}

type object struct {
	key   string
	file  string
	table string
	kind  core.SourceKind
}

// selectObjects keeps readable objects and derives unique table names.
func selectObjects(keys []string, format string) []object {
	sort.Strings(keys)
	used := make(map[string]int)
	var out []object
	for _, key := range keys {
		if strings.HasSuffix(key, "/") {
			continue
		}
		kind, ok := duckdb.KindForFile(key, format)
		if !ok {
			continue
		}
		base := path.Base(key)
		table := tableName(base)
		used[table]++
		if n := used[table]; n > 1 {
			table = fmt.Sprintf("%s_%d", table, n)
		}
		out = append(out, object{
			key:   key,
			file:  fmt.Sprintf("%03d_%s", len(out), sanitize(base)),
			table: table,
			kind:  kind,
		})
	}
	return out
}

func download(ctx context.Context, bucket Bucket, dir string, objects []object) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadConcurrency)
	for _, obj := range objects {
		g.Go(func() error {
			f, err := os.Create(filepath.Join(dir, obj.file))
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", obj.file, err)
			}
			if err := bucket.Download(ctx, obj.key, f); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		})
	}
	return g.Wait()
}

// tableName strips extensions from an object's base name.
func tableName(base string) string {
	name := base
	for {
		ext := filepath.Ext(name)
		if ext == "" || ext == name {
			break
		}
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

// Tables returns the table names, sorted.
func (a *Adapter) Tables(_ context.Context) ([]string, error) {
	if a.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	return a.tables, nil
}

// ReadTable reads one downloaded object.
func (a *Adapter) ReadTable(ctx context.Context, table string) (*core.TabularResult, error) {
	if _, ok := a.relations[table]; !ok {
		return nil, fmt.Errorf("%q: %w", table, core.ErrTableNotFound)
	}
	return a.BaseSQLAdapter.ReadTable(ctx, table)
}

// Relation returns the table function reading a downloaded object.
func (a *Adapter) Relation(table string) (string, bool) {
	rel, ok := a.relations[table]
	return rel, ok
}

// Close closes the engine and removes the downloaded files.
func (a *Adapter) Close() error {
	err := a.BaseSQLAdapter.Close()
	if a.dir != "" {
		if rmErr := os.RemoveAll(a.dir); rmErr != nil && err == nil {
			err = rmErr
		}
		a.dir = ""
	}
	return err
}

// Ensure Adapter implements the interfaces
var (
	_ adapter.Adapter     = (*Adapter)(nil)
	_ core.NativeRelation = (*Adapter)(nil)
)
