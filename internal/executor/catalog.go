package executor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapdata/internal/connections"
	"github.com/leapstack-labs/leapdata/pkg/adapter"
	duckdbadapter "github.com/leapstack-labs/leapdata/pkg/adapters/duckdb"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"github.com/marcboeker/go-duckdb"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// attachConcurrency bounds sources attached in parallel.
const attachConcurrency = 4

// attachment records the catalog objects created for one source.
type attachment struct {
	// schema is set when the source was attached as a schema of tables.
	schema string
	// objects maps created object names to whether they are views.
	objects map[string]bool
}

// Catalog is the federated virtual catalog: an in-memory DuckDB database in
// which every attached source appears as a relation named after it.
//
// Single-table sources become the relation "<source>". Multi-table sources
// become the schema "<source>" holding one relation per table. Sources the
// engine can read natively are attached as views; the rest are materialized
// from the source's connection.
type Catalog struct {
	db     *sql.DB
	conns  *connections.Cache
	logger *slog.Logger

	mu       sync.Mutex
	attached map[string]*attachment
	gens     map[string]uint64
	closed   bool

	group singleflight.Group
}

// NewCatalog opens an empty catalog over conns.
func NewCatalog(ctx context.Context, conns *connections.Cache, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	db, err := duckdbadapter.OpenMemory(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open federated catalog: %w", err)
	}
	return &Catalog{
		db:       db,
		conns:    conns,
		logger:   logger,
		attached: make(map[string]*attachment),
		gens:     make(map[string]uint64),
	}, nil
}

// Attached reports whether source is attached.
func (c *Catalog) Attached(source string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.attached[source]
	return ok
}

// Sources returns the attached source names, sorted.
func (c *Catalog) Sources() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.attached))
	for name := range c.attached {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Attach exposes source in the catalog. Concurrent calls for one source
// share a single attachment.
func (c *Catalog) Attach(ctx context.Context, source string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.ErrClosed
	}
	if _, ok := c.attached[source]; ok {
		c.mu.Unlock()
		return nil
	}
	gen := c.gens[source]
	c.mu.Unlock()

	ch := c.group.DoChan(fmt.Sprintf("%d\x00%s", gen, source), func() (any, error) {
		return nil, c.attach(ctx, source, gen)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// AttachAll attaches every source concurrently and stops at the first failure.
func (c *Catalog) AttachAll(ctx context.Context, sources []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(attachConcurrency)
	for _, s := range sources {
		g.Go(func() error { return c.Attach(ctx, s) })
	}
	return g.Wait()
}

// AttachAvailable attaches every source it can and returns the joined
// failures of the rest.
func (c *Catalog) AttachAvailable(ctx context.Context, sources []string) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(attachConcurrency)
	for _, s := range sources {
		g.Go(func() error {
			if err := c.Attach(ctx, s); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (c *Catalog) attach(ctx context.Context, source string, gen uint64) error {
	h, err := c.conns.Acquire(ctx, source)
	if err != nil {
		return err
	}
	tables, err := h.Tables(ctx)
	if err != nil {
		return &core.QueryExecutionError{Source: source, Err: fmt.Errorf("list tables: %w", err)}
	}
	if len(tables) == 0 {
		return &core.QueryExecutionError{Source: source, Err: fmt.Errorf("source has no tables: %w", core.ErrTableNotFound)}
	}

	desc := h.Descriptor()
	att := &attachment{objects: make(map[string]bool)}
	single := desc.Kind.SingleTable() || (len(tables) == 1 && tables[0] == desc.TableName())
	if !single {
		att.schema = source
		if _, err := c.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+adapter.QuoteIdent(source)); err != nil {
			return &core.QueryExecutionError{Source: source, Err: fmt.Errorf("create schema: %w", err)}
		}
	}

	for _, table := range tables {
		schema, name := "main", source
		if !single {
			schema, name = source, table
		}
		view, err := c.attachTable(ctx, h, table, schema, name)
		if err != nil {
			_ = c.dropObjects(context.WithoutCancel(ctx), att)
			return err
		}
		att.objects[name] = view
		if single {
			break
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.gens[source] != gen {
		// Detached while attaching.
		_ = c.dropObjects(context.WithoutCancel(ctx), att)
		return nil
	}
	c.attached[source] = att
	c.logger.Debug("attached source", "source", source, "tables", len(att.objects), "schema", att.schema)
	return nil
}

// attachTable creates schema.name as a view or a materialized table.
func (c *Catalog) attachTable(ctx context.Context, h *connections.Handle, table, schema, name string) (bool, error) {
	target := adapter.QuoteIdent(schema) + "." + adapter.QuoteIdent(name)
	if rel, ok := h.Relation(table); ok {
		stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s", target, rel)
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return true, &core.QueryExecutionError{Source: h.Name(), Err: fmt.Errorf("attach %s: %w", table, err)}
		}
		return true, nil
	}

	res, err := h.ReadTable(ctx, table)
	if err != nil {
		if core.IsTaxonomy(err) {
			return false, err
		}
		return false, &core.QueryExecutionError{Source: h.Name(), Err: fmt.Errorf("read %s: %w", table, err)}
	}
	if err := c.materialize(ctx, schema, name, res); err != nil {
		return false, &core.QueryExecutionError{Source: h.Name(), Err: fmt.Errorf("load %s: %w", table, err)}
	}
	return false, nil
}

// engineType is the DuckDB column type that stores a normalized type.
func engineType(t core.ColumnType) string {
	switch t {
	case core.TypeInteger:
		return "BIGINT"
	case core.TypeFloat:
		return "DOUBLE"
	case core.TypeBoolean:
		return "BOOLEAN"
	case core.TypeTimestamp:
		return "TIMESTAMP"
	}
	return "VARCHAR"
}

// materialize creates schema.name from res and bulk loads its rows.
func (c *Catalog) materialize(ctx context.Context, schema, name string, res *core.TabularResult) error {
	target := adapter.QuoteIdent(schema) + "." + adapter.QuoteIdent(name)
	colDefs := make([]string, len(res.Columns))
	for i, col := range res.Columns {
		colDefs[i] = adapter.QuoteIdent(col.Name) + " " + engineType(col.Type)
	}
	createSQL := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", target, strings.Join(colDefs, ", "))
	if _, err := c.db.ExecContext(ctx, createSQL); err != nil {
		return err
	}
	if res.NumRows() == 0 {
		return nil
	}

	conn, err := c.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	return conn.Raw(func(driverConn any) error {
		app, err := duckdb.NewAppenderFromConn(driverConn.(driver.Conn), schema, name)
		if err != nil {
			return err
		}
		row := make([]driver.Value, len(res.Columns))
		for _, r := range res.Rows {
			for i, v := range r {
				row[i] = v
			}
			if err := app.AppendRow(row...); err != nil {
				_ = app.Close()
				return err
			}
		}
		return app.Close()
	})
}

// Detach drops the source's relations. The next Attach recreates them.
func (c *Catalog) Detach(ctx context.Context, source string) error {
	c.mu.Lock()
	att, ok := c.attached[source]
	delete(c.attached, source)
	c.gens[source]++
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.dropObjects(ctx, att)
}

func (c *Catalog) dropObjects(ctx context.Context, att *attachment) error {
	if att.schema != "" {
		_, err := c.db.ExecContext(ctx, "DROP SCHEMA IF EXISTS "+adapter.QuoteIdent(att.schema)+" CASCADE")
		return err
	}
	var errs []error
	for name, view := range att.objects {
		kind := "TABLE"
		if view {
			kind = "VIEW"
		}
		if _, err := c.db.ExecContext(ctx, fmt.Sprintf("DROP %s IF EXISTS %s", kind, adapter.QuoteIdent(name))); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Query runs sql against the catalog.
func (c *Catalog) Query(ctx context.Context, sqlStr string) (*core.TabularResult, error) {
	rows, err := c.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return adapter.ScanRows(rows)
}

// Close closes the catalog database.
func (c *Catalog) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.attached = make(map[string]*attachment)
	c.mu.Unlock()
	return c.db.Close()
}
