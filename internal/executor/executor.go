// Package executor routes SQL to a single source or to the federated
// catalog and returns normalized results.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/leapstack-labs/leapdata/internal/connections"
	"github.com/leapstack-labs/leapdata/internal/metrics"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/leapstack-labs/leapdata/internal/executor")

// Sources lists the declared source names.
type Sources interface {
	Names() []string
}

// Executor runs queries and table reads.
type Executor struct {
	conns   *connections.Cache
	sources Sources
	catalog *Catalog
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates an executor. catalog may be nil, which disables federated queries.
func New(conns *connections.Cache, sources Sources, catalog *Catalog, logger *slog.Logger, m *metrics.Metrics) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{conns: conns, sources: sources, catalog: catalog, logger: logger, metrics: m}
}

// Catalog returns the federated catalog.
func (e *Executor) Catalog() *Catalog { return e.catalog }

// Execute runs sql against source, or against the federated catalog when
// source is empty.
func (e *Executor) Execute(ctx context.Context, sql, source string) (res *core.TabularResult, err error) {
	ctx, span := e.startSpan(ctx, "executor.execute", source)
	start := time.Now()
	defer func() {
		e.metrics.ObserveQuery(source, time.Since(start), err)
		endSpan(span, err)
	}()

	if strings.TrimSpace(sql) == "" {
		return nil, &core.QueryExecutionError{Source: source, SQL: sql, Err: errors.New("empty query")}
	}
	if source == "" {
		return e.federated(ctx, sql)
	}

	err = e.withHandle(ctx, source, func(h *connections.Handle) (err error) {
		res, err = h.Query(ctx, sql)
		return err
	})
	if err != nil {
		return nil, wrap(source, sql, err)
	}
	e.logger.Debug("query executed", "source", source, "rows", res.NumRows())
	return res, nil
}

func (e *Executor) federated(ctx context.Context, sql string) (*core.TabularResult, error) {
	if e.catalog == nil {
		return nil, &core.QueryExecutionError{SQL: sql, Err: errors.New("federated queries are not enabled")}
	}
	// Unreachable sources only matter if the query uses them.
	attachErr := e.catalog.AttachAvailable(ctx, e.sources.Names())
	if attachErr != nil {
		e.logger.Warn("some sources could not be attached", "error", attachErr)
	}
	res, err := e.catalog.Query(ctx, sql)
	if err != nil {
		if attachErr != nil {
			err = fmt.Errorf("%w (not attached: %v)", err, attachErr)
		}
		return nil, wrap("", sql, err)
	}
	return res, nil
}

// Tables lists the tables of source.
func (e *Executor) Tables(ctx context.Context, source string) ([]string, error) {
	var tables []string
	err := e.withHandle(ctx, source, func(h *connections.Handle) (err error) {
		tables, err = h.Tables(ctx)
		return err
	})
	if err != nil {
		return nil, wrap(source, "", err)
	}
	return tables, nil
}

// ResolveTable picks the table a read of source should use. Single-table
// sources ignore table. Multi-table sources need a name unless they hold
// exactly one table.
func (e *Executor) ResolveTable(ctx context.Context, source, table string) (string, error) {
	var (
		tables []string
		desc   core.SourceDescriptor
	)
	err := e.withHandle(ctx, source, func(h *connections.Handle) (err error) {
		desc = h.Descriptor()
		tables, err = h.Tables(ctx)
		return err
	})
	if err != nil {
		return "", wrap(source, "", err)
	}
	return resolve(desc, tables, table)
}

func resolve(desc core.SourceDescriptor, tables []string, table string) (string, error) {
	if len(tables) == 0 {
		return "", &core.QueryExecutionError{Source: desc.Name, Err: fmt.Errorf("source has no tables: %w", core.ErrTableNotFound)}
	}
	if desc.Kind.SingleTable() {
		return tables[0], nil
	}
	if table == "" {
		if len(tables) == 1 {
			return tables[0], nil
		}
		return "", &core.AmbiguousTableError{Source: desc.Name, Tables: tables}
	}
	if slices.Contains(tables, table) {
		return table, nil
	}
	// Schema-qualified names outside the listed schema are left to the source.
	if strings.Contains(table, ".") {
		return table, nil
	}
	return "", &core.QueryExecutionError{Source: desc.Name, Err: fmt.Errorf("%q: %w", table, core.ErrTableNotFound)}
}

// GetTable reads one table of source in full.
func (e *Executor) GetTable(ctx context.Context, source, table string) (res *core.TabularResult, err error) {
	ctx, span := e.startSpan(ctx, "executor.get_table", source)
	start := time.Now()
	defer func() {
		e.metrics.ObserveQuery(source, time.Since(start), err)
		endSpan(span, err)
	}()

	name, err := e.ResolveTable(ctx, source, table)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("table", name))
	err = e.withHandle(ctx, source, func(h *connections.Handle) (err error) {
		res, err = h.ReadTable(ctx, name)
		return err
	})
	if err != nil {
		return nil, wrap(source, "", err)
	}
	return res, nil
}

// withHandle runs fn on the source's handle, reacquiring once if the handle
// was invalidated in between.
func (e *Executor) withHandle(ctx context.Context, source string, fn func(*connections.Handle) error) error {
	for attempt := 0; ; attempt++ {
		h, err := e.conns.Acquire(ctx, source)
		if err != nil {
			return err
		}
		err = fn(h)
		if errors.Is(err, core.ErrClosed) && attempt == 0 {
			continue
		}
		return err
	}
}

// wrap converts err into the error taxonomy.
func wrap(source, sql string, err error) error {
	if core.IsTaxonomy(err) {
		return err
	}
	return &core.QueryExecutionError{Source: source, SQL: sql, Err: err}
}

func (e *Executor) startSpan(ctx context.Context, name, source string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	if source == "" {
		source = "federated"
	}
	span.SetAttributes(attribute.String("source", source))
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
