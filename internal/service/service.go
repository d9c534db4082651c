// Package service is the data service: it owns the source registry, the
// connection and result caches and the executor, and exposes connect,
// query and get_df over them.
//
// A Service is constructed once at startup and passed to whatever needs it.
// Every error it returns belongs to the pkg/core taxonomy.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leapstack-labs/leapdata/internal/connections"
	"github.com/leapstack-labs/leapdata/internal/executor"
	"github.com/leapstack-labs/leapdata/internal/metrics"
	"github.com/leapstack-labs/leapdata/internal/registry"
	"github.com/leapstack-labs/leapdata/internal/resultcache"
	"github.com/leapstack-labs/leapdata/pkg/core"

	// Source adapters register themselves.
	_ "github.com/leapstack-labs/leapdata/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapdata/pkg/adapters/mysql"
	_ "github.com/leapstack-labs/leapdata/pkg/adapters/objectstore"
	_ "github.com/leapstack-labs/leapdata/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leapdata/pkg/adapters/sqlite"
)

// Config configures a Service.
type Config struct {
	// Sources are the declared sources, in declaration order.
	Sources []core.SourceDescriptor
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// QueryTimeout bounds each call. Zero means no limit beyond the caller's context.
	QueryTimeout time.Duration
	// EagerConnect attaches every source during New.
	EagerConnect bool
	// Open overrides how sources are opened.
	Open connections.OpenFunc
}

// Service is the data source connection and query manager.
type Service struct {
	registry *registry.SourceRegistry
	conns    *connections.Cache
	results  *resultcache.Cache
	catalog  *executor.Catalog
	exec     *executor.Executor
	logger   *slog.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration

	closed       atomic.Bool
	shutdownOnce sync.Once
}

// New builds a service. Duplicate or malformed source declarations are
// returned as errors and no service is created.
func New(ctx context.Context, cfg Config) (*Service, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	reg, err := registry.FromDescriptors(cfg.Sources)
	if err != nil {
		return nil, err
	}
	conns := connections.New(reg, connections.Options{Open: cfg.Open, Logger: logger, Metrics: cfg.Metrics})
	catalog, err := executor.NewCatalog(ctx, conns, logger)
	if err != nil {
		return nil, err
	}

	s := &Service{
		registry: reg,
		conns:    conns,
		results:  resultcache.New(cfg.Metrics),
		catalog:  catalog,
		exec:     executor.New(conns, reg, catalog, logger, cfg.Metrics),
		logger:   logger,
		metrics:  cfg.Metrics,
		timeout:  cfg.QueryTimeout,
	}
	logger.Info("data service initialized", "sources", reg.Count())

	if cfg.EagerConnect {
		if _, err := s.Connect(ctx); err != nil {
			_ = s.Shutdown()
			return nil, err
		}
	}
	return s, nil
}

// FederatedHandle runs SQL across every source of a connected service.
type FederatedHandle struct {
	svc *Service
}

// Sources returns the names of the sources the handle exposes.
func (f *FederatedHandle) Sources() []string {
	return f.svc.registry.Names()
}

// Query runs sql against the federated catalog.
func (f *FederatedHandle) Query(ctx context.Context, sql string) (*core.TabularResult, error) {
	return f.svc.Query(ctx, sql, "")
}

var _ core.Federated = (*FederatedHandle)(nil)

// Connect attaches every declared source to the federated catalog and
// returns a handle for ad-hoc SQL. Sources already attached are reused, so
// repeated calls never duplicate them.
func (s *Service) Connect(ctx context.Context) (*FederatedHandle, error) {
	if err := s.check("connect"); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	if err := s.catalog.AttachAll(ctx, s.registry.Names()); err != nil {
		return nil, s.report("connect", err)
	}
	s.logger.Debug("sources connected", "sources", s.registry.Count(), "duration", time.Since(start))
	return &FederatedHandle{svc: s}, nil
}

// Query runs sql on source, or on the federated catalog when source is
// empty. Results are cached per (sql, source) until invalidated.
func (s *Service) Query(ctx context.Context, sql, source string) (*core.TabularResult, error) {
	if err := s.check("query"); err != nil {
		return nil, err
	}
	if source != "" {
		if _, err := s.registry.Resolve(source); err != nil {
			return nil, err
		}
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.results.GetOrCompute(ctx, resultcache.QueryKey(sql, source), func(ctx context.Context) (*core.TabularResult, error) {
		return s.exec.Execute(ctx, sql, source)
	})
	if err != nil {
		return nil, s.report("query", err)
	}
	return res, nil
}

// GetDF returns the full contents of a table of source. table may be empty
// for single-table sources and for sources with exactly one table.
func (s *Service) GetDF(ctx context.Context, source, table string) (*core.TabularResult, error) {
	if err := s.check("get_df"); err != nil {
		return nil, err
	}
	desc, err := s.registry.Resolve(source)
	if err != nil {
		return nil, err
	}
	if desc.Kind.SingleTable() {
		table = ""
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.results.GetOrCompute(ctx, resultcache.TableKey(source, table), func(ctx context.Context) (*core.TabularResult, error) {
		return s.exec.GetTable(ctx, source, table)
	})
	if err != nil {
		return nil, s.report("get_df", err)
	}
	return res, nil
}

// Tables lists the tables of source.
func (s *Service) Tables(ctx context.Context, source string) ([]string, error) {
	if err := s.check("tables"); err != nil {
		return nil, err
	}
	if _, err := s.registry.Resolve(source); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tables, err := s.exec.Tables(ctx, source)
	if err != nil {
		return nil, s.report("tables", err)
	}
	return tables, nil
}

// Sources returns the declared sources in declaration order.
func (s *Service) Sources() []core.SourceDescriptor {
	return s.registry.List()
}

// Source returns one declared source.
func (s *Service) Source(name string) (core.SourceDescriptor, error) {
	return s.registry.Resolve(name)
}

// Connected returns the names of the sources with an open connection.
func (s *Service) Connected() []string {
	return s.conns.Open()
}

// CachedResults returns the number of cached results.
func (s *Service) CachedResults() int {
	return s.results.Len()
}

// Invalidate drops everything cached for source: its results, federated
// results, its catalog relations and its connection. The next call that
// needs the source reopens it.
func (s *Service) Invalidate(ctx context.Context, source string) error {
	if err := s.check("invalidate"); err != nil {
		return err
	}
	if _, err := s.registry.Resolve(source); err != nil {
		return err
	}

	evicted := s.results.InvalidateSource(source)
	evicted += s.results.InvalidateSource("")
	var errs []error
	if err := s.catalog.Detach(ctx, source); err != nil {
		errs = append(errs, err)
	}
	if err := s.conns.Invalidate(source); err != nil {
		errs = append(errs, err)
	}
	s.metrics.Invalidated(source)
	s.logger.Debug("source invalidated", "source", source, "results", evicted)

	if err := errors.Join(errs...); err != nil {
		return &core.ConnectionError{Source: source, Err: err}
	}
	return nil
}

// Shutdown releases every connection and cached result. It is idempotent;
// afterwards every call fails with *core.NotInitializedError.
func (s *Service) Shutdown() error {
	var err error
	s.shutdownOnce.Do(func() {
		s.closed.Store(true)
		err = errors.Join(s.catalog.Close(), s.conns.Close())
		s.results.Clear()
		if err != nil {
			s.logger.Warn("data service shut down with errors", "error", err)
			return
		}
		s.logger.Info("data service shut down")
	})
	return err
}

func (s *Service) check(op string) error {
	if s == nil || s.closed.Load() {
		return &core.NotInitializedError{Op: op}
	}
	return nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// report converts err into the error taxonomy and logs it.
func (s *Service) report(op string, err error) error {
	if !core.IsTaxonomy(err) {
		err = &core.QueryExecutionError{Err: err}
	}
	s.logger.Debug("call failed", "op", op, "kind", string(core.KindOf(err)), "error", err)
	return err
}
