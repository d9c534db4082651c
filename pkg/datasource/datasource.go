// Package datasource is a process-wide accessor for scripts and notebooks
// that want connect, query and get_df without passing a service around.
//
//	if err := datasource.Init(ctx, datasource.Options{Sources: sources}); err != nil {
//		return err
//	}
//	defer datasource.Shutdown()
//	df, err := datasource.GetDF(ctx, "sales", "")
package datasource

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/leapdata/internal/config"
	"github.com/leapstack-labs/leapdata/internal/service"
	"github.com/leapstack-labs/leapdata/pkg/core"
)

// ErrAlreadyInitialized is returned by Init when a service is already installed.
var ErrAlreadyInitialized = errors.New("data service already initialized")

// Options configures the process-wide service.
type Options struct {
	// Sources are the declared sources, in declaration order.
	Sources []core.SourceDescriptor
	// Logger defaults to discarding output.
	Logger *slog.Logger
	// QueryTimeout bounds each call. Zero means no limit beyond the caller's context.
	QueryTimeout time.Duration
	// EagerConnect attaches every source during Init.
	EagerConnect bool
}

// Service is the data manager installed by Init.
type Service interface {
	Connect(ctx context.Context) (core.Federated, error)
	Query(ctx context.Context, sql, source string) (*core.TabularResult, error)
	GetDF(ctx context.Context, source, table string) (*core.TabularResult, error)
	Tables(ctx context.Context, source string) ([]string, error)
	Sources() []core.SourceDescriptor
	Invalidate(ctx context.Context, source string) error
}

// managed narrows the service's concrete handle type to core.Federated.
type managed struct {
	*service.Service
}

func (m *managed) Connect(ctx context.Context) (core.Federated, error) {
	h, err := m.Service.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return h, nil
}

var (
	mu       sync.RWMutex
	instance *managed
)

// Init builds the process-wide service from opts.
func Init(ctx context.Context, opts Options) error {
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return ErrAlreadyInitialized
	}
	s, err := service.New(ctx, service.Config{
		Sources:      opts.Sources,
		Logger:       opts.Logger,
		QueryTimeout: opts.QueryTimeout,
		EagerConnect: opts.EagerConnect,
	})
	if err != nil {
		return err
	}
	instance = &managed{Service: s}
	return nil
}

// InitFromFile loads the sources declared in a leapdata.yaml and builds the
// process-wide service. An empty path searches the working directory.
func InitFromFile(ctx context.Context, path string) error {
	cfg, err := config.Load(path, nil)
	if err != nil {
		return err
	}
	descs, err := cfg.Descriptors()
	if err != nil {
		return err
	}
	return Init(ctx, Options{
		Sources:      descs,
		Logger:       config.NewLogger(cfg.Verbose),
		QueryTimeout: cfg.QueryTimeout,
	})
}

// Instance returns the initialized service.
func Instance() (Service, error) {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		return nil, &core.NotInitializedError{Op: "instance"}
	}
	return instance, nil
}

// Shutdown tears down the service. Calling it again, or before Init, does nothing.
func Shutdown() error {
	mu.Lock()
	s := instance
	instance = nil
	mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Shutdown()
}

// Connect attaches every source and returns a handle for federated SQL.
func Connect(ctx context.Context) (core.Federated, error) {
	s, err := instanceFor("connect")
	if err != nil {
		return nil, err
	}
	return s.Connect(ctx)
}

// Query runs sql on source, or across all sources when source is empty.
func Query(ctx context.Context, sql, source string) (*core.TabularResult, error) {
	s, err := instanceFor("query")
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, sql, source)
}

// GetDF reads a table of source. table may be empty for single-table sources.
func GetDF(ctx context.Context, source, table string) (*core.TabularResult, error) {
	s, err := instanceFor("get_df")
	if err != nil {
		return nil, err
	}
	return s.GetDF(ctx, source, table)
}

func instanceFor(op string) (*managed, error) {
	mu.RLock()
	defer mu.RUnlock()
	if instance == nil {
		return nil, &core.NotInitializedError{Op: op}
	}
	return instance, nil
}
