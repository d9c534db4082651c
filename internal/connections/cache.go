// Package connections caches one live connection per source.
//
// The first Acquire for a source opens it; concurrent callers for the same
// source share that single attempt. Failed attempts are never cached.
package connections

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapdata/internal/metrics"
	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("github.com/leapstack-labs/leapdata/internal/connections")

// Resolver looks up source declarations.
type Resolver interface {
	Resolve(name string) (core.SourceDescriptor, error)
}

// OpenFunc creates a connected adapter for a descriptor. It must release
// any partial resource before returning an error.
type OpenFunc func(ctx context.Context, desc core.SourceDescriptor) (core.Adapter, error)

// OpenAdapter opens sources through the adapter registry.
func OpenAdapter(logger *slog.Logger) OpenFunc {
	return func(ctx context.Context, desc core.SourceDescriptor) (core.Adapter, error) {
		a, err := adapter.NewAdapter(desc, logger)
		if err != nil {
			return nil, err
		}
		if err := a.Connect(ctx, desc); err != nil {
			_ = a.Close()
			return nil, err
		}
		return a, nil
	}
}

// Options configures a Cache.
type Options struct {
	// Open defaults to OpenAdapter.
	Open    OpenFunc
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Cache memoizes one Handle per source name.
type Cache struct {
	resolver Resolver
	open     OpenFunc
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu      sync.RWMutex
	handles map[string]*Handle
	// gens counts invalidations per source. An open started before an
	// invalidation is discarded instead of stored.
	gens   map[string]uint64
	closed bool

	group singleflight.Group
}

// New creates an empty cache over resolver.
func New(resolver Resolver, opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	open := opts.Open
	if open == nil {
		open = OpenAdapter(logger)
	}
	return &Cache{
		resolver: resolver,
		open:     open,
		logger:   logger,
		metrics:  opts.Metrics,
		handles:  make(map[string]*Handle),
		gens:     make(map[string]uint64),
	}
}

// errInvalidated reports an open that lost a race with Invalidate.
var errInvalidated = errors.New("source invalidated while opening")

// Acquire returns the live handle for name, opening the source on first use.
// Unknown names fail with *core.UnknownSourceError before any I/O; failed
// opens fail with *core.ConnectionError and leave nothing cached.
func (c *Cache) Acquire(ctx context.Context, name string) (*Handle, error) {
	for {
		c.mu.RLock()
		h, ok := c.handles[name]
		gen := c.gens[name]
		closed := c.closed
		c.mu.RUnlock()
		if closed {
			return nil, &core.ConnectionError{Source: name, Err: core.ErrClosed}
		}
		if ok {
			return h, nil
		}

		desc, err := c.resolver.Resolve(name)
		if err != nil {
			return nil, err
		}

		ch := c.group.DoChan(fmt.Sprintf("%d\x00%s", gen, name), func() (any, error) {
			return c.openHandle(ctx, desc, gen)
		})
		select {
		case <-ctx.Done():
			return nil, &core.ConnectionError{Source: name, Err: ctx.Err()}
		case res := <-ch:
			if errors.Is(res.Err, errInvalidated) {
				continue
			}
			if res.Err != nil {
				return nil, res.Err
			}
			return res.Val.(*Handle), nil
		}
	}
}

// openHandle runs once per name and generation under the singleflight group.
func (c *Cache) openHandle(ctx context.Context, desc core.SourceDescriptor, gen uint64) (*Handle, error) {
	// Another flight may have finished between the fast path and this one.
	c.mu.RLock()
	if h, ok := c.handles[desc.Name]; ok {
		c.mu.RUnlock()
		return h, nil
	}
	c.mu.RUnlock()

	ctx, span := tracer.Start(ctx, "connections.open")
	span.SetAttributes(attribute.String("source", desc.Name), attribute.String("kind", string(desc.Kind)))
	defer span.End()

	c.logger.Debug("opening source", "source", desc.Name, "kind", string(desc.Kind))
	a, err := c.open(ctx, desc)
	c.metrics.ConnectionOpened(desc.Name, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("failed to open source", "source", desc.Name, "error", err)
		return nil, &core.ConnectionError{Source: desc.Name, Err: err}
	}

	h := newHandle(desc, a)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = a.Close()
		c.metrics.ConnectionClosed()
		return nil, &core.ConnectionError{Source: desc.Name, Err: core.ErrClosed}
	}
	if c.gens[desc.Name] != gen {
		c.mu.Unlock()
		c.logger.Debug("discarding source opened before invalidation", "source", desc.Name)
		_ = a.Close()
		c.metrics.ConnectionClosed()
		return nil, errInvalidated
	}
	c.handles[desc.Name] = h
	c.mu.Unlock()
	return h, nil
}

// Cached returns the handle for name if it is already open.
func (c *Cache) Cached(name string) (*Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handles[name]
	return h, ok
}

// Open returns the names of the open sources, sorted.
func (c *Cache) Open() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.handles))
	for name := range c.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invalidate closes and evicts the handle for name. The next Acquire reopens
// the source, and an open already in flight is discarded when it completes.
func (c *Cache) Invalidate(name string) error {
	c.mu.Lock()
	h, ok := c.handles[name]
	delete(c.handles, name)
	c.gens[name]++
	c.mu.Unlock()
	if !ok {
		return nil
	}
	c.metrics.ConnectionClosed()
	if err := h.close(); err != nil {
		c.logger.Warn("failed to close source", "source", name, "error", err)
		return fmt.Errorf("close source %q: %w", name, err)
	}
	return nil
}

// Close releases every handle exactly once. Individual failures are logged
// and joined; shutdown continues past them. Close is idempotent.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	handles := c.handles
	c.handles = make(map[string]*Handle)
	c.mu.Unlock()

	names := make([]string, 0, len(handles))
	for name := range handles {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		c.metrics.ConnectionClosed()
		if err := handles[name].close(); err != nil {
			c.logger.Warn("failed to close source", "source", name, "error", err)
			errs = append(errs, fmt.Errorf("close source %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
