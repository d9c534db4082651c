package connections

import (
	"context"
	"sync"

	"github.com/leapstack-labs/leapdata/pkg/core"
)

// Handle is a cached, live connection to one source. It is owned by the
// Cache; callers borrow it and must not close it.
type Handle struct {
	desc    core.SourceDescriptor
	adapter core.Adapter

	// life is held shared by calls and exclusively by close, so close waits
	// for in-flight calls.
	life   sync.RWMutex
	closed bool

	// excl serializes calls on adapters that cannot be shared.
	excl *sync.Mutex
}

func newHandle(desc core.SourceDescriptor, a core.Adapter) *Handle {
	h := &Handle{desc: desc, adapter: a}
	if e, ok := a.(core.Exclusive); ok && e.Exclusive() {
		h.excl = &sync.Mutex{}
	}
	return h
}

// Name returns the source name.
func (h *Handle) Name() string { return h.desc.Name }

// Descriptor returns the source declaration.
func (h *Handle) Descriptor() core.SourceDescriptor { return h.desc }

// Exclusive reports whether calls on this handle are serialized.
func (h *Handle) Exclusive() bool { return h.excl != nil }

// Query runs sql on the source.
func (h *Handle) Query(ctx context.Context, sql string) (*core.TabularResult, error) {
	var res *core.TabularResult
	err := h.do(func() (err error) {
		res, err = h.adapter.Query(ctx, sql)
		return err
	})
	return res, err
}

// Tables lists the source's tables.
func (h *Handle) Tables(ctx context.Context) ([]string, error) {
	var tables []string
	err := h.do(func() (err error) {
		tables, err = h.adapter.Tables(ctx)
		return err
	})
	return tables, err
}

// ReadTable reads one table in full.
func (h *Handle) ReadTable(ctx context.Context, table string) (*core.TabularResult, error) {
	var res *core.TabularResult
	err := h.do(func() (err error) {
		res, err = h.adapter.ReadTable(ctx, table)
		return err
	})
	return res, err
}

// Relation returns a table expression the embedded engine can read
// directly, when the adapter supports it.
func (h *Handle) Relation(table string) (string, bool) {
	nr, ok := h.adapter.(core.NativeRelation)
	if !ok {
		return "", false
	}
	h.life.RLock()
	defer h.life.RUnlock()
	if h.closed {
		return "", false
	}
	return nr.Relation(table)
}

func (h *Handle) do(fn func() error) error {
	h.life.RLock()
	defer h.life.RUnlock()
	if h.closed {
		return core.ErrClosed
	}
	if h.excl != nil {
		h.excl.Lock()
		defer h.excl.Unlock()
	}
	return fn()
}

// close waits for in-flight calls and closes the adapter once.
func (h *Handle) close() error {
	h.life.Lock()
	defer h.life.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.adapter.Close()
}
