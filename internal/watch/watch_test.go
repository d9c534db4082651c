package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/leapstack-labs/leapdata/internal/testutil"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls map[string]int
}

func (r *recorder) Invalidate(_ context.Context, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[source]++
	return nil
}

func (r *recorder) count(source string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[source]
}

func TestNew_SelectsLocalFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	w := New(&recorder{}, []core.SourceDescriptor{
		{Name: "a", Kind: core.KindCSV, Location: a},
		{Name: "a2", Kind: core.KindCSV, Location: a},
		{Name: "glob", Kind: core.KindParquet, Location: filepath.Join(dir, "*.parquet")},
		{Name: "remote", Kind: core.KindCSV, Location: "https://example.com/x.csv"},
		{Name: "pg", Kind: core.KindPostgres, Location: "analytics"},
		{Name: "mem", Kind: core.KindDuckDB, Location: ":memory:"},
	}, nil)

	assert.Equal(t, []string{a}, w.Files())
	assert.Equal(t, []string{"a", "a2"}, w.files[a])
}

func TestRun_InvalidatesOnChange(t *testing.T) {
	dir := t.TempDir()
	path := testutil.NumberedCSV(t, dir, "data.csv", 1)
	other := testutil.NumberedCSV(t, dir, "other.csv", 1)
	rec := &recorder{calls: make(map[string]int)}
	w := New(rec, []core.SourceDescriptor{
		{Name: "data", Kind: core.KindCSV, Location: path},
		{Name: "other", Kind: core.KindCSV, Location: other},
	}, testutil.NewTestLogger(t))
	w.SetDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	require.Eventually(t, func() bool {
		testutil.NumberedCSV(t, dir, "data.csv", 2)
		return rec.count("data") > 0
	}, 2*time.Second, 50*time.Millisecond)

	// A burst of writes collapses into one invalidation.
	before := rec.count("data")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("id,label\n1,x\n"), 0o600))
	}
	require.Eventually(t, func() bool { return rec.count("data") == before+1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before+1, rec.count("data"))
	assert.Equal(t, 0, rec.count("other"))

	testutil.WriteFile(t, dir, "unrelated.txt", "x")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, rec.count("other"))

	cancel()
	assert.NoError(t, <-done)
}

func TestRun_NothingToWatch(t *testing.T) {
	w := New(&recorder{}, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.NoError(t, w.Run(ctx))
}
