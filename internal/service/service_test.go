package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapdata/internal/connections"
	"github.com/leapstack-labs/leapdata/internal/testutil"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, cfg Config) *Service {
	t.Helper()
	cfg.Logger = testutil.NewTestLogger(t)
	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

// countingOpen opens real adapters and counts physical opens per source.
func countingOpen(counts *sync.Map) connections.OpenFunc {
	open := connections.OpenAdapter(nil)
	return func(ctx context.Context, desc core.SourceDescriptor) (core.Adapter, error) {
		n, _ := counts.LoadOrStore(desc.Name, new(atomic.Int32))
		n.(*atomic.Int32).Add(1)
		return open(ctx, desc)
	}
}

func opens(counts *sync.Map, name string) int32 {
	n, ok := counts.Load(name)
	if !ok {
		return 0
	}
	return n.(*atomic.Int32).Load()
}

func csvSource(name, path string) core.SourceDescriptor {
	return core.SourceDescriptor{Name: name, Kind: core.KindCSV, Location: path}
}

func TestNew_RejectsBadDeclarations(t *testing.T) {
	_, err := New(context.Background(), Config{Sources: []core.SourceDescriptor{
		csvSource("a", "a.csv"), csvSource("a", "b.csv"),
	}})
	var dup *core.DuplicateSourceError
	assert.ErrorAs(t, err, &dup)

	_, err = New(context.Background(), Config{Sources: []core.SourceDescriptor{{Name: "x", Kind: "excel", Location: "x"}}})
	var invalid *core.InvalidSourceError
	assert.ErrorAs(t, err, &invalid)
}

func TestGetDF_RoundTrip(t *testing.T) {
	path := testutil.WriteCSV(t, t.TempDir(), "ab.csv", []string{"A", "B"},
		[]any{1, "x"}, []any{2, "y"}, []any{3, "z"})
	s := newService(t, Config{Sources: []core.SourceDescriptor{csvSource("ab", path)}})

	res, err := s.GetDF(context.Background(), "ab", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, res.ColumnNames())
	assert.Equal(t, core.TypeInteger, res.Columns[0].Type)
	assert.Equal(t, core.TypeString, res.Columns[1].Type)
	assert.Equal(t, [][]any{{int64(1), "x"}, {int64(2), "y"}, {int64(3), "z"}}, res.Rows)
}

func TestQuery_CountAndCaching(t *testing.T) {
	path := testutil.NumberedCSV(t, t.TempDir(), "t.csv", 10)
	var counts sync.Map
	s := newService(t, Config{
		Sources: []core.SourceDescriptor{{Name: "src", Kind: core.KindCSV, Location: path, Options: map[string]string{"table": "t"}}},
		Open:    countingOpen(&counts),
	})
	ctx := context.Background()

	res, err := s.Query(ctx, "SELECT COUNT(*) FROM t", "src")
	require.NoError(t, err)
	require.Equal(t, 1, res.NumRows())
	require.Equal(t, 1, res.NumColumns())
	assert.Equal(t, int64(10), res.Rows[0][0])

	again, err := s.Query(ctx, "SELECT COUNT(*) FROM t", "src")
	require.NoError(t, err)
	assert.Same(t, res, again)
	assert.Equal(t, int32(1), opens(&counts, "src"))
	assert.Equal(t, 1, s.CachedResults())
}

func TestQuery_UnknownSourceHasNoSideEffects(t *testing.T) {
	path := testutil.NumberedCSV(t, t.TempDir(), "t.csv", 1)
	s := newService(t, Config{Sources: []core.SourceDescriptor{csvSource("t", path)}})

	_, err := s.Query(context.Background(), "SELECT 1", "missing")
	var unknown *core.UnknownSourceError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.Name)
	assert.Equal(t, []string{"t"}, unknown.Available)
	assert.Equal(t, 0, s.CachedResults())
	assert.Empty(t, s.Connected())

	_, err = s.GetDF(context.Background(), "missing", "")
	assert.ErrorAs(t, err, &unknown)
	assert.Equal(t, 0, s.CachedResults())
}

func TestQuery_DecimalAndUUIDColumns(t *testing.T) {
	path := testutil.NumberedCSV(t, t.TempDir(), "t.csv", 1)
	s := newService(t, Config{Sources: []core.SourceDescriptor{csvSource("t", path)}})
	ctx := context.Background()

	const q = `SELECT 1.5 AS x, CAST(2.25 AS DECIMAL(10,2)) AS d,
		'6ba7b810-9dad-11d1-80b4-00c04fd430c8'::UUID AS id, uuid() AS r`

	for _, source := range []string{"t", ""} {
		res, err := s.Query(ctx, q, source)
		require.NoError(t, err, "source %q", source)
		require.Len(t, res.Rows, 1)

		assert.Equal(t, core.TypeFloat, res.Columns[0].Type)
		assert.Equal(t, core.TypeFloat, res.Columns[1].Type)
		assert.Equal(t, 1.5, res.Rows[0][0])
		assert.Equal(t, 2.25, res.Rows[0][1])

		assert.Equal(t, core.TypeString, res.Columns[2].Type)
		assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", res.Rows[0][2])
		_, err = uuid.Parse(res.Rows[0][3].(string))
		assert.NoError(t, err, "random uuid %q", res.Rows[0][3])
	}
}

func TestGetDF_MultiTableSource(t *testing.T) {
	db := testutil.SQLiteDB(t, t.TempDir(), "multi.db",
		"CREATE TABLE a (x INTEGER)",
		"CREATE TABLE b (y TEXT)",
		"INSERT INTO b VALUES ('hello')",
	)
	s := newService(t, Config{Sources: []core.SourceDescriptor{{Name: "multiTableSource", Kind: core.KindSQLite, Location: db}}})
	ctx := context.Background()

	_, err := s.GetDF(ctx, "multiTableSource", "")
	var ambiguous *core.AmbiguousTableError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, core.KindAmbiguousTable, core.KindOf(err))
	assert.Equal(t, 0, s.CachedResults())

	res, err := s.GetDF(ctx, "multiTableSource", "b")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"hello"}}, res.Rows)

	tables, err := s.Tables(ctx, "multiTableSource")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tables)
}

func TestInvalidate_SeesChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := testutil.NumberedCSV(t, dir, "data.csv", 3)
	s := newService(t, Config{Sources: []core.SourceDescriptor{csvSource("data", path)}})
	ctx := context.Background()

	res, err := s.GetDF(ctx, "data", "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.NumRows())
	fed, err := s.Query(ctx, "SELECT COUNT(*) FROM data", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), fed.Rows[0][0])

	testutil.NumberedCSV(t, dir, "data.csv", 5)
	res, err = s.GetDF(ctx, "data", "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.NumRows(), "served from cache until invalidated")

	require.NoError(t, s.Invalidate(ctx, "data"))
	res, err = s.GetDF(ctx, "data", "")
	require.NoError(t, err)
	assert.Equal(t, 5, res.NumRows())
	fed, err = s.Query(ctx, "SELECT COUNT(*) FROM data", "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), fed.Rows[0][0])

	var unknown *core.UnknownSourceError
	assert.ErrorAs(t, s.Invalidate(ctx, "nope"), &unknown)
}

func TestGetDF_FailureIsRetried(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/late.csv"
	s := newService(t, Config{Sources: []core.SourceDescriptor{csvSource("late", path)}})
	ctx := context.Background()

	_, err := s.GetDF(ctx, "late", "")
	var connErr *core.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "late", connErr.Source)
	assert.Equal(t, 0, s.CachedResults())

	testutil.NumberedCSV(t, dir, "late.csv", 2)
	res, err := s.GetDF(ctx, "late", "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.NumRows())
}

func TestGetDF_ConcurrentCallersOpenOnce(t *testing.T) {
	path := testutil.NumberedCSV(t, t.TempDir(), "c.csv", 4)
	var counts sync.Map
	s := newService(t, Config{Sources: []core.SourceDescriptor{csvSource("c", path)}, Open: countingOpen(&counts)})

	const n = 16
	results := make([]*core.TabularResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.GetDF(context.Background(), "c", "")
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), opens(&counts, "c"))
	for _, r := range results {
		assert.Equal(t, results[0].Rows, r.Rows)
	}
}

func TestConnect_Idempotent(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteCSV(t, dir, "a.csv", []string{"id", "v"}, []any{1, "one"}, []any{2, "two"})
	b := testutil.WriteCSV(t, dir, "b.csv", []string{"id", "w"}, []any{1, 10}, []any{2, 20})
	var counts sync.Map
	s := newService(t, Config{Sources: []core.SourceDescriptor{csvSource("a", a), csvSource("b", b)}, Open: countingOpen(&counts)})
	ctx := context.Background()

	h1, err := s.Connect(ctx)
	require.NoError(t, err)
	h2, err := s.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, h1.Sources())
	assert.Equal(t, int32(1), opens(&counts, "a"))
	assert.Equal(t, int32(1), opens(&counts, "b"))

	res, err := h2.Query(ctx, "SELECT a.v, b.w FROM a JOIN b USING (id) ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"one", int64(10)}, {"two", int64(20)}}, res.Rows)
}

func TestConnect_FailsFast(t *testing.T) {
	s := newService(t, Config{Sources: []core.SourceDescriptor{csvSource("gone", "/does/not/exist.csv")}})
	_, err := s.Connect(context.Background())
	var connErr *core.ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestNew_EagerConnect(t *testing.T) {
	path := testutil.NumberedCSV(t, t.TempDir(), "e.csv", 1)
	s := newService(t, Config{Sources: []core.SourceDescriptor{csvSource("e", path)}, EagerConnect: true})
	assert.Equal(t, []string{"e"}, s.Connected())

	_, err := New(context.Background(), Config{
		Sources:      []core.SourceDescriptor{csvSource("gone", "/does/not/exist.csv")},
		EagerConnect: true,
	})
	var connErr *core.ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestQuery_Timeout(t *testing.T) {
	s := newService(t, Config{
		Sources:      []core.SourceDescriptor{csvSource("slow", "slow.csv")},
		QueryTimeout: 20 * time.Millisecond,
		Open: func(ctx context.Context, _ core.SourceDescriptor) (core.Adapter, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	start := time.Now()
	_, err := s.Query(context.Background(), "SELECT 1", "slow")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, core.IsTaxonomy(err))
	assert.Equal(t, 0, s.CachedResults())
}

func TestQuery_ErrorsAreReported(t *testing.T) {
	path := testutil.NumberedCSV(t, t.TempDir(), "t.csv", 1)
	s := newService(t, Config{Sources: []core.SourceDescriptor{csvSource("t", path)}})

	_, err := s.Query(context.Background(), "SELECT * FROM nowhere", "t")
	require.Error(t, err)
	report := core.Report(err)
	assert.Equal(t, core.KindQueryExecution, report.Kind)
	assert.Equal(t, "t", report.Source)
	assert.NotEmpty(t, report.Message)
}

func TestShutdown(t *testing.T) {
	path := testutil.NumberedCSV(t, t.TempDir(), "t.csv", 1)
	s, err := New(context.Background(), Config{Sources: []core.SourceDescriptor{csvSource("t", path)}})
	require.NoError(t, err)

	_, err = s.GetDF(context.Background(), "t", "")
	require.NoError(t, err)

	require.NoError(t, s.Shutdown())
	require.NoError(t, s.Shutdown(), "idempotent")
	assert.Empty(t, s.Connected())
	assert.Equal(t, 0, s.CachedResults())

	var notInit *core.NotInitializedError
	_, err = s.GetDF(context.Background(), "t", "")
	require.ErrorAs(t, err, &notInit)
	assert.Equal(t, "get_df", notInit.Op)
	_, err = s.Query(context.Background(), "SELECT 1", "t")
	assert.ErrorAs(t, err, &notInit)
	_, err = s.Connect(context.Background())
	assert.ErrorAs(t, err, &notInit)
	assert.ErrorAs(t, s.Invalidate(context.Background(), "t"), &notInit)
}

func TestCredentialsNeverLogged(t *testing.T) {
	logger, logs := testutil.CaptureLogger()
	s, err := New(context.Background(), Config{
		Logger: logger,
		Sources: []core.SourceDescriptor{{
			Name:        "pg",
			Kind:        core.KindPostgres,
			Location:    "postgres://app@127.0.0.1:1/none",
			Credentials: "hunter2-secret",
		}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })

	_, err = s.Tables(context.Background(), "pg")
	var connErr *core.ConnectionError
	require.ErrorAs(t, err, &connErr)

	assert.NotEmpty(t, logs.String())
	assert.NotContains(t, logs.String(), "hunter2-secret")
	assert.NotContains(t, err.Error(), "hunter2-secret")
}
