package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapdata/internal/cli/testutil"
	"github.com/leapstack-labs/leapdata/pkg/core"
)

// run executes the root command with args and returns stdout and stderr.
func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "leapdata v"+Version)
}

func TestSources(t *testing.T) {
	cfg := testutil.SetupTestProject(t)

	out, _, err := run(t, "", "--config", cfg, "sources")
	require.NoError(t, err)
	testutil.AssertContainsAll(t, out, "sales", "shop", "events", "csv", "sqlite")
	testutil.AssertNoANSI(t, out)

	out, _, err = run(t, "", "--config", cfg, "sources", "-o", "json")
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")
	var views []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 3)
	assert.Equal(t, "sales", views[0]["name"])
	assert.Equal(t, "****", views[2]["credentials"])

	out, _, err = run(t, "", "--config", cfg, "sources", "-o", "yaml")
	require.NoError(t, err)
	var fromYAML []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	assert.Len(t, fromYAML, 3)
}

func TestTables(t *testing.T) {
	cfg := testutil.SetupTestProject(t)

	out, _, err := run(t, "", "--config", cfg, "tables", "shop", "-o", "json")
	require.NoError(t, err)
	var tables []string
	require.NoError(t, json.Unmarshal([]byte(out), &tables))
	assert.Equal(t, []string{"customers", "orders"}, tables)

	out, _, err = run(t, "", "--config", cfg, "tables", "sales")
	require.NoError(t, err)
	assert.Contains(t, out, "sales")
}

func TestGet(t *testing.T) {
	cfg := testutil.SetupTestProject(t)

	out, _, err := run(t, "", "--config", cfg, "get", "sales", "-o", "csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "id,region,amount", lines[0])
	assert.Equal(t, "1,north,10.5", lines[1])

	out, _, err = run(t, "", "--config", cfg, "get", "shop", "orders", "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "(2 rows)")

	_, _, err = run(t, "", "--config", cfg, "get", "shop")
	var ambiguous *core.AmbiguousTableError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, []string{"customers", "orders"}, ambiguous.Tables)

	_, _, err = run(t, "", "--config", cfg, "get", "nope")
	assert.Equal(t, core.KindUnknownSource, core.KindOf(err))
}

func TestQuery(t *testing.T) {
	cfg := testutil.SetupTestProject(t)

	t.Run("single source", func(t *testing.T) {
		out, _, err := run(t, "", "--config", cfg, "query", "--source", "sales", "-o", "json",
			"SELECT COUNT(*) AS n FROM sales")
		require.NoError(t, err)
		var res struct {
			Rows [][]int `json:"rows"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, [][]int{{4}}, res.Rows)
	})

	t.Run("federated", func(t *testing.T) {
		out, _, err := run(t, "", "--config", cfg, "query", "-o", "csv",
			"SELECT c.name, SUM(o.total) AS total FROM shop.orders o JOIN shop.customers c ON o.customer_id = c.id GROUP BY 1 ORDER BY 1")
		require.NoError(t, err)
		assert.Equal(t, "name,total\nAlice,15.5\nBob,8.25", strings.TrimSpace(out))
	})

	t.Run("stdin", func(t *testing.T) {
		out, _, err := run(t, "SELECT region FROM sales WHERE id = 2;\n", "--config", cfg, "query", "-o", "csv")
		require.NoError(t, err)
		assert.Equal(t, "region\nsouth", strings.TrimSpace(out))
	})

	t.Run("input file", func(t *testing.T) {
		sqlFile := filepath.Join(t.TempDir(), "q.sql")
		require.NoError(t, os.WriteFile(sqlFile, []byte("SELECT COUNT(*) AS n FROM events;\n"), 0o600))
		out, _, err := run(t, "", "--config", cfg, "query", "-i", sqlFile, "-o", "csv")
		require.NoError(t, err)
		assert.Equal(t, "n\n2", strings.TrimSpace(out))
	})

	t.Run("empty", func(t *testing.T) {
		_, _, err := run(t, "  ;\n", "--config", cfg, "query")
		assert.EqualError(t, err, "no SQL given")
	})

	t.Run("bad sql", func(t *testing.T) {
		_, _, err := run(t, "", "--config", cfg, "query", "--source", "sales", "SELEC")
		assert.Equal(t, core.KindQueryExecution, core.KindOf(err))
	})
}

func TestArrowOutput(t *testing.T) {
	cfg := testutil.SetupTestProject(t)

	out, _, err := run(t, "", "--config", cfg, "get", "sales", "-o", "arrow")
	require.NoError(t, err)

	rdr, err := ipc.NewReader(strings.NewReader(out))
	require.NoError(t, err)
	defer rdr.Release()
	assert.Equal(t, "id", rdr.Schema().Field(0).Name)

	var rows int64
	for rdr.Next() {
		rows += rdr.Record().NumRows()
	}
	require.NoError(t, rdr.Err())
	assert.EqualValues(t, 4, rows)
}

func TestConnect(t *testing.T) {
	cfg := testutil.SetupTestProject(t)

	out, _, err := run(t, "", "--config", cfg, "connect", "-o", "json")
	require.NoError(t, err)
	var sources []string
	require.NoError(t, json.Unmarshal([]byte(out), &sources))
	assert.Equal(t, []string{"sales", "shop", "events"}, sources)
}

func TestBadOutputFormat(t *testing.T) {
	cfg := testutil.SetupTestProject(t)
	_, _, err := run(t, "", "--config", cfg, "sources", "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestMissingConfigFile(t *testing.T) {
	_, _, err := run(t, "", "--config", "/nonexistent/leapdata.yaml", "sources")
	assert.Error(t, err)
}

func TestTrace(t *testing.T) {
	cfg := testutil.SetupTestProject(t)

	_, errOut, err := run(t, "", "--config", cfg, "--trace", "query", "--source", "sales", "SELECT 1")
	require.NoError(t, err)
	assert.Contains(t, errOut, "executor.execute")
}

func TestCompletion(t *testing.T) {
	out, _, err := run(t, "", "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "leapdata")
}
