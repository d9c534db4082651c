package config

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/leapstack-labs/leapdata/internal/testutil"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
query_timeout: 5s
watch: true
sources:
  - name: sales
    type: csv
    path: data/sales.csv
    options:
      delimiter: ";"
  - name: warehouse
    type: postgres
    host: ${TEST_PG_HOST}
    port: 6543
    database: analytics
    user: analyst
    password: env:PG_PASSWORD
    options: {sslmode: require}
  - name: landing
    type: s3
    uri: s3://bucket/landing/
    region: eu-west-1
  - name: events
    type: tsv
    path: /abs/events.tsv
    table: ev
`

func TestLoad_File(t *testing.T) {
	t.Setenv("TEST_PG_HOST", "db.internal")
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, ConfigFileName, sampleConfig)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
	assert.True(t, cfg.Watch)
	assert.Equal(t, DefaultOutput, cfg.Output)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, dir, cfg.BaseDir)
	require.Len(t, cfg.Sources, 4)

	descs, err := cfg.Descriptors()
	require.NoError(t, err)
	assert.Equal(t, []string{"sales", "warehouse", "landing", "events"},
		[]string{descs[0].Name, descs[1].Name, descs[2].Name, descs[3].Name})

	sales := descs[0]
	assert.Equal(t, core.KindCSV, sales.Kind)
	assert.Equal(t, filepath.Join(dir, "data/sales.csv"), sales.Location)
	assert.Equal(t, ";", sales.Options["delimiter"])

	wh := descs[1]
	assert.Equal(t, core.KindPostgres, wh.Kind)
	assert.Equal(t, "analytics", wh.Location)
	assert.Equal(t, "env:PG_PASSWORD", wh.Credentials)
	assert.Equal(t, map[string]string{
		"host": "db.internal", "port": "6543", "user": "analyst",
		"database": "analytics", "sslmode": "require",
	}, wh.Options)

	landing := descs[2]
	assert.Equal(t, core.KindS3, landing.Kind)
	assert.Equal(t, "s3://bucket/landing/", landing.Location)
	assert.Equal(t, "eu-west-1", landing.Options["region"])

	events := descs[3]
	assert.Equal(t, core.KindCSV, events.Kind)
	assert.Equal(t, "/abs/events.tsv", events.Location)
	assert.Equal(t, "\t", events.Options["delimiter"])
	assert.Equal(t, "ev", events.TableName())
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, ConfigFileName, "query_timeout: 5s\noutput: json\n")

	t.Setenv("LEAPDATA_QUERY_TIMEOUT", "2m")
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.QueryTimeout, "env overrides file")
	assert.Equal(t, "json", cfg.Output)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Duration("timeout", 0, "")
	flags.String("output", "", "")
	require.NoError(t, flags.Parse([]string{"--timeout=10s", "--output=csv"}))

	cfg, err = Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.QueryTimeout, "flags override env")
	assert.Equal(t, "csv", cfg.Output)
}

func TestLoad_Discovery(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, root, ConfigFileNameAlt, "sources:\n  - {name: a, type: csv, path: a.csv}\n")
	nested := filepath.Join(root, "x", "y")
	testutil.WriteFile(t, nested, "keep", "")

	t.Chdir(nested)
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ConfigFileNameAlt), cfg.ConfigFile)
	descs, err := cfg.Descriptors()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a.csv"), descs[0].Location)
}

func TestLoad_NoFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.ConfigFile)
	assert.Equal(t, DefaultQueryTimeout, cfg.QueryTimeout)
	assert.Empty(t, cfg.Sources)

	_, err = Load("/does/not/exist.yaml", nil)
	assert.Error(t, err)
}

func TestDescriptors_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  SourceConfig
	}{
		{"unknown type", SourceConfig{Name: "x", Type: "excel", Path: "x.xlsx"}},
		{"missing path", SourceConfig{Name: "x", Type: "parquet"}},
		{"missing name", SourceConfig{Type: "csv", Path: "x.csv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Sources: []SourceConfig{tt.src}}
			_, err := cfg.Descriptors()
			var invalid *core.InvalidSourceError
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LD_TEST_USER", "ada")
	assert.Equal(t, "ada@host", expandEnvVars("${LD_TEST_USER}@host"))
	assert.Equal(t, "${LD_TEST_UNSET}", expandEnvVars("${LD_TEST_UNSET}"))
	assert.Equal(t, "plain", expandEnvVars("plain"))
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	quiet := newLogger(&buf, false)
	quiet.Info("hidden")
	assert.Empty(t, buf.String())

	loud := newLogger(&buf, true)
	loud.Debug("shown")
	assert.Contains(t, buf.String(), "shown")

	ctx := WithLogger(context.Background(), loud)
	assert.Same(t, loud, GetLogger(ctx))
	assert.NotNil(t, GetLogger(context.Background()))
}
