package adapter

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/leapdata/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockBase(t *testing.T) (*BaseSQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &BaseSQLAdapter{DB: db}, mock
}

func TestBaseSQLAdapter_Close(t *testing.T) {
	tests := []struct {
		name    string
		setupDB bool
	}{
		{name: "close with nil DB", setupDB: false},
		{name: "close with open DB", setupDB: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &BaseSQLAdapter{}

			if tt.setupDB {
				db, mock, err := sqlmock.New()
				require.NoError(t, err)
				mock.ExpectClose()
				base.DB = db
			}

			require.NoError(t, base.Close())
			assert.False(t, base.IsConnected())
			// A second close is a no-op.
			require.NoError(t, base.Close())
		})
	}
}

func TestBaseSQLAdapter_QueryNotConnected(t *testing.T) {
	base := &BaseSQLAdapter{}
	_, err := base.Query(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not established")

	_, err = base.TablesFromQuery(context.Background(), "SELECT 1")
	require.Error(t, err)
}

func TestBaseSQLAdapter_QueryNormalizesTypes(t *testing.T) {
	base, mock := newMockBase(t)
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	rows := mock.NewRowsWithColumnDefinition(
		mock.NewColumn("id").OfType("INT4", int32(0)),
		mock.NewColumn("name").OfType("VARCHAR", ""),
		mock.NewColumn("amount").OfType("NUMERIC", ""),
		mock.NewColumn("active").OfType("BOOL", false),
		mock.NewColumn("created").OfType("TIMESTAMP", time.Time{}),
	).
		AddRow(int32(1), "alice", []byte("10.50"), true, ts).
		AddRow(int32(2), nil, nil, false, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM orders")).WillReturnRows(rows)

	res, err := base.Query(context.Background(), "SELECT * FROM orders")
	require.NoError(t, err)

	require.Equal(t, 5, res.NumColumns())
	assert.Equal(t, core.TypeInteger, res.Columns[0].Type)
	assert.Equal(t, core.TypeString, res.Columns[1].Type)
	assert.Equal(t, core.TypeFloat, res.Columns[2].Type)
	assert.Equal(t, core.TypeBoolean, res.Columns[3].Type)
	assert.Equal(t, core.TypeTimestamp, res.Columns[4].Type)
	assert.Equal(t, "NUMERIC", res.Columns[2].DatabaseType)

	require.Equal(t, 2, res.NumRows())
	assert.Equal(t, []any{int64(1), "alice", 10.5, true, ts}, res.Rows[0])
	assert.Equal(t, []any{int64(2), nil, nil, false, nil}, res.Rows[1])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBaseSQLAdapter_QueryInfersUntypedColumns(t *testing.T) {
	base, mock := newMockBase(t)

	rows := sqlmock.NewRows([]string{"n", "label", "empty"}).
		AddRow(nil, nil, nil).
		AddRow(int64(7), "x", nil)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	res, err := base.Query(context.Background(), "SELECT 7")
	require.NoError(t, err)
	assert.Equal(t, core.TypeInteger, res.Columns[0].Type)
	assert.Equal(t, core.TypeString, res.Columns[1].Type)
	assert.Equal(t, core.TypeNull, res.Columns[2].Type)
	assert.Equal(t, []any{nil, nil, nil}, res.Rows[0])
	assert.Equal(t, []any{int64(7), "x", nil}, res.Rows[1])
}

func TestBaseSQLAdapter_QueryUnsupportedType(t *testing.T) {
	base, mock := newMockBase(t)

	rows := mock.NewRowsWithColumnDefinition(
		mock.NewColumn("payload").OfType("BYTEA", []byte{}),
	).AddRow([]byte{0x01})
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	_, err := base.Query(context.Background(), "SELECT payload FROM t")
	var unsup *core.UnsupportedTypeError
	require.ErrorAs(t, err, &unsup)
	assert.Equal(t, "payload", unsup.Column)
	assert.Equal(t, "BYTEA", unsup.DatabaseType)
}

func TestBaseSQLAdapter_QueryOverflowFailsLoudly(t *testing.T) {
	base, mock := newMockBase(t)

	rows := mock.NewRowsWithColumnDefinition(
		mock.NewColumn("big").OfType("BIGINT UNSIGNED", ""),
	).AddRow("18446744073709551615")
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	_, err := base.Query(context.Background(), "SELECT big FROM t")
	var unsup *core.UnsupportedTypeError
	require.ErrorAs(t, err, &unsup)
	assert.True(t, errors.Is(err, core.ErrOverflow))
}

func TestBaseSQLAdapter_QueryError(t *testing.T) {
	base, mock := newMockBase(t)
	mock.ExpectQuery("SELEC").WillReturnError(errors.New("syntax error at or near SELEC"))

	_, err := base.Query(context.Background(), "SELEC 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute query")
	assert.Contains(t, err.Error(), "syntax error")
}

func TestBaseSQLAdapter_ReadTableQuotes(t *testing.T) {
	tests := []struct {
		name  string
		table string
		quote func(string) string
		want  string
	}{
		{"plain", "orders", nil, `SELECT * FROM "orders"`},
		{"schema qualified", "sales.orders", nil, `SELECT * FROM "sales"."orders"`},
		{"embedded quote", `we"ird`, nil, `SELECT * FROM "we""ird"`},
		{"backticks", "orders", func(s string) string { return "`" + s + "`" }, "SELECT * FROM `orders`"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, mock := newMockBase(t)
			base.Quote = tt.quote
			mock.ExpectQuery(regexp.QuoteMeta(tt.want)).WillReturnRows(sqlmock.NewRows([]string{"a"}))

			_, err := base.ReadTable(context.Background(), tt.table)
			require.NoError(t, err)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBaseSQLAdapter_TablesFromQuery(t *testing.T) {
	base, mock := newMockBase(t)
	mock.ExpectQuery("information_schema").
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("users").AddRow("orders"))

	tables, err := base.TablesFromQuery(context.Background(),
		"SELECT table_name FROM information_schema.tables WHERE table_schema = $1", "public")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, tables)
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, `'it''s'`, QuoteLiteral("it's"))
	assert.Equal(t, `'/tmp/a.csv'`, QuoteLiteral("/tmp/a.csv"))
}
