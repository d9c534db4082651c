package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapdata/pkg/core"
)

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Query and ReadTable implementations.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Source core.SourceDescriptor
	Logger *slog.Logger
	// Quote quotes one identifier. Nil means ANSI double quotes.
	Quote func(string) string
}

// OpenDB opens and pings a database/sql handle, closing it again if the
// ping fails so no partial connection leaks.
func OpenDB(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}
	return db, nil
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		err := b.DB.Close()
		b.DB = nil
		return err
	}
	return nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// Query executes a SQL statement and normalizes its rows.
func (b *BaseSQLAdapter) Query(ctx context.Context, sqlStr string) (*core.TabularResult, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	rows, err := b.DB.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return ScanRows(rows)
}

// ReadTable selects every row of a table. Dotted names are treated as schema.table.
func (b *BaseSQLAdapter) ReadTable(ctx context.Context, table string) (*core.TabularResult, error) {
	return b.Query(ctx, "SELECT * FROM "+b.QualifiedName(table))
}

// TablesFromQuery runs a catalog query whose first column is a table name.
func (b *BaseSQLAdapter) TablesFromQuery(ctx context.Context, query string, args ...any) ([]string, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	rows, err := b.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	sort.Strings(tables)
	return tables, nil
}

// QualifiedName quotes each dot-separated part of a table reference.
func (b *BaseSQLAdapter) QualifiedName(table string) string {
	quote := b.Quote
	if quote == nil {
		quote = QuoteIdent
	}
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = quote(p)
	}
	return strings.Join(parts, ".")
}

// QuoteIdent quotes an identifier with ANSI double quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral quotes a string literal with single quotes.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
