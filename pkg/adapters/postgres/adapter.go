// Package postgres provides a PostgreSQL source adapter for leapdata.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/core"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

// DefaultSchema is used when a source does not set the schema option.
const DefaultSchema = "public"

// Adapter implements adapter.Adapter for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
	schema string
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Connect establishes a connection to PostgreSQL.
func (a *Adapter) Connect(ctx context.Context, desc core.SourceDescriptor) error {
	password, err := adapter.ResolveCredential(desc.Credentials)
	if err != nil {
		return err
	}
	dsn, err := buildPostgresDSN(desc, password)
	if err != nil {
		return err
	}

	db, err := adapter.OpenDB(ctx, "pgx", dsn)
	if err != nil {
		return err
	}

	a.DB = db
	a.Source = desc
	a.schema = desc.Option("schema", DefaultSchema)
	a.Logger.Debug("connected to postgres", "host", desc.Option("host", "localhost"), "schema", a.schema)
	return nil
}

// buildPostgresDSN returns the connection string for a source.
// A URL or key=value Location is used as given; otherwise the DSN is
// assembled from the host, port, database, user and sslmode options.
func buildPostgresDSN(desc core.SourceDescriptor, password string) (string, error) {
	loc := desc.Location
	switch {
	case strings.HasPrefix(loc, "postgres://"), strings.HasPrefix(loc, "postgresql://"):
		if password == "" {
			return loc, nil
		}
		u, err := url.Parse(loc)
		if err != nil {
			return "", fmt.Errorf("invalid postgres url: %w", err)
		}
		user := desc.Option("user", "")
		if u.User != nil {
			user = u.User.Username()
		}
		u.User = url.UserPassword(user, password)
		return u.String(), nil
	case strings.Contains(loc, "="):
		if password != "" {
			loc += " password=" + password
		}
		return loc, nil
	}

	// Build key=value format: host=localhost port=5432 user=postgres ...
	host := desc.Option("host", "localhost")
	port, err := strconv.Atoi(desc.Option("port", "5432"))
	if err != nil {
		return "", fmt.Errorf("invalid port %q", desc.Options["port"])
	}
	database := desc.Option("database", loc)
	sslmode := desc.Option("sslmode", "disable")

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", host, port, database, sslmode)
	if user := desc.Option("user", ""); user != "" {
		dsn += fmt.Sprintf(" user=%s", user)
	}
	if password != "" {
		dsn += fmt.Sprintf(" password=%s", password)
	}
	return dsn, nil
}

// Tables lists tables and views of the configured schema.
func (a *Adapter) Tables(ctx context.Context) ([]string, error) {
	return a.TablesFromQuery(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
	`, a.schemaName())
}

// ReadTable reads a table; unqualified names resolve in the configured schema.
func (a *Adapter) ReadTable(ctx context.Context, table string) (*core.TabularResult, error) {
	if !strings.Contains(table, ".") {
		table = a.schemaName() + "." + table
	}
	return a.BaseSQLAdapter.ReadTable(ctx, table)
}

func (a *Adapter) schemaName() string {
	if a.schema == "" {
		return DefaultSchema
	}
	return a.schema
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
