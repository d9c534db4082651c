// Package mysql provides a MySQL source adapter for leapdata.
package mysql

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/core"
)

// Adapter implements adapter.Adapter for MySQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new MySQL adapter instance.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger, Quote: quoteIdent},
	}
}

// Connect establishes a connection to MySQL.
func (a *Adapter) Connect(ctx context.Context, desc core.SourceDescriptor) error {
	password, err := adapter.ResolveCredential(desc.Credentials)
	if err != nil {
		return err
	}
	cfg, err := buildMySQLConfig(desc, password)
	if err != nil {
		return err
	}

	db, err := adapter.OpenDB(ctx, "mysql", cfg.FormatDSN())
	if err != nil {
		return err
	}
	a.DB = db
	a.Source = desc
	a.Logger.Debug("connected to mysql", "addr", cfg.Addr, "database", cfg.DBName)
	return nil
}

// buildMySQLConfig parses a DSN Location, or assembles one from options.
// Timestamps are always parsed into time.Time.
func buildMySQLConfig(desc core.SourceDescriptor, password string) (*mysql.Config, error) {
	var cfg *mysql.Config
	if strings.ContainsAny(desc.Location, "@/") {
		parsed, err := mysql.ParseDSN(desc.Location)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(desc.Option("host", "localhost"), desc.Option("port", "3306"))
		cfg.DBName = desc.Option("database", desc.Location)
		cfg.User = desc.Option("user", "")
	}
	if password != "" {
		cfg.Passwd = password
	}
	if tls := desc.Option("tls", ""); tls != "" {
		cfg.TLSConfig = tls
	}
	cfg.ParseTime = true
	return cfg, nil
}

// Tables lists tables and views of the connected database.
func (a *Adapter) Tables(ctx context.Context) ([]string, error) {
	return a.TablesFromQuery(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
	`)
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
