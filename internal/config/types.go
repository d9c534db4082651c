// Package config loads leapdata configuration: service settings and the
// declared data sources.
package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/leapstack-labs/leapdata/pkg/core"
)

// Config is the loaded configuration.
type Config struct {
	QueryTimeout time.Duration `koanf:"query_timeout"`
	Watch        bool          `koanf:"watch"`
	Verbose      bool          `koanf:"verbose"`
	Output       string        `koanf:"output"`
	Listen       string        `koanf:"listen"`
	Trace        bool          `koanf:"trace"`

	Sources []SourceConfig `koanf:"sources"`

	// ConfigFile is the file the configuration was read from, if any.
	ConfigFile string `koanf:"-"`
	// BaseDir anchors relative source paths. It is the config file's directory.
	BaseDir string `koanf:"-"`
}

// SourceConfig is one declared source as written in leapdata.yaml.
// Which fields apply depends on Type.
type SourceConfig struct {
	Name string `koanf:"name"`
	Type string `koanf:"type"` // csv, json, parquet, duckdb, sqlite, postgres, mysql, s3, gcs

	// File-based sources
	Path string `koanf:"path"`

	// Object stores and URL-style databases
	URI string `koanf:"uri"`
	DSN string `koanf:"dsn"`

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	// Object stores
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"`

	// Credentials is an env:NAME, file:/path or literal secret reference.
	Credentials string `koanf:"credentials"`

	// Table renames the table of a single-table source.
	Table string `koanf:"table"`

	// Options holds adapter-specific settings (delimiter, extensions, sslmode, ...).
	Options map[string]string `koanf:"options"`
}

// Descriptor converts the declaration into a source descriptor. Relative
// file paths are resolved against baseDir and ${VAR} references expanded.
func (s SourceConfig) Descriptor(baseDir string) (core.SourceDescriptor, error) {
	kind, err := core.ParseSourceKind(s.Type)
	if err != nil {
		return core.SourceDescriptor{}, &core.InvalidSourceError{Name: s.Name, Reason: err.Error()}
	}

	opts := make(map[string]string, len(s.Options)+6)
	for k, v := range s.Options {
		opts[k] = expandEnvVars(v)
	}
	set := func(key, value string) {
		if value != "" {
			opts[key] = expandEnvVars(value)
		}
	}
	set("host", s.Host)
	set("user", s.User)
	set("region", s.Region)
	set("endpoint", s.Endpoint)
	set("table", s.Table)
	if s.Port != 0 {
		opts["port"] = strconv.Itoa(s.Port)
	}
	if s.Database != "" && (kind == core.KindPostgres || kind == core.KindMySQL) {
		set("database", s.Database)
	}
	if s.Type == "tsv" && opts["delimiter"] == "" {
		opts["delimiter"] = "\t"
	}

	location := expandEnvVars(firstNonEmpty(s.Path, s.URI, s.DSN, s.Database))
	if kind.FileBacked() && location != "" && location != ":memory:" && !filepath.IsAbs(location) && !isURL(location) && baseDir != "" {
		location = filepath.Join(baseDir, location)
	}

	credentials := s.Credentials
	if credentials == "" {
		credentials = s.Password
	}

	desc := core.SourceDescriptor{
		Name:        s.Name,
		Kind:        kind,
		Location:    location,
		Credentials: expandEnvVars(credentials),
	}
	if len(opts) > 0 {
		desc.Options = opts
	}
	if err := desc.Validate(); err != nil {
		return core.SourceDescriptor{}, err
	}
	return desc, nil
}

// Descriptors converts every declared source, in order.
func (c *Config) Descriptors() ([]core.SourceDescriptor, error) {
	descs := make([]core.SourceDescriptor, 0, len(c.Sources))
	for i, s := range c.Sources {
		d, err := s.Descriptor(c.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		descs = append(descs, d)
	}
	return descs, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func isURL(s string) bool {
	for _, prefix := range []string{"http://", "https://", "s3://", "gs://", "gcs://"} {
		if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
