package core

import (
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
)

// SourceKind identifies the backend of a data source.
type SourceKind string

// Supported source kinds.
const (
	KindCSV      SourceKind = "csv"
	KindJSON     SourceKind = "json"
	KindParquet  SourceKind = "parquet"
	KindDuckDB   SourceKind = "duckdb"
	KindSQLite   SourceKind = "sqlite"
	KindPostgres SourceKind = "postgres"
	KindMySQL    SourceKind = "mysql"
	KindS3       SourceKind = "s3"
	KindGCS      SourceKind = "gcs"
)

var kindAliases = map[string]SourceKind{
	"csv":        KindCSV,
	"tsv":        KindCSV,
	"json":       KindJSON,
	"ndjson":     KindJSON,
	"jsonl":      KindJSON,
	"parquet":    KindParquet,
	"duckdb":     KindDuckDB,
	"sqlite":     KindSQLite,
	"sqlite3":    KindSQLite,
	"postgres":   KindPostgres,
	"postgresql": KindPostgres,
	"pg":         KindPostgres,
	"mysql":      KindMySQL,
	"s3":         KindS3,
	"gcs":        KindGCS,
	"gs":         KindGCS,
}

// ParseSourceKind maps a declared source type, including common aliases, to a SourceKind.
func ParseSourceKind(s string) (SourceKind, error) {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown source type %q (supported: %s)", s, strings.Join(KindNames(), ", "))
}

// KindNames returns the canonical kind names, sorted.
func KindNames() []string {
	seen := make(map[SourceKind]bool)
	var names []string
	for _, k := range kindAliases {
		if !seen[k] {
			seen[k] = true
			names = append(names, string(k))
		}
	}
	sort.Strings(names)
	return names
}

// SingleTable reports whether sources of this kind expose exactly one table.
func (k SourceKind) SingleTable() bool {
	switch k {
	case KindCSV, KindJSON, KindParquet:
		return true
	}
	return false
}

// FileBacked reports whether the source reads a local file that can change on disk.
func (k SourceKind) FileBacked() bool {
	switch k {
	case KindCSV, KindJSON, KindParquet, KindDuckDB, KindSQLite:
		return true
	}
	return false
}

func (k SourceKind) String() string { return string(k) }

// SourceDescriptor is the declaration of a named data source.
// Descriptors are immutable once registered.
type SourceDescriptor struct {
	// Name is unique within a registry.
	Name string
	Kind SourceKind
	// Location is a file path, DSN/URI or bucket URL depending on Kind.
	Location string
	// Credentials is an opaque reference resolved at connect time:
	// "env:NAME", "file:/path" or a literal secret.
	Credentials string
	Options     map[string]string
}

// Option returns the named option or def when unset.
func (d SourceDescriptor) Option(key, def string) string {
	if v, ok := d.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// TableName returns the table name exposed by a single-table source.
func (d SourceDescriptor) TableName() string {
	return d.Option("table", d.Name)
}

// LocalPath returns the absolute path of a file-backed source, or "" otherwise.
func (d SourceDescriptor) LocalPath() string {
	if !d.Kind.FileBacked() || d.Location == "" || d.Location == ":memory:" {
		return ""
	}
	p, err := filepath.Abs(d.Location)
	if err != nil {
		return d.Location
	}
	return p
}

// Validate checks that the descriptor is well formed.
func (d SourceDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return &InvalidSourceError{Name: d.Name, Reason: "name is required"}
	}
	if k, err := ParseSourceKind(string(d.Kind)); err != nil || k != d.Kind {
		return &InvalidSourceError{Name: d.Name, Reason: fmt.Sprintf("unknown type %q", d.Kind)}
	}
	if d.Location == "" && d.Kind != KindPostgres && d.Kind != KindMySQL {
		return &InvalidSourceError{Name: d.Name, Reason: fmt.Sprintf("%s source requires a location", d.Kind)}
	}
	return nil
}

// Redacted returns a copy safe to print. Literal credentials and passwords
// embedded in URL locations are masked.
func (d SourceDescriptor) Redacted() SourceDescriptor {
	out := d
	if u, err := url.Parse(d.Location); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			// url.UserPassword would percent-escape the mask.
			user := url.User(u.User.Username())
			u.User = user
			out.Location = strings.Replace(u.String(), user.String()+"@", user.String()+":****@", 1)
		}
	}
	if d.Credentials != "" && !strings.HasPrefix(d.Credentials, "env:") && !strings.HasPrefix(d.Credentials, "file:") {
		out.Credentials = "****"
	}
	if len(d.Options) > 0 {
		out.Options = make(map[string]string, len(d.Options))
		for k, v := range d.Options {
			if k == "password" || k == "secret" {
				v = "****"
			}
			out.Options[k] = v
		}
	}
	return out
}
