package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// SQLiteDB creates a SQLite database at dir/name by running stmts and
// returns its path. The "sqlite" driver must be registered by the caller.
func SQLiteDB(t testing.TB, dir, name string, stmts ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer func() { _ = db.Close() }()
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("%s: %v", s, err)
		}
	}
	return path
}
