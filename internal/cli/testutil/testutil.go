// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"regexp"
	"strings"
	"testing"

	roottestutil "github.com/leapstack-labs/leapdata/internal/testutil"
)

// SetupTestProject creates a temporary project with a leapdata.yaml declaring
// three sources and returns the config file path:
//
//   - sales: csv with columns id,region,amount (4 rows)
//   - shop: sqlite with tables customers (2 rows) and orders (3 rows)
//   - events: json with columns id,kind (2 rows)
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	roottestutil.WriteCSV(t, tmpDir, "data/sales.csv", []string{"id", "region", "amount"},
		[]any{1, "north", 10.5},
		[]any{2, "south", 20},
		[]any{3, "north", 4.5},
		[]any{4, "east", 7},
	)
	roottestutil.SQLiteDB(t, tmpDir, "data/shop.db",
		"CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT)",
		"CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER, total REAL)",
		"INSERT INTO customers VALUES (1, 'Alice'), (2, 'Bob')",
		"INSERT INTO orders VALUES (1, 1, 10.0), (2, 1, 5.5), (3, 2, 8.25)",
	)
	roottestutil.WriteFile(t, tmpDir, "data/events.json",
		`[{"id": 1, "kind": "click"}, {"id": 2, "kind": "view"}]`)

	return roottestutil.WriteFile(t, tmpDir, "leapdata.yaml", `query_timeout: 10s
sources:
  - name: sales
    type: csv
    path: data/sales.csv
  - name: shop
    type: sqlite
    path: data/shop.db
  - name: events
    type: json
    path: data/events.json
    password: hunter2
`)
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertContainsAll checks that s contains every expected substring.
func AssertContainsAll(t *testing.T, s string, expected ...string) {
	t.Helper()
	for _, e := range expected {
		if !strings.Contains(s, e) {
			t.Errorf("output does not contain %q:\n%s", e, s)
		}
	}
}
