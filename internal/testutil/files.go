package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteFile writes content to dir/name and returns the path.
func WriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteCSV writes a CSV file with a header and rows and returns the path.
func WriteCSV(t testing.TB, dir, name string, header []string, rows ...[]any) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(strings.Join(header, ","))
	b.WriteByte('\n')
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		b.WriteString(strings.Join(cells, ","))
		b.WriteByte('\n')
	}
	return WriteFile(t, dir, name, b.String())
}

// NumberedCSV writes a CSV with columns id,label and n rows.
func NumberedCSV(t testing.TB, dir, name string, n int) string {
	t.Helper()
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{i + 1, fmt.Sprintf("row-%d", i+1)}
	}
	return WriteCSV(t, dir, name, []string{"id", "label"}, rows...)
}
