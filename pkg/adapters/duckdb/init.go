package duckdb

import (
	"log/slog"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/core"
)

// Import this package with a blank identifier to register the adapters:
//
//	import _ "github.com/leapstack-labs/leapdata/pkg/adapters/duckdb"
func init() {
	adapter.Register(core.KindDuckDB, func(l *slog.Logger) adapter.Adapter { return New(l) })
	for _, kind := range []core.SourceKind{core.KindCSV, core.KindJSON, core.KindParquet} {
		adapter.Register(kind, func(l *slog.Logger) adapter.Adapter { return NewFile(kind, l) })
	}
}
