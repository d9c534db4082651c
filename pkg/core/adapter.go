package core

import "context"

// Adapter is a live connection to one data source.
// Implementations normalize every result into a TabularResult.
type Adapter interface {
	// Connect opens the source described by desc. Partial resources are
	// released before a failing Connect returns.
	Connect(ctx context.Context, desc SourceDescriptor) error

	// Close releases the connection.
	Close() error

	// Query runs sql against the source.
	Query(ctx context.Context, sql string) (*TabularResult, error)

	// Tables lists the tables the source exposes, sorted.
	Tables(ctx context.Context) ([]string, error)

	// ReadTable returns the full contents of one table.
	ReadTable(ctx context.Context, table string) (*TabularResult, error)
}

// Exclusive is implemented by adapters whose connection must not be used
// by more than one caller at a time.
type Exclusive interface {
	Exclusive() bool
}

// NativeRelation is implemented by adapters whose tables can be read
// directly by the embedded engine. Relation returns a table expression
// such as read_parquet('/data/x.parquet').
type NativeRelation interface {
	Relation(table string) (string, bool)
}

// Federated runs SQL across every attached source.
type Federated interface {
	Sources() []string
	Query(ctx context.Context, sql string) (*TabularResult, error)
}
