// Package adapter provides the shared machinery behind leapdata's source adapters.
//
// This package contains the adapter registry, the database/sql base adapter
// and the row normalization every adapter funnels its results through.
// Concrete adapter implementations are in pkg/adapters/ subdirectories and
// register themselves from init().
package adapter

import (
	"github.com/leapstack-labs/leapdata/pkg/core"
)

// Type aliases so adapter implementations can depend on one package.
type (
	// Adapter is an alias for core.Adapter.
	Adapter = core.Adapter

	// Descriptor is an alias for core.SourceDescriptor.
	Descriptor = core.SourceDescriptor

	// Result is an alias for core.TabularResult.
	Result = core.TabularResult
)
