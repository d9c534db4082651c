// Package core defines the shared language of the leapdata system.
//
// This package contains:
//   - Source declarations (SourceDescriptor, SourceKind)
//   - The normalized tabular result (TabularResult, Column, ColumnType)
//   - Service interfaces (Adapter, Federated)
//   - The error taxonomy reported to callers
//
// pkg/core imports only the standard library and a small allowlist of
// value-level libraries (JSON, Arrow, UUID). All other packages depend on
// core, not the reverse.
package core
