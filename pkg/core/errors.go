package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel causes wrapped by the taxonomy errors below.
var (
	// ErrOverflow marks a value that does not fit the normalized integer type.
	ErrOverflow = errors.New("value overflows int64")
	// ErrTableNotFound marks a table name that the source does not expose.
	ErrTableNotFound = errors.New("table not found")
	// ErrClosed is returned by components used after teardown.
	ErrClosed = errors.New("closed")
)

// UnknownSourceError is returned when a source name is not registered.
type UnknownSourceError struct {
	Name      string
	Available []string
}

func (e *UnknownSourceError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown source %q (no sources declared)", e.Name)
	}
	return fmt.Sprintf("unknown source %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// DuplicateSourceError is returned when a source name is declared twice.
type DuplicateSourceError struct {
	Name string
}

func (e *DuplicateSourceError) Error() string {
	return fmt.Sprintf("duplicate source %q", e.Name)
}

// InvalidSourceError is returned for a malformed source declaration.
type InvalidSourceError struct {
	Name   string
	Reason string
}

func (e *InvalidSourceError) Error() string {
	if e.Name == "" {
		return "invalid source: " + e.Reason
	}
	return fmt.Sprintf("invalid source %q: %s", e.Name, e.Reason)
}

// NotInitializedError is returned when the service is used before init or after shutdown.
type NotInitializedError struct {
	Op string
}

func (e *NotInitializedError) Error() string {
	if e.Op == "" {
		return "data service not initialized"
	}
	return fmt.Sprintf("%s: data service not initialized", e.Op)
}

// ConnectionError wraps a failure to open a source.
type ConnectionError struct {
	Source string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to source %q: %v", e.Source, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AmbiguousTableError is returned when a multi-table source is read without a table name.
type AmbiguousTableError struct {
	Source string
	Tables []string
}

func (e *AmbiguousTableError) Error() string {
	return fmt.Sprintf("source %q has %d tables, specify one of: %s", e.Source, len(e.Tables), strings.Join(e.Tables, ", "))
}

// UnsupportedTypeError is returned when a column cannot be normalized.
type UnsupportedTypeError struct {
	Column       string
	DatabaseType string
	Err          error
}

func (e *UnsupportedTypeError) Error() string {
	msg := fmt.Sprintf("column %q: unsupported type %s", e.Column, e.DatabaseType)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnsupportedTypeError) Unwrap() error { return e.Err }

// QueryExecutionError wraps malformed SQL or an engine-side failure.
type QueryExecutionError struct {
	Source string
	SQL    string
	Err    error
}

func (e *QueryExecutionError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("query failed: %v", e.Err)
	}
	return fmt.Sprintf("query on source %q failed: %v", e.Source, e.Err)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }

// CacheComputationError is the failure of a cached computation, delivered to every waiter.
type CacheComputationError struct {
	Key string
	Err error
}

func (e *CacheComputationError) Error() string {
	return fmt.Sprintf("compute %s: %v", e.Key, e.Err)
}

func (e *CacheComputationError) Unwrap() error { return e.Err }

// ErrorKind classifies errors for reporting.
type ErrorKind string

// Reported error kinds.
const (
	KindUnknownSource    ErrorKind = "unknown_source"
	KindDuplicateSource  ErrorKind = "duplicate_source"
	KindInvalidSource    ErrorKind = "invalid_source"
	KindNotInitialized   ErrorKind = "not_initialized"
	KindConnection       ErrorKind = "connection"
	KindAmbiguousTable   ErrorKind = "ambiguous_table"
	KindUnsupportedType  ErrorKind = "unsupported_type"
	KindQueryExecution   ErrorKind = "query_execution"
	KindCacheComputation ErrorKind = "cache_computation"
	KindInternal         ErrorKind = "internal"
)

// KindOf returns the most specific taxonomy kind found in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var (
		notInit   *NotInitializedError
		unknown   *UnknownSourceError
		dup       *DuplicateSourceError
		invalid   *InvalidSourceError
		ambiguous *AmbiguousTableError
		unsup     *UnsupportedTypeError
		conn      *ConnectionError
		query     *QueryExecutionError
		compute   *CacheComputationError
	)
	switch {
	case errors.As(err, &notInit):
		return KindNotInitialized
	case errors.As(err, &unknown):
		return KindUnknownSource
	case errors.As(err, &dup):
		return KindDuplicateSource
	case errors.As(err, &invalid):
		return KindInvalidSource
	case errors.As(err, &ambiguous):
		return KindAmbiguousTable
	case errors.As(err, &unsup):
		return KindUnsupportedType
	case errors.As(err, &conn):
		return KindConnection
	case errors.As(err, &query):
		return KindQueryExecution
	case errors.As(err, &compute):
		return KindCacheComputation
	}
	return KindInternal
}

// IsTaxonomy reports whether err already carries one of the reported kinds.
func IsTaxonomy(err error) bool {
	return KindOf(err) != KindInternal
}

// ErrorReport is the uniform reported form of a failed call.
type ErrorReport struct {
	Kind    ErrorKind `json:"kind"`
	Source  string    `json:"source,omitempty"`
	Message string    `json:"message"`
}

// Report converts err into its reported form.
func Report(err error) ErrorReport {
	r := ErrorReport{Kind: KindOf(err), Message: err.Error()}
	r.Source = sourceOf(err)
	return r
}

func sourceOf(err error) string {
	var (
		unknown   *UnknownSourceError
		dup       *DuplicateSourceError
		ambiguous *AmbiguousTableError
		conn      *ConnectionError
		query     *QueryExecutionError
	)
	switch {
	case errors.As(err, &unknown):
		return unknown.Name
	case errors.As(err, &dup):
		return dup.Name
	case errors.As(err, &ambiguous):
		return ambiguous.Source
	case errors.As(err, &conn):
		return conn.Source
	case errors.As(err, &query):
		return query.Source
	}
	return ""
}
