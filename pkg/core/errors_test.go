package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"unknown", &UnknownSourceError{Name: "x"}, KindUnknownSource},
		{"duplicate", &DuplicateSourceError{Name: "x"}, KindDuplicateSource},
		{"invalid", &InvalidSourceError{Name: "x", Reason: "bad"}, KindInvalidSource},
		{"not initialized", &NotInitializedError{}, KindNotInitialized},
		{"connection", &ConnectionError{Source: "x", Err: errors.New("refused")}, KindConnection},
		{"ambiguous", &AmbiguousTableError{Source: "x", Tables: []string{"a", "b"}}, KindAmbiguousTable},
		{"unsupported", &UnsupportedTypeError{Column: "c", DatabaseType: "BLOB"}, KindUnsupportedType},
		{"query", &QueryExecutionError{Err: errors.New("syntax")}, KindQueryExecution},
		{"compute", &CacheComputationError{Key: "k", Err: errors.New("boom")}, KindCacheComputation},
		{
			"compute wrapping ambiguous reports the cause",
			&CacheComputationError{Key: "k", Err: &AmbiguousTableError{Source: "db"}},
			KindAmbiguousTable,
		},
		{
			"wrapped with fmt",
			fmt.Errorf("outer: %w", &ConnectionError{Source: "x", Err: context.Canceled}),
			KindConnection,
		},
		{"plain", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestReport(t *testing.T) {
	err := &CacheComputationError{
		Key: "db/",
		Err: &QueryExecutionError{Source: "db", SQL: "SELEC 1", Err: errors.New("syntax error")},
	}
	r := Report(err)
	assert.Equal(t, KindQueryExecution, r.Kind)
	assert.Equal(t, "db", r.Source)
	assert.Contains(t, r.Message, "syntax error")
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, `unknown source "x" (available: a, b)`,
		(&UnknownSourceError{Name: "x", Available: []string{"a", "b"}}).Error())
	assert.Equal(t, `unknown source "x" (no sources declared)`, (&UnknownSourceError{Name: "x"}).Error())
	assert.Equal(t, "query: data service not initialized", (&NotInitializedError{Op: "query"}).Error())
	assert.Equal(t, `source "db" has 2 tables, specify one of: a, b`,
		(&AmbiguousTableError{Source: "db", Tables: []string{"a", "b"}}).Error())

	cause := fmt.Errorf("x: %w", ErrOverflow)
	unsup := &UnsupportedTypeError{Column: "n", DatabaseType: "UBIGINT", Err: cause}
	assert.True(t, errors.Is(unsup, ErrOverflow))
	assert.Contains(t, unsup.Error(), "UBIGINT")
}
