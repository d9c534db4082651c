package duckdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name    string
		input   map[string]string
		want    *Params
		wantErr bool
	}{
		{
			name:  "nil options defaults to read-only",
			input: nil,
			want:  &Params{ReadOnly: true},
		},
		{
			name:  "extensions as comma list",
			input: map[string]string{"extensions": "httpfs, spatial"},
			want:  &Params{ReadOnly: true, Extensions: []string{"httpfs", "spatial"}},
		},
		{
			name: "settings from prefixed keys",
			input: map[string]string{
				"setting.memory_limit": "4GB",
				"setting.threads":      "4",
			},
			want: &Params{ReadOnly: true, Settings: map[string]string{"memory_limit": "4GB", "threads": "4"}},
		},
		{
			name:  "read_only can be disabled",
			input: map[string]string{"read_only": "false"},
			want:  &Params{ReadOnly: false},
		},
		{
			name:  "csv options",
			input: map[string]string{"delimiter": ";", "header": "true"},
			want:  &Params{ReadOnly: true, Delimiter: ";", Header: &yes},
		},
		{
			name:  "header false",
			input: map[string]string{"header": "0"},
			want:  &Params{ReadOnly: true, Header: &no},
		},
		{
			name:  "unrelated options are ignored",
			input: map[string]string{"table": "orders"},
			want:  &Params{ReadOnly: true},
		},
		{
			name:    "bad bool",
			input:   map[string]string{"read_only": "sometimes"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParams(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBootQueries(t *testing.T) {
	qs := bootQueries(&Params{
		Extensions: []string{"httpfs", ""},
		Settings:   map[string]string{"threads": "2", "memory_limit": "1GB"},
	})
	assert.Equal(t, []string{
		"INSTALL httpfs",
		"LOAD httpfs",
		"SET memory_limit = '1GB'",
		"SET threads = '2'",
	}, qs)
}

func TestParseParams_RejectsUnsafeNames(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]string
	}{
		{"extension with statement", map[string]string{"extensions": "httpfs; DROP TABLE t"}},
		{"extension with quote", map[string]string{"extensions": "spatial,'x'"}},
		{"setting key with space", map[string]string{"setting.threads = 1; SELECT": "2"}},
		{"setting key with dash", map[string]string{"setting.memory-limit": "1GB"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseParams(tt.input)
			assert.Error(t, err)
		})
	}

	p, err := ParseParams(map[string]string{"extensions": "httpfs, json", "setting.memory_limit": "1GB"})
	require.NoError(t, err)
	assert.Equal(t, []string{"httpfs", "json"}, p.Extensions)
}

func TestOpen_RejectsUnsafeNames(t *testing.T) {
	_, err := OpenMemory(context.Background(), &Params{Extensions: []string{"x; DROP TABLE t"}})
	assert.Error(t, err)
	_, err = OpenMemory(context.Background(), &Params{Settings: map[string]string{"a b": "1"}})
	assert.Error(t, err)
}
