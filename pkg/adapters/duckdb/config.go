package duckdb

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// settingPrefix marks source options that become DuckDB session settings,
// e.g. "setting.memory_limit: 2GB".
const settingPrefix = "setting."

// Extension names and setting keys are spliced into INSTALL, LOAD and SET.
var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Params holds DuckDB-specific source options.
// Decoded from core.SourceDescriptor.Options using mapstructure.
type Params struct {
	// Extensions to install and load (e.g., "httpfs", "spatial")
	Extensions []string `mapstructure:"extensions"`

	// Settings to apply on every connection (e.g., memory_limit, threads)
	Settings map[string]string `mapstructure:"settings"`

	// ReadOnly opens database files without write access (default true)
	ReadOnly bool `mapstructure:"read_only"`

	// Delimiter overrides CSV delimiter detection
	Delimiter string `mapstructure:"delimiter"`

	// Header overrides CSV header detection
	Header *bool `mapstructure:"header"`

	// Format forces the reader for object-store files (csv, json, parquet)
	Format string `mapstructure:"format"`
}

// ParseParams decodes DuckDB parameters from flat source options.
func ParseParams(opts map[string]string) (*Params, error) {
	input := map[string]any{"read_only": "true"}
	settings := make(map[string]any)
	for k, v := range opts {
		if strings.HasPrefix(k, settingPrefix) {
			settings[strings.TrimPrefix(k, settingPrefix)] = v
			continue
		}
		input[k] = v
	}
	if len(settings) > 0 {
		input["settings"] = settings
	}

	var p Params
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(input); err != nil {
		return nil, fmt.Errorf("invalid duckdb options: %w", err)
	}
	for i, ext := range p.Extensions {
		p.Extensions[i] = strings.TrimSpace(ext)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Params) validate() error {
	for _, ext := range p.Extensions {
		if ext != "" && !identifierRE.MatchString(ext) {
			return fmt.Errorf("invalid duckdb extension name %q", ext)
		}
	}
	for k := range p.Settings {
		if !identifierRE.MatchString(k) {
			return fmt.Errorf("invalid duckdb setting name %q", k)
		}
	}
	return nil
}
