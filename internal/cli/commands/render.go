package commands

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapdata/pkg/core"
)

// Output formats.
const (
	FormatTable    = "table"
	FormatMarkdown = "md"
	FormatCSV      = "csv"
	FormatJSON     = "json"
	FormatYAML     = "yaml"
	FormatArrow    = "arrow"
)

// Formats lists the accepted --output values.
var Formats = []string{FormatTable, FormatMarkdown, FormatCSV, FormatJSON, FormatYAML, FormatArrow}

// ParseFormat normalizes an --output value.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", FormatTable:
		return FormatTable, nil
	case FormatMarkdown, "markdown":
		return FormatMarkdown, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	case FormatArrow:
		return FormatArrow, nil
	}
	return "", fmt.Errorf("unknown output format %q (supported: %s)", s, strings.Join(Formats, ", "))
}

// Renderer writes results in the configured format.
type Renderer struct {
	w      io.Writer
	format string
}

// NewRenderer creates a renderer. Unknown formats fall back to table.
func NewRenderer(w io.Writer, format string) *Renderer {
	f, err := ParseFormat(format)
	if err != nil {
		f = FormatTable
	}
	return &Renderer{w: w, format: f}
}

// Format returns the output format.
func (r *Renderer) Format() string { return r.format }

// Result renders a tabular result.
func (r *Renderer) Result(res *core.TabularResult) error {
	switch r.format {
	case FormatJSON:
		return r.json(res)
	case FormatYAML:
		return r.yaml(res.Records())
	case FormatArrow:
		return r.arrow(res)
	case FormatCSV:
		return r.csv(res)
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.w)
	t.SetStyle(table.StyleLight)
	header := make(table.Row, res.NumColumns())
	for i, name := range res.ColumnNames() {
		header[i] = name
	}
	t.AppendHeader(header)
	for _, row := range res.Rows {
		out := make(table.Row, len(row))
		for i, v := range row {
			out[i] = formatValue(v)
		}
		t.AppendRow(out)
	}

	switch r.format {
	case FormatMarkdown:
		t.RenderMarkdown()
	default:
		if res.NumRows() == 0 {
			_, _ = fmt.Fprintln(r.w, "(0 rows)")
			return nil
		}
		t.Render()
		_, _ = fmt.Fprintf(r.w, "(%d rows)\n", res.NumRows())
	}
	return nil
}

// List renders a single column of names.
func (r *Renderer) List(header string, items []string) error {
	switch r.format {
	case FormatJSON:
		return r.json(items)
	case FormatYAML:
		return r.yaml(items)
	}
	rows := make([][]any, len(items))
	for i, item := range items {
		rows[i] = []any{item}
	}
	res, err := core.NewTabularResult([]core.Column{{Name: header, Type: core.TypeString}}, rows)
	if err != nil {
		return err
	}
	return r.Result(res)
}

// sourceView is the printed form of a declared source.
type sourceView struct {
	Name        string            `json:"name" yaml:"name"`
	Type        string            `json:"type" yaml:"type"`
	Location    string            `json:"location,omitempty" yaml:"location,omitempty"`
	Credentials string            `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	Options     map[string]string `json:"options,omitempty" yaml:"options,omitempty"`
}

// Sources renders source declarations with credentials redacted.
func (r *Renderer) Sources(descs []core.SourceDescriptor) error {
	views := make([]sourceView, len(descs))
	for i, d := range descs {
		d = d.Redacted()
		views[i] = sourceView{
			Name:        d.Name,
			Type:        d.Kind.String(),
			Location:    d.Location,
			Credentials: d.Credentials,
			Options:     d.Options,
		}
	}
	switch r.format {
	case FormatJSON:
		return r.json(views)
	case FormatYAML:
		return r.yaml(views)
	}

	rows := make([][]any, len(views))
	for i, v := range views {
		rows[i] = []any{v.Name, v.Type, v.Location}
	}
	res, err := core.NewTabularResult([]core.Column{
		{Name: "name", Type: core.TypeString},
		{Name: "type", Type: core.TypeString},
		{Name: "location", Type: core.TypeString},
	}, rows)
	if err != nil {
		return err
	}
	return r.Result(res)
}

// Error renders a failed call in its reported form.
func (r *Renderer) Error(w io.Writer, err error) {
	rep := core.Report(err)
	if r.format == FormatJSON {
		_ = json.NewEncoder(w).Encode(rep)
		return
	}
	if rep.Source != "" {
		_, _ = fmt.Fprintf(w, "Error [%s] %s: %s\n", rep.Kind, rep.Source, rep.Message)
		return
	}
	_, _ = fmt.Fprintf(w, "Error [%s]: %s\n", rep.Kind, rep.Message)
}

// csv writes RFC 4180 records; go-pretty escapes commas with backslashes.
func (r *Renderer) csv(res *core.TabularResult) error {
	w := csv.NewWriter(r.w)
	if err := w.Write(res.ColumnNames()); err != nil {
		return err
	}
	record := make([]string, res.NumColumns())
	for _, row := range res.Rows {
		for i, v := range row {
			record[i] = ""
			if v != nil {
				record[i] = formatValue(v)
			}
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (r *Renderer) json(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *Renderer) yaml(v any) error {
	enc := yaml.NewEncoder(r.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// errArrowTerminal refuses to write binary output to a terminal.
var errArrowTerminal = errors.New("arrow output is binary: redirect stdout to a file or pipe")

func (r *Renderer) arrow(res *core.TabularResult) error {
	if isTerminal(r.w) {
		return errArrowTerminal
	}
	rec, err := res.ArrowRecord(memory.DefaultAllocator)
	if err != nil {
		return err
	}
	defer rec.Release()

	w := ipc.NewWriter(r.w, ipc.WithSchema(rec.Schema()))
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return fmt.Errorf("write arrow stream: %w", err)
	}
	return w.Close()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return v.Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%v", v)
}

// isTerminal reports whether v is a file attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
