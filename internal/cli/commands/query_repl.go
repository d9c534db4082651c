package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdata/pkg/core"
)

const (
	replPrompt     = "leapdata> "
	replContPrompt = "     ...> "
)

// replService is what the REPL needs from the data service.
type replService interface {
	Sources() []core.SourceDescriptor
	Tables(ctx context.Context, source string) ([]string, error)
	Query(ctx context.Context, sql, source string) (*core.TabularResult, error)
	Invalidate(ctx context.Context, source string) error
}

func runQueryREPL(cmd *cobra.Command, svc replService, cmdCtx *CommandContext, source string) error {
	sess := newREPLSession(cmd.Context(), svc, cmdCtx.Renderer, cmd.OutOrStdout(), cmd.ErrOrStderr(), source)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile(),
		AutoComplete:    newSourceCompleter(svc.Sources()),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	// Print welcome message
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "leapdata query REPL (%d sources, querying %s)\n", len(svc.Sources()), sess.target())
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			sess.reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		if sess.feed(line) {
			break
		}
		if sess.pending() {
			rl.SetPrompt(replContPrompt)
		} else {
			rl.SetPrompt(replPrompt)
		}
	}
	return nil
}

// replSession accumulates statements and runs dot-commands.
type replSession struct {
	ctx      context.Context
	svc      replService
	renderer *Renderer
	out      io.Writer
	errOut   io.Writer
	source   string
	buf      strings.Builder
}

func newREPLSession(ctx context.Context, svc replService, r *Renderer, out, errOut io.Writer, source string) *replSession {
	return &replSession{ctx: ctx, svc: svc, renderer: r, out: out, errOut: errOut, source: source}
}

func (s *replSession) target() string {
	if s.source == "" {
		return "all sources"
	}
	return "source " + s.source
}

func (s *replSession) pending() bool { return s.buf.Len() > 0 }

func (s *replSession) reset() { s.buf.Reset() }

// feed processes one input line and reports whether the session should end.
// Statements run once a line ends with a semicolon.
func (s *replSession) feed(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	if !s.pending() && strings.HasPrefix(line, ".") {
		return s.dotCommand(line)
	}

	s.buf.WriteString(line)
	if !strings.HasSuffix(line, ";") {
		s.buf.WriteString(" ")
		return false
	}

	query := trimStatement(s.buf.String())
	s.buf.Reset()
	res, err := s.svc.Query(s.ctx, query, s.source)
	if err != nil {
		s.renderer.Error(s.errOut, err)
		return false
	}
	if err := s.renderer.Result(res); err != nil {
		_, _ = fmt.Fprintf(s.errOut, "Error: %v\n", err)
	}
	_, _ = fmt.Fprintln(s.out)
	return false
}

func (s *replSession) dotCommand(line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(s.out)

	case ".sources":
		if err := s.renderer.Sources(s.svc.Sources()); err != nil {
			_, _ = fmt.Fprintf(s.errOut, "Error: %v\n", err)
		}

	case ".tables":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(s.errOut, "Usage: .tables <source>")
			return false
		}
		tables, err := s.svc.Tables(s.ctx, parts[1])
		if err != nil {
			s.renderer.Error(s.errOut, err)
			return false
		}
		_ = s.renderer.List("table", tables)

	case ".invalidate":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(s.errOut, "Usage: .invalidate <source>")
			return false
		}
		if err := s.svc.Invalidate(s.ctx, parts[1]); err != nil {
			s.renderer.Error(s.errOut, err)
			return false
		}
		_, _ = fmt.Fprintf(s.out, "Invalidated %s\n", parts[1])

	case ".use":
		s.source = ""
		if len(parts) > 1 {
			s.source = parts[1]
		}
		_, _ = fmt.Fprintf(s.out, "Querying %s\n", s.target())

	case ".clear":
		_, _ = fmt.Fprint(s.out, "\033[H\033[2J")

	default:
		_, _ = fmt.Fprintf(s.errOut, "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help                 Show this help message
  .sources              List declared sources
  .tables <source>      List the tables of a source
  .invalidate <source>  Drop cached results and the connection of a source
  .use [source]         Query one source, or all sources when omitted
  .clear                Clear the screen
  .quit / .exit         Exit the REPL

Tips:
  - SQL statements must end with a semicolon (;)
  - Use arrow keys to navigate history
  - Tab completion works for source names
`
	_, _ = fmt.Fprintln(w, help)
}

// historyFile returns the REPL history path, or "" to disable history.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".leapdata_history")
}

// newSourceCompleter completes dot-commands and source names.
func newSourceCompleter(sources []core.SourceDescriptor) *readline.PrefixCompleter {
	names := make([]readline.PrefixCompleterInterface, 0, len(sources))
	for _, s := range sources {
		names = append(names, readline.PcItem(s.Name))
	}

	items := make([]readline.PrefixCompleterInterface, 0, len(names)+8)
	items = append(items, names...)
	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".sources"),
		readline.PcItem(".tables", names...),
		readline.PcItem(".invalidate", names...),
		readline.PcItem(".use", names...),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
	return readline.NewPrefixCompleter(items...)
}
