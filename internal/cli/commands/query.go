package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Source string
	Input  string
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run SQL against a source or across all sources",
		Long: `Run a SQL query against one source, or against the federated catalog
when no --source is given. In the federated catalog single-table sources
appear as tables named after the source and multi-table sources as schemas.

SQL is read from the arguments, from --input, or from piped stdin.
When invoked without SQL on a terminal, enters interactive REPL mode.`,
		Example: `  # Query one source
  leapdata query --source sales "SELECT region, SUM(amount) FROM sales GROUP BY 1"

  # Join across sources
  leapdata query "SELECT * FROM sales s JOIN warehouse.customers c ON s.customer_id = c.id"

  # Read SQL from a file, output as JSON
  leapdata query -i report.sql -o json

  # Interactive mode
  leapdata query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "Source to query (default: federated)")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	cmdCtx := NewCommandContext(cmd)

	// Determine SQL source
	var sqlQuery string
	in := cmd.InOrStdin()
	interactive := false

	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	case !isTerminal(in):
		// Read from stdin (piped input)
		content, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlQuery = string(content)
	default:
		interactive = true
	}
	if !interactive && trimStatement(sqlQuery) == "" {
		return errors.New("no SQL given")
	}

	svc, cleanup, err := cmdCtx.OpenService(cmd, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	if interactive {
		// No input, TTY detected - enter REPL mode
		return runQueryREPL(cmd, svc, cmdCtx, opts.Source)
	}

	res, err := svc.Query(cmd.Context(), trimStatement(sqlQuery), opts.Source)
	if err != nil {
		return err
	}
	return cmdCtx.Renderer.Result(res)
}

// trimStatement drops surrounding whitespace and a trailing semicolon.
func trimStatement(s string) string {
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ";"))
}
