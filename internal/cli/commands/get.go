package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// GetOptions holds options for the get command.
type GetOptions struct {
	Limit int
}

// NewGetCommand creates the get command.
func NewGetCommand() *cobra.Command {
	opts := &GetOptions{}

	cmd := &cobra.Command{
		Use:   "get <source> [table]",
		Short: "Read a whole table from a source",
		Long: `Read every row of a table. Single-table sources (csv, json, parquet)
need no table name; multi-table sources require one unless they hold
exactly one table.`,
		Example: `  leapdata get sales
  leapdata get warehouse orders --limit 20
  leapdata get sales -o arrow > sales.arrow`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			svc, cleanup, err := cmdCtx.OpenService(cmd, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			var table string
			if len(args) == 2 {
				table = args[1]
			}
			res, err := svc.GetDF(cmd.Context(), args[0], table)
			if err != nil {
				return err
			}
			if opts.Limit > 0 {
				res = res.Head(opts.Limit)
			}
			return cmdCtx.Renderer.Result(res)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "Print at most n rows (0 for all)")

	return cmd
}

// NewConnectCommand creates the connect command.
func NewConnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect every source and list what is available",
		Long: `Open every declared source and attach it to the federated catalog.
Fails on the first source that cannot be opened.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			svc, cleanup, err := cmdCtx.OpenService(cmd, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			handle, err := svc.Connect(cmd.Context())
			if err != nil {
				return err
			}
			return cmdCtx.Renderer.List("source", handle.Sources())
		},
	}
}

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display leapdata version and build information.`,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "leapdata v%s\n", version)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Data source connection and query manager built with Go and DuckDB")
		},
	}
}
