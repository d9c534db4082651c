package commands

import (
	"github.com/spf13/cobra"
)

// NewSourcesCommand creates the sources command.
func NewSourcesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List declared data sources",
		Long: `List the data sources declared in the configuration, in declaration order.

Literal credentials and passwords in connection URLs are redacted.`,
		Example: `  leapdata sources
  leapdata sources -o yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContext(cmd)
			descs, err := cmdCtx.Cfg.Descriptors()
			if err != nil {
				return err
			}
			return cmdCtx.Renderer.Sources(descs)
		},
	}
}

// NewTablesCommand creates the tables command.
func NewTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables <source>",
		Short: "List the tables of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			svc, cleanup, err := cmdCtx.OpenService(cmd, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			tables, err := svc.Tables(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return cmdCtx.Renderer.List("table", tables)
		},
	}
}
