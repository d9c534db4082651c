package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdata/internal/metrics"
	"github.com/leapstack-labs/leapdata/internal/server"
	"github.com/leapstack-labs/leapdata/internal/watch"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve sources over HTTP until interrupted.

Endpoints:
  GET  /healthz
  GET  /sources
  GET  /sources/{name}/tables
  GET  /sources/{name}/df?table=&limit=
  POST /sources/{name}/invalidate
  POST /query                {"sql": "...", "source": "..."}
  GET  /metrics

With --watch, file-backed sources are invalidated when their files change.`,
		Example: `  leapdata serve --listen :9090 --watch`,
		Args:    cobra.NoArgs,
		RunE:    runServe,
	}

	// Read through the config layer as listen and watch.
	cmd.Flags().String("listen", "", "Address to listen on (default: 127.0.0.1:8080)")
	cmd.Flags().Bool("watch", false, "Invalidate file-backed sources when their files change")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cmdCtx := NewCommandContext(cmd)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc, cleanup, err := cmdCtx.OpenService(cmd, metrics.New(reg))
	if err != nil {
		return err
	}
	defer cleanup()

	var watcher server.Runner
	if cmdCtx.Cfg.Watch {
		w := watch.New(svc, svc.Sources(), cmdCtx.Logger)
		cmdCtx.Logger.Info("watching source files", "files", len(w.Files()))
		watcher = w
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Config{
		Backend:  svc,
		Addr:     cmdCtx.Cfg.Listen,
		Gatherer: reg,
		Watcher:  watcher,
		Logger:   cmdCtx.Logger,
	})
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Serving %d sources on http://%s\n", len(svc.Sources()), cmdCtx.Cfg.Listen)
	return srv.Serve(ctx)
}
