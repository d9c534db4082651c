package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdata/internal/config"
	"github.com/leapstack-labs/leapdata/internal/metrics"
	"github.com/leapstack-labs/leapdata/internal/service"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *Renderer
}

// NewCommandContext builds the context for cmd from the loaded configuration.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := config.GetConfig(cmd.Context())
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: NewRenderer(cmd.OutOrStdout(), cfg.Output),
	}
}

// OpenService creates the data service from the declared sources.
// The returned cleanup function must be called (typically via defer).
func (c *CommandContext) OpenService(cmd *cobra.Command, m *metrics.Metrics) (*service.Service, func(), error) {
	descs, err := c.Cfg.Descriptors()
	if err != nil {
		return nil, nil, err
	}
	if len(descs) == 0 {
		c.Logger.Warn("no sources declared", "config", c.Cfg.ConfigFile)
	}
	svc, err := service.New(cmd.Context(), service.Config{
		Sources:      descs,
		Logger:       c.Logger,
		Metrics:      m,
		QueryTimeout: c.Cfg.QueryTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return svc, func() {
		if err := svc.Shutdown(); err != nil {
			c.Logger.Warn("shutdown failed", "error", err)
		}
	}, nil
}
