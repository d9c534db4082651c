package postgres

import (
	"log/slog"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/core"
)

func init() {
	adapter.Register(core.KindPostgres, func(l *slog.Logger) adapter.Adapter { return New(l) })
}
