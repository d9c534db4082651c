package objectstore

import (
	"log/slog"

	"github.com/leapstack-labs/leapdata/pkg/adapter"
	"github.com/leapstack-labs/leapdata/pkg/core"
)

func init() {
	adapter.Register(core.KindS3, func(l *slog.Logger) adapter.Adapter { return New(OpenS3, l) })
	adapter.Register(core.KindGCS, func(l *slog.Logger) adapter.Adapter { return New(OpenGCS, l) })
}
