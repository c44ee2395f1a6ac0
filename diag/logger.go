package diag

import (
	"io"
	"log/slog"

	slogmulti "github.com/samber/slog-multi"
)

// NewFanoutLogger builds the slog.Logger an Engine should log through.
// console receives human-readable text at minLevel; trace, if non-nil,
// additionally receives every record as JSON regardless of level — this
// is the sink for --trace-symbol/--trace-reloc, which must capture
// Info-level trace records even when the console is configured for
// Warning and above.
func NewFanoutLogger(console io.Writer, minLevel slog.Level, trace io.Writer) *slog.Logger {
	handlers := []slog.Handler{
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: minLevel}),
	}
	if trace != nil {
		handlers = append(handlers, slog.NewJSONHandler(trace, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slogmulti.Fanout(handlers...))
}
