package librarian

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// loggerNameKey is the slog attribute key identifying the component a
// logger belongs to.
const loggerNameKey = "logger"

func newLogHandler(level slog.Leveler) slog.Handler {
	return tint.NewHandler(
		os.Stdout, &tint.Options{
			Level:     level,
			AddSource: true,
		},
	)
}
