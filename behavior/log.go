package behavior

import (
	"log/slog"

	"github.com/bramble-labs/bramble/core"
)

// Log emits a structured log record on every tick and succeeds.
type Log struct {
	core.Base
	message string
	level   slog.Level
	logger  *slog.Logger
}

// NewLog creates a log leaf. A nil logger falls back to slog.Default.
func NewLog(name, message, level string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		Base:    core.NewBase(TypeLog, name),
		message: message,
		level:   parseLevel(level),
		logger:  logger,
	}
}

// Message returns the configured message.
func (n *Log) Message() string { return n.message }

// Level returns the configured level name.
func (n *Log) Level() string {
	switch n.level {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

// Tick logs the message.
func (n *Log) Tick(t *core.Tick) core.Status {
	n.Begin(t, n)
	n.logger.Log(t.Ctx, n.level, n.message, "node", n.Name())
	return n.Conclude(t, n, core.StatusSuccess, n.message)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var _ core.Node = (*Log)(nil)
