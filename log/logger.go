package log

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	gethlog "github.com/ethereum/go-ethereum/log"
)

const (
	LevelTrace slog.Level = gethlog.LevelTrace
	LevelDebug            = slog.LevelDebug
	LevelInfo             = slog.LevelInfo
	LevelWarn             = slog.LevelWarn
	LevelError            = slog.LevelError
	LevelCrit  slog.Level = gethlog.LevelCrit
)

var levelNames = map[string]slog.Level{
	"trace":    LevelTrace,
	"debug":    LevelDebug,
	"info":     LevelInfo,
	"warn":     LevelWarn,
	"warning":  LevelWarn,
	"error":    LevelError,
	"crit":     LevelCrit,
	"critical": LevelCrit,
}

// ParseLevel accepts the level names used by --log-level, in any case.
func ParseLevel(name string) (slog.Level, error) {
	lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("invalid level: %s", name)
	}
	return lvl, nil
}

// Logger stamps every record with the module it was written for.
type Logger struct {
	inner *slog.Logger
}

func NewLogger(h slog.Handler) *Logger {
	return &Logger{inner: slog.New(h)}
}

// With returns a logger that adds kv to every record.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{inner: l.inner.With(kv...)}
}

func (l *Logger) Handler() slog.Handler {
	return l.inner.Handler()
}

func (l *Logger) Enabled(level slog.Level) bool {
	return l.inner.Enabled(context.Background(), level)
}

// Write records msg at level. The source position is the caller of the
// package-level helper, two frames above Write.
func (l *Logger) Write(level slog.Level, module, msg string, kv ...any) {
	if !l.Enabled(level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add("module", module)
	r.Add(kv...)
	_ = l.inner.Handler().Handle(context.Background(), r)
}
