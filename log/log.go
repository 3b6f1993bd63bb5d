// Package log provides a leveled logger factory producing
// logger.ContextLogger instances for library subsystems.
package log

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	F "github.com/sagernet/sing/common/format"
	"github.com/sagernet/sing/common/logger"

	"github.com/logrusorgru/aurora"
)

type Level uint8

const (
	LevelPanic Level = iota
	LevelFatal
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelPanic:
		return "PANIC"
	case LevelFatal:
		return "FATAL"
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "TRACE"
	}
}

func (l Level) color(message string) string {
	switch l {
	case LevelPanic, LevelFatal, LevelError:
		return aurora.Red(message).String()
	case LevelWarn:
		return aurora.Yellow(message).String()
	case LevelInfo:
		return aurora.Cyan(message).String()
	case LevelDebug:
		return aurora.White(message).String()
	default:
		return aurora.Gray(8, message).String()
	}
}

type Factory struct {
	access   sync.Mutex
	writer   io.Writer
	level    Level
	colored  bool
	timeFunc func() time.Time
}

func NewFactory(writer io.Writer, level Level, colored bool) *Factory {
	return &Factory{
		writer:   writer,
		level:    level,
		colored:  colored,
		timeFunc: time.Now,
	}
}

// NewDefaultFactory logs to stderr at info level with colors enabled.
func NewDefaultFactory() *Factory {
	return NewFactory(os.Stderr, LevelInfo, true)
}

func (f *Factory) Logger() logger.ContextLogger {
	return f.NewLogger("")
}

func (f *Factory) NewLogger(tag string) logger.ContextLogger {
	return &tagLogger{factory: f, tag: tag}
}

func (f *Factory) write(level Level, tag string, args []any) {
	if level > f.level {
		return
	}
	message := F.ToString(args...)
	if tag != "" {
		message = "[" + tag + "] " + message
	}
	line := f.timeFunc().Format("-0700 2006-01-02 15:04:05") + " " + level.String() + " " + message
	if f.colored {
		line = level.color(line)
	}
	f.access.Lock()
	defer f.access.Unlock()
	_, _ = io.WriteString(f.writer, line+"\n")
}

type tagLogger struct {
	factory *Factory
	tag     string
}

func (l *tagLogger) Trace(args ...any) { l.factory.write(LevelTrace, l.tag, args) }
func (l *tagLogger) Debug(args ...any) { l.factory.write(LevelDebug, l.tag, args) }
func (l *tagLogger) Info(args ...any) { l.factory.write(LevelInfo, l.tag, args) }
func (l *tagLogger) Warn(args ...any) { l.factory.write(LevelWarn, l.tag, args) }
func (l *tagLogger) Error(args ...any) { l.factory.write(LevelError, l.tag, args) }

func (l *tagLogger) Fatal(args ...any) {
	l.factory.write(LevelFatal, l.tag, args)
	os.Exit(1)
}

func (l *tagLogger) Panic(args ...any) {
	l.factory.write(LevelPanic, l.tag, args)
	panic(F.ToString(args...))
}

func (l *tagLogger) TraceContext(_ context.Context, args ...any) { l.Trace(args...) }
func (l *tagLogger) DebugContext(_ context.Context, args ...any) { l.Debug(args...) }
func (l *tagLogger) InfoContext(_ context.Context, args ...any) { l.Info(args...) }
func (l *tagLogger) WarnContext(_ context.Context, args ...any) { l.Warn(args...) }
func (l *tagLogger) ErrorContext(_ context.Context, args ...any) { l.Error(args...) }
func (l *tagLogger) FatalContext(_ context.Context, args ...any) { l.Fatal(args...) }
func (l *tagLogger) PanicContext(_ context.Context, args ...any) { l.Panic(args...) }
