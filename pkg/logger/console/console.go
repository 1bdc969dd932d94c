package console

import (
	"os"

	"github.com/charmbracelet/log"
)

// Logger writes log records to stderr via charmbracelet/log.
type Logger struct {
	inner *log.Logger
}

// Params configures a console Logger.
type Params struct {
	Debug bool
}

// New creates a console logger. Debug enables DEBUG-level records.
func New(params Params) *Logger {
	level := log.InfoLevel
	if params.Debug {
		level = log.DebugLevel
	}
	return &Logger{
		inner: log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Level:           level,
		}),
	}
}

func (l *Logger) Debug(message string, keyvals ...any) {
	l.inner.Debug(message, keyvals...)
}

func (l *Logger) Info(message string, keyvals ...any) {
	l.inner.Info(message, keyvals...)
}

func (l *Logger) Warn(message string, keyvals ...any) {
	l.inner.Warn(message, keyvals...)
}

func (l *Logger) Error(message string, keyvals ...any) {
	l.inner.Error(message, keyvals...)
}

func (l *Logger) Fatal(message string, keyvals ...any) {
	l.inner.Fatal(message, keyvals...)
}
