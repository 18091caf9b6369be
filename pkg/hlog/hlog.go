// Package hlog provides the scoped log sink used across the library. A
// Logger is handed to handel.New and closed by Handel.Exit; no
// package-level logger is shared process-wide.
package hlog

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Level gates which messages reach the sink's writer.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	None
)

// ParseLevel maps the "handel settings" log_level values ("debug", "info",
// "warning", "error", "none") onto a Level, matching the vocabulary used in
// handel_log.h.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug", "DEBUG":
		return Debug, nil
	case "info", "INFO", "":
		return Info, nil
	case "warning", "warn", "WARNING", "WARN":
		return Warn, nil
	case "error", "ERROR":
		return Error, nil
	case "none", "NONE", "off", "OFF":
		return None, nil
	default:
		return Info, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger is the scoped sink. The zero value is not usable; construct one
// with New.
type Logger struct {
	level  Level
	sink   *log.Logger
	closer io.Closer
}

// New opens a Logger writing to w at the given level. Close releases any
// underlying file handle.
func New(level Level, w io.Writer) *Logger {
	closer, _ := w.(io.Closer)
	return &Logger{
		level:  level,
		sink:   log.New(w, "", log.LstdFlags),
		closer: closer,
	}
}

// NewFile opens path for appending and returns a Logger writing to it; the
// caller's Close() closes the file.
func NewFile(level Level, path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("hlog: open %s: %w", path, err)
	}
	return New(level, f), nil
}

// Close releases the underlying sink, if it owns one.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *Logger) log(level Level, tag, format string, args ...any) {
	if l == nil || l.sink == nil || level < l.level {
		return
	}
	l.sink.Printf("[%s] "+format, append([]any{tag}, args...)...)
}

// Debugf logs at DEBUG.
func (l *Logger) Debugf(format string, args ...any) { l.log(Debug, "DEBUG", format, args...) }

// Infof logs at INFO.
func (l *Logger) Infof(format string, args ...any) { l.log(Info, "INFO", format, args...) }

// Warnf logs at WARN.
func (l *Logger) Warnf(format string, args ...any) { l.log(Warn, "WARN", format, args...) }

// Errorf logs at ERROR.
func (l *Logger) Errorf(format string, args ...any) { l.log(Error, "ERROR", format, args...) }

// Discard is a Logger that drops everything; used when a caller does not
// configure "handel settings" at all.
func Discard() *Logger {
	return New(None, io.Discard)
}
