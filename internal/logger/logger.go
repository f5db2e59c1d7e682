// Package logger is the leveled logging used by every pipeline component.
// Components receive a Logger; nothing logs through a package global.
package logger

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"
)

// TimeLayout stamps each line in UTC with microseconds and fixed width.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Logger is the leveled logger shared by every pipeline component.
type Logger interface {
	Printf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	// WithPrefix returns a Logger writing to the same place with prefix
	// added after the level label.
	WithPrefix(prefix string) Logger
}

// Level is a message severity. A logger keeps messages at or below its
// verbosity.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// Label is the fixed-width tag written in front of each message.
func (l Level) Label() string {
	switch l {
	case LevelError:
		return "ERROR: "
	case LevelWarn:
		return "WARN:  "
	case LevelInfo:
		return "INFO:  "
	default:
		return "DEBUG: "
	}
}

var (
	_ Logger = (*leveled)(nil)
	_ Logger = nopLogger{}
	_ Logger = (*BufferLogger)(nil)
)

// leveled formats messages and hands each finished line to emit.
type leveled struct {
	emit      func(line string)
	verbosity Level
	prefix    string
}

func (l *leveled) logf(level Level, format string, v ...interface{}) {
	if level > l.verbosity {
		return
	}
	l.emit(level.Label() + l.prefix + fmt.Sprintf(format, v...))
}

// Printf logs at info level.
func (l *leveled) Printf(format string, v ...interface{}) { l.logf(LevelInfo, format, v...) }
func (l *leveled) Debugf(format string, v ...interface{}) { l.logf(LevelDebug, format, v...) }
func (l *leveled) Infof(format string, v ...interface{})  { l.logf(LevelInfo, format, v...) }
func (l *leveled) Warnf(format string, v ...interface{})  { l.logf(LevelWarn, format, v...) }
func (l *leveled) Errorf(format string, v ...interface{}) { l.logf(LevelError, format, v...) }

func (l *leveled) WithPrefix(prefix string) Logger {
	return &leveled{emit: l.emit, verbosity: l.verbosity, prefix: l.prefix + prefix}
}

// New returns a Logger writing timestamped lines to w, dropping messages
// above verbosity. Lines from loggers sharing w do not interleave.
func New(w io.Writer, verbosity Level) Logger {
	var mu sync.Mutex
	return &leveled{
		verbosity: verbosity,
		emit: func(line string) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(w, "%s %s\n", time.Now().UTC().Format(TimeLayout), line)
		},
	}
}

// NewStandardLogger logs info and above to w.
func NewStandardLogger(w io.Writer) Logger { return New(w, LevelInfo) }

// NewVerboseLogger logs everything, debug included, to w.
func NewVerboseLogger(w io.Writer) Logger { return New(w, LevelDebug) }

// Logfer is anything with a Logf method, such as testing.T.
type Logfer interface {
	Logf(format string, v ...interface{})
}

// NewLogfLogger routes every level to l.Logf, so test output carries the
// pipeline's log next to the failure.
func NewLogfLogger(l Logfer) Logger {
	return &leveled{
		verbosity: LevelDebug,
		emit:      func(line string) { l.Logf("%s", line) },
	}
}

// NopLogger discards everything.
var NopLogger Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (n nopLogger) WithPrefix(string) Logger    { return n }

// BufferLogger keeps untimestamped lines in memory for tests that check
// what was reported and at which level. Prefixed children share the buffer.
type BufferLogger struct {
	Logger

	mu  sync.Mutex
	buf bytes.Buffer
}

func NewBufferLogger() *BufferLogger {
	b := &BufferLogger{}
	b.Logger = &leveled{verbosity: LevelDebug, emit: b.append}
	return b
}

func (b *BufferLogger) append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.WriteString(line)
	b.buf.WriteByte('\n')
}

// String returns everything logged so far.
func (b *BufferLogger) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
