package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the printf-style logger used across the module.
//
// The server binary plugs zap in through NewZapLogger; library users can
// implement this interface with whatever they already use.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Level controls what gets written.
//
// The ordering is: Debug < Info < Warn < Error < Off.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelOff:
		return "off"
	default:
		return fmt.Sprintf("level(%d)", int32(l))
	}
}

// ParseLevel maps a configuration value such as "debug" or "WARN" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "off", "none":
		return LevelOff, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// StdLogger writes through the standard library log package.
//
// The level may be changed while requests are in flight.
type StdLogger struct {
	l     *stdlog.Logger
	level atomic.Int32
	tag   string
}

func NewStdLogger(w io.Writer, level Level) *StdLogger {
	if w == nil {
		w = os.Stderr
	}
	s := &StdLogger{
		l:   stdlog.New(w, "", stdlog.LstdFlags),
		tag: "ApplePay",
	}
	s.level.Store(int32(level))
	return s
}

func NewDefault() *StdLogger {
	return NewStdLogger(os.Stderr, LevelInfo)
}

func (s *StdLogger) SetLevel(level Level) {
	if s == nil {
		return
	}
	s.level.Store(int32(level))
}

// SetTag replaces the prefix written before every message. Not safe to call concurrently with logging.
func (s *StdLogger) SetTag(tag string) {
	if s == nil {
		return
	}
	s.tag = tag
}

func (s *StdLogger) enabled(level Level) bool {
	return s != nil && Level(s.level.Load()) <= level
}

func (s *StdLogger) format(format string) string {
	if s.tag == "" {
		return format
	}
	return s.tag + ": " + format
}

func (s *StdLogger) Debugf(format string, args ...any) {
	if !s.enabled(LevelDebug) {
		return
	}
	s.l.Printf("DEBUG: "+s.format(format), args...)
}

func (s *StdLogger) Infof(format string, args ...any) {
	if !s.enabled(LevelInfo) {
		return
	}
	s.l.Printf("INFO: "+s.format(format), args...)
}

func (s *StdLogger) Warnf(format string, args ...any) {
	if !s.enabled(LevelWarn) {
		return
	}
	s.l.Printf("WARN: "+s.format(format), args...)
}

func (s *StdLogger) Errorf(format string, args ...any) {
	if !s.enabled(LevelError) {
		return
	}
	s.l.Printf("ERROR: "+s.format(format), args...)
}

// NopLogger discards all logs.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}
