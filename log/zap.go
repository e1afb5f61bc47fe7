package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a zap logger to Logger.
type ZapLogger struct {
	s     *zap.SugaredLogger
	level zap.AtomicLevel
}

// NewZapLogger wraps l. The atomic level must be the one l was built with,
// otherwise SetLevel has no effect on the output.
func NewZapLogger(l *zap.Logger, level zap.AtomicLevel) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{s: l.Sugar(), level: level}
}

// NewZapDevelopment builds a console zap logger at the given level.
func NewZapDevelopment(level Level) (*ZapLogger, error) {
	return newZap(zap.NewDevelopmentConfig(), level)
}

// NewZapProduction builds a JSON zap logger at the given level.
func NewZapProduction(level Level) (*ZapLogger, error) {
	return newZap(zap.NewProductionConfig(), level)
}

func newZap(cfg zap.Config, level Level) (*ZapLogger, error) {
	cfg.Level = zap.NewAtomicLevelAt(toZapLevel(level))
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(l, cfg.Level), nil
}

func (z *ZapLogger) SetLevel(level Level) {
	if z == nil {
		return
	}
	z.level.SetLevel(toZapLevel(level))
}

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error {
	if z == nil {
		return nil
	}
	return z.s.Sync()
}

func (z *ZapLogger) Debugf(format string, args ...any) { z.s.Debugf(format, args...) }
func (z *ZapLogger) Infof(format string, args ...any)  { z.s.Infof(format, args...) }
func (z *ZapLogger) Warnf(format string, args ...any)  { z.s.Warnf(format, args...) }
func (z *ZapLogger) Errorf(format string, args ...any) { z.s.Errorf(format, args...) }

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		// Nothing below fatal is written.
		return zapcore.FatalLevel
	}
}
