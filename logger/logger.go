package logger

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a typed key/value pair attached to a log entry.
type Field = zap.Field

// Logger is a thin wrapper around zap.Logger that provides the
// three log levels we need throughout the codebase.
type Logger interface {
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

type zapLogger struct {
	z *zap.Logger
}

func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

// NewZapLogger creates a production‑ready logger (JSON encoding) at the
// given level. An empty level means "info".
func NewZapLogger(level string) (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{z: z}, nil
}

// Wrap adapts an existing zap logger.
func Wrap(z *zap.Logger) Logger { return &zapLogger{z: z} }

// Nop discards everything.
func Nop() Logger { return &zapLogger{z: zap.NewNop()} }

func String(k, v string) Field          { return zap.String(k, v) }
func Float64(k string, v float64) Field { return zap.Float64(k, v) }
func Int(k string, v int) Field         { return zap.Int(k, v) }
func Int64(k string, v int64) Field     { return zap.Int64(k, v) }
func Bool(k string, v bool) Field       { return zap.Bool(k, v) }
func Time(k string, v time.Time) Field  { return zap.Time(k, v) }
func Err(err error) Field               { return zap.Error(err) }
