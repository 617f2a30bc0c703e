package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// Logger is a structured, leveled logger. The solver, scheduler, line search and settings
// validation take one of these rather than writing to stdout directly; the transcription and
// QP back-end packages take none and report failures only through their returned errors.
type Logger interface {
	Debugw(msg string, keysAndValues ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})

	// Sublogger returns a child logger whose name is namespaced under this one.
	Sublogger(name string) Logger

	// Level reports the minimum level this logger emits.
	Level() Level
}

type impl struct {
	name  string
	level Level
	sugar *zap.SugaredLogger
}

// NewLogger returns a Logger named name at the given level, writing to stderr.
func NewLogger(name string, level Level) Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	base, err := cfg.Build()
	if err != nil {
		// Config above is static and always valid; fall back to a no-op logger rather than panic.
		base = zap.NewNop()
	}
	return &impl{name: name, level: level, sugar: base.Sugar().Named(name)}
}

// NewTestLogger returns a Logger that writes through t.Log, matching the
// logging.NewTestLogger convention used throughout the teacher's test suite.
func NewTestLogger(t *testing.T) Logger {
	t.Helper()
	base := zaptest.NewLogger(t)
	return &impl{name: "test", level: DEBUG, sugar: base.Sugar()}
}

func (l *impl) Debugw(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *impl) Infow(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *impl) Warnw(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *impl) Errorw(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }

func (l *impl) Debugf(template string, args ...interface{}) { l.sugar.Debugf(template, args...) }
func (l *impl) Infof(template string, args ...interface{})  { l.sugar.Infof(template, args...) }
func (l *impl) Warnf(template string, args ...interface{})  { l.sugar.Warnf(template, args...) }
func (l *impl) Errorf(template string, args ...interface{}) { l.sugar.Errorf(template, args...) }

func (l *impl) Sublogger(name string) Logger {
	return &impl{name: l.name + "." + name, level: l.level, sugar: l.sugar.Named(name)}
}

func (l *impl) Level() Level { return l.level }
