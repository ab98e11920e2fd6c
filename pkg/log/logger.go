package log

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a case-insensitive name onto a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func fromZapLevel(l zapcore.Level) Level {
	switch {
	case l <= zapcore.DebugLevel:
		return DebugLevel
	case l == zapcore.InfoLevel:
		return InfoLevel
	case l == zapcore.WarnLevel:
		return WarnLevel
	case l == zapcore.ErrorLevel:
		return ErrorLevel
	default:
		return FatalLevel
	}
}

// Format selects the encoder.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Context keys for propagating logging context
const (
	RequestIDKey = "request_id"
	ComponentKey = "component"
	OperationKey = "operation"
)

// Logger defines the core logging interface for shardq components.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})

	// With adds fields to every subsequent entry.
	With(fields ...Field) Logger
	WithError(err error) Logger
	WithComponent(component string) Logger
	// WithContext copies request_id / operation values found on ctx.
	WithContext(ctx context.Context) Logger

	SetLevel(level Level)
	GetLevel() Level

	// Sync flushes buffered output.
	Sync() error
}

// LoggerOption configures NewLogger.
type LoggerOption func(*options)

type options struct {
	level   Level
	format  Format
	outputs []string
	core    zapcore.Core
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(o *options) { o.level = level }
}

// WithFormat selects text (console) or JSON encoding.
func WithFormat(f Format) LoggerOption {
	return func(o *options) { o.format = f }
}

// WithOutput adds an output path ("stdout", "stderr" or a file path).
func WithOutput(path string) LoggerOption {
	return func(o *options) { o.outputs = append(o.outputs, path) }
}

// WithCore overrides the zap core; tests use it with zaptest/observer.
func WithCore(core zapcore.Core) LoggerOption {
	return func(o *options) { o.core = core }
}

type zapLogger struct {
	z     *zap.Logger
	level zap.AtomicLevel
}

// NewLogger creates a new logger with the given options. Output defaults to
// stderr in text format at InfoLevel.
func NewLogger(opts ...LoggerOption) Logger {
	o := options{level: InfoLevel, format: FormatText}
	for _, opt := range opts {
		opt(&o)
	}
	atom := zap.NewAtomicLevelAt(o.level.zapLevel())

	core := o.core
	if core == nil {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		var enc zapcore.Encoder
		if o.format == FormatJSON {
			enc = zapcore.NewJSONEncoder(encCfg)
		} else {
			encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
			enc = zapcore.NewConsoleEncoder(encCfg)
		}
		outputs := o.outputs
		if len(outputs) == 0 {
			outputs = []string{"stderr"}
		}
		sink, _, err := zap.Open(outputs...)
		if err != nil {
			sink, _, _ = zap.Open("stderr")
		}
		core = zapcore.NewCore(enc, sink, atom)
	}
	return &zapLogger{z: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)), level: atom}
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
	return &zapLogger{z: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.FatalLevel)}
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, toZap(fields)...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, toZap(fields)...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, toZap(fields)...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, toZap(fields)...) }
func (l *zapLogger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, toZap(fields)...) }

func (l *zapLogger) Debugf(msg string, args ...interface{}) { l.z.Sugar().Debugf(msg, args...) }
func (l *zapLogger) Infof(msg string, args ...interface{})  { l.z.Sugar().Infof(msg, args...) }
func (l *zapLogger) Warnf(msg string, args ...interface{})  { l.z.Sugar().Warnf(msg, args...) }
func (l *zapLogger) Errorf(msg string, args ...interface{}) { l.z.Sugar().Errorf(msg, args...) }

func (l *zapLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &zapLogger{z: l.z.With(toZap(fields)...), level: l.level}
}

func (l *zapLogger) WithError(err error) Logger { return l.With(Err(err)) }

func (l *zapLogger) WithComponent(component string) Logger { return l.With(Component(component)) }

func (l *zapLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	var fields []Field
	if v := ctx.Value(RequestIDKey); v != nil {
		fields = append(fields, F(RequestIDKey, v))
	}
	if v := ctx.Value(OperationKey); v != nil {
		fields = append(fields, F(OperationKey, v))
	}
	return l.With(fields...)
}

func (l *zapLogger) SetLevel(level Level) { l.level.SetLevel(level.zapLevel()) }

func (l *zapLogger) GetLevel() Level { return fromZapLevel(l.level.Level()) }

func (l *zapLogger) Sync() error { return l.z.Sync() }
