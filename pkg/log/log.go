// Package log is the structured logger shared by every Vajra binary. It
// wraps zap and hands out logr adapters for the library packages.
package log

import (
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface used across Vajra.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(err error, msg string, keysAndValues ...any)

	// WithName appends name to the logger name, dot separated.
	WithName(name string) Logger
	WithValues(keysAndValues ...any) Logger

	// Logr returns a logr.Logger backed by the same core. Library packages
	// such as the reconciler and the transports only see this view.
	Logr() logr.Logger

	// Sync flushes buffered entries.
	Sync() error
}

var _ Logger = (*zapLogger)(nil)

type zapLogger struct {
	z *zap.Logger
}

var (
	mu  sync.RWMutex
	std Logger = NewNopLogger()

	// level backs the global logger so it can be changed while running.
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// NewLogger builds a standalone logger from opts with its own level. A nil
// opts uses the defaults.
func NewLogger(opts *Options) Logger {
	return newLogger(opts, zap.NewAtomicLevel())
}

func newLogger(opts *Options, lvl zap.AtomicLevel) Logger {
	if opts == nil {
		opts = NewOptions()
	}

	parsed, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		parsed = zapcore.InfoLevel
	}
	lvl.SetLevel(parsed)

	sink, _, err := zap.Open(outputPaths(opts)...)
	if err != nil {
		sink = zapcore.Lock(os.Stderr)
	}

	core := zapcore.NewCore(newEncoder(opts), sink, lvl)

	zopts := []zap.Option{
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)),
	}
	if !opts.DisableCaller {
		zopts = append(zopts, zap.AddCaller(), zap.AddCallerSkip(opts.CallerSkip))
	}

	z := zap.New(core, zopts...)
	if opts.Name != "" {
		z = z.Named(opts.Name)
	}
	return &zapLogger{z: z}
}

func outputPaths(opts *Options) []string {
	if len(opts.OutputPaths) == 0 {
		return []string{"stdout"}
	}
	return opts.OutputPaths
}

func newEncoder(opts *Options) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		MessageKey:    "message",
		LevelKey:      "level",
		TimeKey:       "timestamp",
		NameKey:       "logger",
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
		EncodeName:    zapcore.FullNameEncoder,
		EncodeDuration: func(d time.Duration, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendFloat64(float64(d) / float64(time.Millisecond))
		},
	}

	if opts.Format == FormatJSON {
		return zapcore.NewJSONEncoder(cfg)
	}
	if opts.EnableColor {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func (l *zapLogger) Debug(msg string, keysAndValues ...any) {
	l.z.Debug(msg, toFields(keysAndValues)...)
}

func (l *zapLogger) Info(msg string, keysAndValues ...any) {
	l.z.Info(msg, toFields(keysAndValues)...)
}

func (l *zapLogger) Warn(msg string, keysAndValues ...any) {
	l.z.Warn(msg, toFields(keysAndValues)...)
}

func (l *zapLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := toFields(keysAndValues)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.z.Error(msg, fields...)
}

func (l *zapLogger) WithName(name string) Logger {
	return &zapLogger{z: l.z.Named(name)}
}

func (l *zapLogger) WithValues(keysAndValues ...any) Logger {
	return &zapLogger{z: l.z.With(toFields(keysAndValues)...)}
}

func (l *zapLogger) Logr() logr.Logger {
	return zapr.NewLoggerWithOptions(l.z, zapr.ErrorKey("error"))
}

func (l *zapLogger) Sync() error {
	return l.z.Sync()
}

// Init replaces the global logger. Later calls replace it again, which the
// tests rely on.
func Init(opts *Options) {
	l := newLogger(opts, level)
	mu.Lock()
	std = l
	mu.Unlock()
}

// Std returns the global logger.
func Std() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return &zapLogger{z: zap.NewNop()}
}

// SetLevel changes the level of the global logger.
func SetLevel(s string) error {
	return level.UnmarshalText([]byte(s))
}

// LevelHandler serves GET and PUT of the global level as JSON, for example
// {"level":"debug"}.
func LevelHandler() http.Handler {
	return level
}

func Debug(msg string, keysAndValues ...any)            { Std().Debug(msg, keysAndValues...) }
func Info(msg string, keysAndValues ...any)             { Std().Info(msg, keysAndValues...) }
func Warn(msg string, keysAndValues ...any)             { Std().Warn(msg, keysAndValues...) }
func Error(err error, msg string, keysAndValues ...any) { Std().Error(err, msg, keysAndValues...) }
func WithName(name string) Logger                       { return Std().WithName(name) }
func WithValues(keysAndValues ...any) Logger            { return Std().WithValues(keysAndValues...) }
func Logr() logr.Logger                                 { return Std().Logr() }
func Sync() error                                       { return Std().Sync() }
