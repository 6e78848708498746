// Package logging provides the structured logger used across swagger2react.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a minimal structured logger. Attributes are alternating key/value
// pairs:
//
//	logger.Debug("resolved schema", "model", "UserData", "properties", 4)
type Logger interface {
	Debug(msg string, attrs ...any)
	Info(msg string, attrs ...any)
	Warn(msg string, attrs ...any)
	Error(msg string, attrs ...any)
	With(attrs ...any) Logger
}

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)  {}
func (nopLogger) Info(string, ...any)   {}
func (nopLogger) Warn(string, ...any)   {}
func (nopLogger) Error(string, ...any)  {}
func (n nopLogger) With(...any) Logger { return n }

// Options configures New.
type Options struct {
	// Verbose lowers the console level to debug.
	Verbose bool
	// File, when set, adds a rotating JSON log at that path.
	File string
	// Console receives human readable output; defaults to stderr.
	Console io.Writer
}

// New builds a zap backed logger. The returned func flushes buffered entries.
func New(opts Options) (Logger, func() error, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.CallerKey = ""
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(console), level),
	}

	if opts.File != "" {
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    5, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		})
		cfg := zap.NewProductionConfig()
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), fileWriter, zapcore.DebugLevel))
	}

	z := zap.New(zapcore.NewTee(cores...))
	return &zapLogger{s: z.Sugar()}, z.Sync, nil
}

// FromZap adapts an existing zap logger.
func FromZap(z *zap.Logger) Logger {
	if z == nil {
		return Nop()
	}
	return &zapLogger{s: z.Sugar()}
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (z *zapLogger) Debug(msg string, attrs ...any) { z.s.Debugw(msg, attrs...) }
func (z *zapLogger) Info(msg string, attrs ...any)  { z.s.Infow(msg, attrs...) }
func (z *zapLogger) Warn(msg string, attrs ...any)  { z.s.Warnw(msg, attrs...) }
func (z *zapLogger) Error(msg string, attrs ...any) { z.s.Errorw(msg, attrs...) }
func (z *zapLogger) With(attrs ...any) Logger {
	return &zapLogger{s: z.s.With(attrs...)}
}
