// Package log builds the structured zap loggers used by every process in
// the platform: the lambda-api and s3-api servers and the spawned
// woof-worker collaborators. The woofctl CLI does not use it.
//
// Callers take the non-sugared *zap.Logger; nothing in the platform uses
// logger.Sugar().
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger for the named service, writing to stderr. Every
// entry carries a "service" field so logs from the two HTTP servers and
// their worker subprocesses can be told apart when interleaved.
//
// level is one of debug, info, warn, error; format is "json" or
// "console".
func New(service, level, format string) (*zap.Logger, error) {
	return NewWithWriter(service, level, format, os.Stderr)
}

// NewWithWriter creates a logger writing to w instead of stderr. Used by
// tests to capture output.
func NewWithWriter(service, level, format string, w io.Writer) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info", "":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}

	var encoder zapcore.Encoder
	switch format {
	case "json", "":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), zapLevel)
	return zap.New(core).With(zap.String("service", service)), nil
}

// Nop returns a logger that discards everything. For tests and for
// callers that haven't been handed a real logger yet.
func Nop() *zap.Logger {
	return zap.NewNop()
}
