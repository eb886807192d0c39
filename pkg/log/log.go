// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used across the engine. Key/value
// pairs follow the message, alternating string keys and values.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	Fatal(msg string, kv ...interface{})
	Sync() error
}

// zapLogger wraps a zap SugaredLogger
type zapLogger struct {
	log *zap.SugaredLogger
}

// New creates a new logger at info level
func New() Logger {
	return NewWithLevel("info")
}

// NewWithLevel creates a new logger with specific level
func NewWithLevel(level string) Logger {
	lvl := zapcore.InfoLevel
	switch level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "info":
		lvl = zapcore.InfoLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	case "fatal":
		lvl = zapcore.FatalLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return &noOpLogger{}
	}

	return &zapLogger{log: log.Sugar()}
}

// NewLogger creates a named logger at info level
func NewLogger(name string) Logger {
	base := NewWithLevel("info")
	if zl, ok := base.(*zapLogger); ok {
		return &zapLogger{log: zl.log.Named(name)}
	}
	return base
}

// NoOp returns a no-op logger
func NoOp() Logger {
	return &noOpLogger{}
}

// NoLog is a no-op logger instance
var NoLog = NoOp()

// Debug logs a debug message
func (l *zapLogger) Debug(msg string, kv ...interface{}) {
	l.log.Debugw(msg, kv...)
}

// Info logs an info message
func (l *zapLogger) Info(msg string, kv ...interface{}) {
	l.log.Infow(msg, kv...)
}

// Warn logs a warning message
func (l *zapLogger) Warn(msg string, kv ...interface{}) {
	l.log.Warnw(msg, kv...)
}

// Error logs an error message
func (l *zapLogger) Error(msg string, kv ...interface{}) {
	l.log.Errorw(msg, kv...)
}

// Fatal logs a fatal message and exits
func (l *zapLogger) Fatal(msg string, kv ...interface{}) {
	l.log.Fatalw(msg, kv...)
}

// Sync flushes any buffered log entries
func (l *zapLogger) Sync() error {
	return l.log.Sync()
}

// noOpLogger is a logger that does nothing
type noOpLogger struct{}

func (n *noOpLogger) Debug(msg string, kv ...interface{}) {}
func (n *noOpLogger) Info(msg string, kv ...interface{})  {}
func (n *noOpLogger) Warn(msg string, kv ...interface{})  {}
func (n *noOpLogger) Error(msg string, kv ...interface{}) {}
func (n *noOpLogger) Fatal(msg string, kv ...interface{}) {}
func (n *noOpLogger) Sync() error                         { return nil }
