// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package slog is the process-wide structured logger. It mirrors the
// level-function style of a plain stdlib logger (Debug/Info/Warn/Error/
// Fatal package functions, a global level filter set once at startup)
// but is backed by zap so every log line carries structured fields
// instead of formatted strings.
package slog

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	base   *zap.Logger = mustBuild(zapcore.InfoLevel)
	level              = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func mustBuild(lvl zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(cfg)
	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), zap.NewAtomicLevelAt(lvl))
	return zap.New(core)
}

// SetLevel sets the minimum level emitted. Valid values: "debug",
// "info", "warn", "error". An unrecognized value falls back to "info".
func SetLevel(name string) {
	mu.Lock()
	defer mu.Unlock()

	var lvl zapcore.Level
	switch name {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn", "warning":
		lvl = zapcore.WarnLevel
	case "error", "err", "crit", "critical":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}
	level.SetLevel(lvl)
	base = mustBuild(lvl)
}

func logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Field is a structured key-value pair attached to a log line.
type Field = zap.Field

// String, Int, Float64, Err, Duration construct structured fields;
// re-exported so callers do not need to import zap directly.
var (
	String   = zap.String
	Int      = zap.Int
	Int64    = zap.Int64
	Float64  = zap.Float64
	Err      = zap.Error
	Duration = zap.Duration
)

func Debug(msg string, fields ...Field) { logger().Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { logger().Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { logger().Warn(msg, fields...) }
func Error(msg string, fields ...Field) { logger().Error(msg, fields...) }

// Fatal logs at fatal level and then terminates the process, mirroring
// the teacher's Abortf used at unrecoverable configuration failures.
func Fatal(msg string, fields ...Field) { logger().Fatal(msg, fields...) }

// Sync flushes any buffered log entries; call before process exit.
func Sync() error { return logger().Sync() }
