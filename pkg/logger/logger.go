// Package logger holds the process-wide structured logger. Components log
// through the package-level helpers so call sites stay terse.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger

// Init builds the global logger at the given level ("debug", "info",
// "warn", "error"). An empty level falls back to MSGCORE_LOG_LEVEL, then
// to info. JSON output on stdout; MSGCORE_LOG_DEV=1 switches to the
// development console encoder.
func Init(level string) {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(os.Getenv("MSGCORE_LOG_LEVEL")))
	}
	var zl zapcore.Level
	switch lvl {
	case "debug":
		zl = zapcore.DebugLevel
	case "warn", "warning":
		zl = zapcore.WarnLevel
	case "error":
		zl = zapcore.ErrorLevel
	default:
		zl = zapcore.InfoLevel
	}

	var cfg zap.Config
	if os.Getenv("MSGCORE_LOG_DEV") == "1" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(zl)
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// last resort: a no-op logger keeps callers nil-safe
		log = zap.NewNop().Sugar()
		return
	}
	log = l.Sugar()
}

// Sync flushes buffered log entries.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

// Debug logs with key/value pairs.
func Debug(msg string, kv ...any) {
	if log == nil {
		return
	}
	log.Debugw(msg, kv...)
}

// Info logs with key/value pairs.
func Info(msg string, kv ...any) {
	if log == nil {
		return
	}
	log.Infow(msg, kv...)
}

// Warn logs with key/value pairs.
func Warn(msg string, kv ...any) {
	if log == nil {
		return
	}
	log.Warnw(msg, kv...)
}

// Error logs with key/value pairs.
func Error(msg string, kv ...any) {
	if log == nil {
		return
	}
	log.Errorw(msg, kv...)
}
