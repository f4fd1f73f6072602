package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log *zap.SugaredLogger
)

// Init installs the global logger at the given level ("debug", "info",
// "warn", "error"). An empty level falls back to GHOSTCHAT_LOG_LEVEL and
// then to info. Init may be called again to change the level.
func Init(level string) {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = strings.ToLower(strings.TrimSpace(os.Getenv("GHOSTCHAT_LOG_LEVEL")))
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

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		// fall back to a no-op logger rather than failing startup
		l = zap.NewNop()
	}
	mu.Lock()
	log = l.Sugar()
	mu.Unlock()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init("")
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Sync flushes buffered log entries. Safe to call at shutdown.
func Sync() { _ = get().Sync() }

// Debug logs an event with alternating key/value pairs.
func Debug(event string, kv ...interface{}) { get().Debugw(event, kv...) }

// Info logs an event with alternating key/value pairs.
func Info(event string, kv ...interface{}) { get().Infow(event, kv...) }

// Warn logs an event with alternating key/value pairs.
func Warn(event string, kv ...interface{}) { get().Warnw(event, kv...) }

// Error logs an event with alternating key/value pairs.
func Error(event string, kv ...interface{}) { get().Errorw(event, kv...) }
