// Package logging provides the process-wide structured logger used by every
// component. It wraps zap the same way across the CLI, the daemon, and the
// orchestration packages, so a single SetLevel call governs verbosity
// everywhere.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.Mutex
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	logger = buildLogger()
)

func buildLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		// Fall back to a nop logger rather than panic; logging must never be
		// the reason a run fails.
		return zap.NewNop()
	}
	return l
}

// L returns the process-wide *zap.Logger.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// S returns the process-wide *zap.SugaredLogger.
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// SetLevel adjusts the minimum level logged from this point forward.
func SetLevel(lvl zapcore.Level) {
	mu.Lock()
	defer mu.Unlock()
	level.SetLevel(lvl)
}

// NewLogger builds a *zap.Logger that additionally writes to the given
// WriteSyncer, at the current process level. Used by the daemon to tee
// per-request progress into an HTTP response while still logging to stderr.
func NewLogger(extra zapcore.WriteSyncer) *zap.Logger {
	mu.Lock()
	base := logger
	mu.Unlock()

	core := zapcore.NewTee(
		base.Core(),
		zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), extra, level),
	)
	return zap.New(core)
}
