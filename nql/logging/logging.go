// Package logging wires the engine's structured logging through
// go.uber.org/zap, the way kubekattle and gastown wire it for their
// own CLIs: a package-level no-op default so the core never panics
// when unconfigured, with the real logger installed explicitly by the
// command-line frontend.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a SugaredLogger at the given level, console-encoded for a
// terminal when dev is true and JSON-encoded otherwise.
func New(level string, dev bool) (*zap.SugaredLogger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything, for tests and any
// caller that hasn't configured one explicitly.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
