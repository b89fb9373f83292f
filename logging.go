package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logPath is the log file under the user cache dir. The terminal belongs to
// the UI, so logs never go to stdout or stderr.
func logPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine cache directory: %w", err)
	}
	return filepath.Join(dir, "notepad", "notepad.log"), nil
}

// newLogger builds a JSON file logger at the given level. An unknown level
// falls back to info.
func newLogger(level, path string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}

	return cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}

// openLogger returns the app logger, or a no-op logger when the log file
// cannot be opened.
func openLogger(level string) *zap.Logger {
	path, err := logPath()
	if err != nil {
		return zap.NewNop()
	}
	log, err := newLogger(level, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging disabled: %v\n", err)
		return zap.NewNop()
	}
	return log
}
