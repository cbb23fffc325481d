// Package utils provides shared utilities for text, math, and logging.
package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger. When debug is true, uses development config
// (human-readable, debug level); otherwise uses production config (JSON, info level).
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// NopLogger returns a logger that discards everything. Components accept an
// injected logger; passing this keeps them quiet in tests.
func NopLogger() *zap.Logger {
	return zap.NewNop()
}
