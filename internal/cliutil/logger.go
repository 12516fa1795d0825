// Package cliutil holds the small pieces every cmd/*/main.go shares:
// logger construction from a --log-level flag. Grounded on
// arkeep/server/cmd/server/main.go's buildLogger.
package cliutil

import "go.uber.org/zap"

// BuildLogger constructs a zap.Logger whose base config and level both
// follow the given level string, matching the teacher's buildLogger.
func BuildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}
