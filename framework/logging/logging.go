// Package logging builds the zap logger of a registry application.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/km-arc/go-registry/framework/config"
)

// New returns a production logger when the environment is production and a
// development logger otherwise, at the configured level. Debug mode forces
// the debug level.
func New(cfg *config.Config) (*zap.Logger, error) {
	if cfg == nil {
		return zap.NewNop(), nil
	}

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Log.Level, err)
	}
	if cfg.App.Debug {
		level = zapcore.DebugLevel
	}

	var zcfg zap.Config
	switch cfg.App.Env {
	case "production":
		zcfg = zap.NewProductionConfig()
	case "testing":
		return zap.NewNop(), nil
	default:
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Named(cfg.App.Name), nil
}
