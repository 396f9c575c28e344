// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the encoder flavour and the starting level.
type Options struct {
	Development bool
	// Level is a zap level name ("debug", "info", ...). Empty keeps the flavour's default.
	Level string
}

// New builds a zap.Logger configured for development or production. The returned AtomicLevel can be
// changed at runtime, e.g. when the config file is edited.
func New(opts Options) (*zap.Logger, zap.AtomicLevel, error) {
	var cfg zap.Config
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
	}
	cfg.EncoderConfig.TimeKey = "ts"

	if opts.Level != "" {
		lvl, err := ParseLevel(opts.Level)
		if err != nil {
			return nil, zap.AtomicLevel{}, err
		}
		cfg.Level.SetLevel(lvl)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("build logger: %w", err)
	}
	return logger, cfg.Level, nil
}

// ParseLevel parses a level name case-insensitively.
func ParseLevel(name string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return lvl, fmt.Errorf("parse log level %q: %w", name, err)
	}
	return lvl, nil
}
