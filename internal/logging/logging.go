// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jeranaias/agentdesk/internal/config"
)

// ParseLevel converts a case-insensitive level name to a zap level.
//
// Accepted values:
//   - "trace" or "debug" → debug (zap has no level below debug)
//   - "info" or "" → info
//   - "warn" or "warning" → warn
//   - "error" → error
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// New builds a logger from cfg. Output goes to cfg.File, or stderr when it
// is empty.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var encoderCfg zapcore.EncoderConfig
	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	switch format {
	case "", "console":
		format = "console"
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	case "json":
		encoderCfg = zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q (valid: console, json)", cfg.Format)
	}

	out := "stderr"
	if cfg.File != "" {
		out = cfg.File
	}

	zcfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Encoding:          format,
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{out},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
