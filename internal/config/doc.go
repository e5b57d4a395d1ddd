// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for agentdesk.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, validation and hot reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - BackendConfig: Backend address, timeouts and request rate
//   - ImageConfig: Image generation defaults
//   - LoggingConfig: Log level, format and destination
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (AGENTDESK_*), optionally seeded from ./.env
//   - ~/.agentdesk/config.toml
//   - ~/.agentdesk/config.json
//   - Built-in defaults
//
// # Usage
//
//	_ = config.LoadDotEnv(".env")
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	go config.Watch(ctx, config.ActivePath(), 0, func(next *config.Config, err error) {
//	    // react to backend.url changes
//	})
package config
