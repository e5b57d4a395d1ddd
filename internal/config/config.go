// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/agentdesk/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete agentdesk configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Backend connection settings
	Backend BackendConfig `toml:"backend" json:"backend"`

	// Model selection applied after connecting
	Models ModelsConfig `toml:"models" json:"models"`

	// Image generation defaults
	Image ImageConfig `toml:"image" json:"image"`

	// Logging output
	Logging LoggingConfig `toml:"logging" json:"logging"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// BackendConfig describes how to reach the chat backend.
type BackendConfig struct {
	// URL is the single well-known address probed on startup
	URL string `toml:"url" json:"url"`
	// TimeoutSecs bounds every backend request
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// ProbeTimeoutSecs bounds the health check
	ProbeTimeoutSecs int `toml:"probe_timeout_secs" json:"probe_timeout_secs"`
	// RequestsPerSecond caps the client-side request rate
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	// Burst is the number of requests allowed above the rate at once
	Burst int `toml:"burst" json:"burst"`
}

// ModelsConfig contains model preferences.
type ModelsConfig struct {
	// Preferred is selected after connecting when the backend offers it
	Preferred string `toml:"preferred" json:"preferred"`
	// WebSearch turns web search on after connecting when the model allows it
	WebSearch bool `toml:"web_search" json:"web_search"`
}

// ImageConfig contains image generation defaults.
type ImageConfig struct {
	Model   string `toml:"model" json:"model"`
	Size    string `toml:"size" json:"size"`
	Quality string `toml:"quality" json:"quality"`
	Style   string `toml:"style" json:"style"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error
	Level string `toml:"level" json:"level"`
	// Format is "console" or "json"
	Format string `toml:"format" json:"format"`
	// File receives log output; empty means stderr
	File string `toml:"file" json:"file"`
}

// UIConfig contains REPL presentation settings.
type UIConfig struct {
	// Theme is the glamour style: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// PlainText disables markdown rendering of replies
	PlainText bool `toml:"plain_text" json:"plain_text"`
	// HistoryFile stores REPL line history; empty means ~/.agentdesk/history
	HistoryFile string `toml:"history_file" json:"history_file"`
	// Width wraps rendered replies; 0 means the terminal width
	Width int `toml:"width" json:"width"`
}

// Timeout returns the request timeout as a duration.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSecs) * time.Second
}

// ProbeTimeout returns the health check timeout as a duration.
func (b BackendConfig) ProbeTimeout() time.Duration {
	return time.Duration(b.ProbeTimeoutSecs) * time.Second
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Backend: BackendConfig{
			URL:               "http://localhost:5001",
			TimeoutSecs:       120,
			ProbeTimeoutSecs:  5,
			RequestsPerSecond: 20,
			Burst:             10,
		},

		Image: ImageConfig{
			Model:   "dall-e-3",
			Size:    "1024x1024",
			Quality: "standard",
			Style:   "vivid",
		},

		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},

		UI: UIConfig{
			Theme: "dark",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the agentdesk configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".agentdesk"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ActivePath returns the config file Load would read, or "" if none exists.
func ActivePath() string {
	for _, fn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := fn()
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadDotEnv loads KEY=value pairs from path into the process environment.
// Variables already set are left alone. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	if path := ActivePath(); path != "" {
		return LoadFromPath(path)
	}
	return finish(Default())
}

// LoadTOML loads configuration from a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// LoadJSON loads configuration from a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	fillDefaults(cfg)
	return nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Version == "" {
		cfg.Version = defaults.Version
	}

	// Backend
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = defaults.Backend.URL
	}
	if cfg.Backend.TimeoutSecs == 0 {
		cfg.Backend.TimeoutSecs = defaults.Backend.TimeoutSecs
	}
	if cfg.Backend.ProbeTimeoutSecs == 0 {
		cfg.Backend.ProbeTimeoutSecs = defaults.Backend.ProbeTimeoutSecs
	}
	if cfg.Backend.RequestsPerSecond == 0 {
		cfg.Backend.RequestsPerSecond = defaults.Backend.RequestsPerSecond
	}
	if cfg.Backend.Burst == 0 {
		cfg.Backend.Burst = defaults.Backend.Burst
	}

	// Image
	if cfg.Image.Model == "" {
		cfg.Image.Model = defaults.Image.Model
	}
	if cfg.Image.Size == "" {
		cfg.Image.Size = defaults.Image.Size
	}
	if cfg.Image.Quality == "" {
		cfg.Image.Quality = defaults.Image.Quality
	}
	if cfg.Image.Style == "" {
		cfg.Image.Style = defaults.Image.Style
	}

	// Logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}

	// UI
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# agentdesk configuration file\n")
	b.WriteString("# Generated by agentdesk - edit with care\n\n")

	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validLevels  = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	validFormats = map[string]bool{"console": true, "json": true}
	validThemes  = map[string]bool{"dark": true, "light": true, "auto": true}
)

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Backend
	if u, err := url.Parse(c.Backend.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "backend.url",
			Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host[:port]", c.Backend.URL),
		})
	}
	if c.Backend.TimeoutSecs < 1 {
		errs = append(errs, ValidationError{Field: "backend.timeout_secs", Message: "must be at least 1"})
	}
	if c.Backend.ProbeTimeoutSecs < 1 {
		errs = append(errs, ValidationError{Field: "backend.probe_timeout_secs", Message: "must be at least 1"})
	}
	if c.Backend.RequestsPerSecond <= 0 {
		errs = append(errs, ValidationError{Field: "backend.requests_per_second", Message: "must be positive"})
	}
	if c.Backend.Burst < 1 {
		errs = append(errs, ValidationError{Field: "backend.burst", Message: "must be at least 1"})
	}

	// Image
	if _, _, ok := strings.Cut(c.Image.Size, "x"); !ok {
		errs = append(errs, ValidationError{
			Field:   "image.size",
			Message: fmt.Sprintf("invalid size '%s', expected WIDTHxHEIGHT", c.Image.Size),
		})
	}

	// Logging
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: trace, debug, info, warn, error", c.Logging.Level),
		})
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: console, json", c.Logging.Format),
		})
	}

	// UI
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}
	if c.UI.Width < 0 {
		errs = append(errs, ValidationError{Field: "ui.width", Message: "must not be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - AGENTDESK_BACKEND_URL: overrides backend.url
//   - AGENTDESK_TIMEOUT: overrides backend.timeout_secs
//   - AGENTDESK_RATE_LIMIT: overrides backend.requests_per_second
//   - AGENTDESK_MODEL: overrides models.preferred
//   - AGENTDESK_IMAGE_MODEL: overrides image.model
//   - AGENTDESK_LOG_LEVEL: overrides logging.level
//   - AGENTDESK_LOG_FORMAT: overrides logging.format
//   - AGENTDESK_LOG_FILE: overrides logging.file
//
// Numeric variables that fail to parse are reported as ValidateErrors.
func (c *Config) ApplyEnvOverrides() error {
	var errs ValidateErrors

	if v := os.Getenv("AGENTDESK_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("AGENTDESK_TIMEOUT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, ValidationError{Field: "AGENTDESK_TIMEOUT", Message: fmt.Sprintf("not an integer: %q", v)})
		} else {
			c.Backend.TimeoutSecs = n
		}
	}
	if v := os.Getenv("AGENTDESK_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, ValidationError{Field: "AGENTDESK_RATE_LIMIT", Message: fmt.Sprintf("not a number: %q", v)})
		} else {
			c.Backend.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("AGENTDESK_MODEL"); v != "" {
		c.Models.Preferred = v
	}
	if v := os.Getenv("AGENTDESK_IMAGE_MODEL"); v != "" {
		c.Image.Model = v
	}
	if v := os.Getenv("AGENTDESK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AGENTDESK_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("AGENTDESK_LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a JSON rendering of the config for debugging.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
