// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command-line flags for the agentdesk binary.

package cli

import (
	"fmt"
	"io"
	"strings"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

// Args holds the parsed command-line flags.
type Args struct {
	ConfigPath string // --config, -c: explicit config file
	EnvFile    string // --env: dotenv file loaded before config
	URL        string // --url, -u: backend address override
	LogLevel   string // --log-level: logging level override
	Plain      bool   // --plain: no markdown rendering
	Version    bool   // --version, -v
	Help       bool   // --help, -h
}

// Parse parses command-line arguments, excluding the program name.
func Parse(raw []string) (Args, error) {
	p := NewArgParser(raw, "plain", "version", "v", "help", "h")

	args := Args{
		ConfigPath: p.Flag("config", "c"),
		EnvFile:    p.Flag("env"),
		URL:        p.Flag("url", "u"),
		LogLevel:   p.Flag("log-level"),
		Plain:      p.BoolFlag("plain"),
		Version:    p.BoolFlag("version", "v"),
		Help:       p.BoolFlag("help", "h"),
	}
	if args.EnvFile == "" {
		args.EnvFile = ".env"
	}

	for _, name := range []string{"config", "c", "env", "url", "u", "log-level"} {
		if p.HasFlag(name) && p.Flag(name) == "" {
			return args, &UsageError{Field: "--" + name, Reason: "requires a value"}
		}
	}
	if p.PositionalCount() > 0 {
		return args, &UsageError{Field: "argument", Value: p.Positional(0), Reason: "unexpected"}
	}
	return args, nil
}

// PrintUsage writes the command-line help to w.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, strings.TrimLeft(`
agentdesk - terminal client for a multi-model chat backend

Usage:
  agentdesk [flags]

Flags:
  -c, --config PATH     Config file (default ~/.agentdesk/config.toml)
      --env PATH        Dotenv file loaded first (default .env)
  -u, --url URL         Backend address (overrides config)
      --log-level LEVEL trace, debug, info, warn or error
      --plain           Print replies without markdown rendering
  -v, --version         Print version and exit
  -h, --help            Show this help

Type /help inside the session for commands.
`, "\n"))
}

// PrintVersion writes the version line to w.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "agentdesk %s\n", Version)
}
