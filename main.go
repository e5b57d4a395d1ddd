// agentdesk - terminal client for a multi-model chat backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jeranaias/agentdesk/internal/app"
	"github.com/jeranaias/agentdesk/internal/cli"
	"github.com/jeranaias/agentdesk/internal/config"
	"github.com/jeranaias/agentdesk/internal/logging"
)

// Version information (set at build time)
var Version = "0.1.0"

func init() {
	cli.Version = Version
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	args, err := cli.Parse(argv)
	if err != nil {
		cli.DisplayError(os.Stderr, err)
		cli.PrintUsage(os.Stderr)
		return cli.ExitCode(err)
	}
	if args.Help {
		cli.PrintUsage(os.Stdout)
		return cli.ExitSuccess
	}
	if args.Version {
		cli.PrintVersion(os.Stdout)
		return cli.ExitSuccess
	}

	if err := config.LoadDotEnv(args.EnvFile); err != nil {
		cli.DisplayError(os.Stderr, err)
		return cli.ExitConfigError
	}
	cfg, path, err := loadConfig(args)
	if err != nil {
		cli.DisplayError(os.Stderr, err)
		return cli.ExitConfigError
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		cli.DisplayError(os.Stderr, err)
		return cli.ExitConfigError
	}
	defer func() { _ = logger.Sync() }()

	a := app.New(cfg, logger)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// An unreachable backend is not fatal; /reprobe retries.
	if _, err := a.Connect(ctx); err != nil {
		logger.Warn("initial probe failed", zap.Error(err))
		cli.DisplayError(os.Stderr, err)
	}

	if path != "" && args.URL == "" {
		go watchConfig(ctx, a, path, cfg.Backend.URL)
	}

	repl, err := cli.NewREPL(a, cli.Options{
		HistoryFile: historyFile(cfg),
		Plain:       args.Plain || cfg.UI.PlainText,
		Width:       cfg.UI.Width,
		Theme:       cfg.UI.Theme,
	})
	if err != nil {
		cli.DisplayError(os.Stderr, err)
		return cli.ExitGeneralError
	}
	defer func() { _ = repl.Close() }()

	if err := repl.Run(ctx); err != nil {
		cli.DisplayError(os.Stderr, err)
		return cli.ExitCode(err)
	}
	return cli.ExitSuccess
}

// loadConfig reads the config file named on the command line, or the
// default one, and applies flag overrides. It also returns the path of the
// file that was read, or "" when only defaults were used.
func loadConfig(args cli.Args) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if args.ConfigPath != "" {
		path = args.ConfigPath
		cfg, err = config.LoadFromPath(path)
	} else {
		path = config.ActivePath()
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, "", err
	}

	if args.URL != "" {
		cfg.Backend.URL = args.URL
	}
	if args.LogLevel != "" {
		cfg.Logging.Level = args.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, path, nil
}

// watchConfig retargets the app when the config file changes the backend
// address. Other settings take effect on the next start.
func watchConfig(ctx context.Context, a *app.App, path, url string) {
	logger := a.Logger.Named("config")
	err := config.Watch(ctx, path, config.DefaultWatchDebounce, func(next *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
			return
		}
		if next.Backend.URL == url {
			return
		}
		url = next.Backend.URL
		if _, err := a.Retarget(ctx, url); err != nil {
			logger.Warn("reconnect after config change failed", zap.String("url", url), zap.Error(err))
		}
	})
	if err != nil {
		logger.Warn("config watch stopped", zap.Error(err))
	}
}

func historyFile(cfg *config.Config) string {
	if cfg.UI.HistoryFile != "" {
		return cfg.UI.HistoryFile
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}
