// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the agentdesk command line and interactive REPL.
//
// # Key Types
//
//   - Args: parsed command-line flags
//   - REPL: line loop that sends chat messages and runs slash commands
//   - CommandLine: one parsed slash command
//   - UsageError: malformed flag or command
//
// # Usage
//
//	args, err := cli.Parse(os.Args[1:])
//	repl, err := cli.NewREPL(application, cli.Options{Plain: args.Plain})
//	defer repl.Close()
//	return repl.Run(ctx)
//
// Output is colored only on a terminal and never when NO_COLOR is set.
// Replies are rendered as markdown with glamour unless --plain is given.
package cli
