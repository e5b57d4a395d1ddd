// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the config layer and the REPL.
//
// # Key Functions
//
//   - AtomicWriteFile: Crash-safe file writing with fsync
//   - TruncateWidth, PadWidth: Display-width aware column formatting
//   - FirstLine: Single-line preview of multi-line text
//
// # Usage
//
//	cell := util.PadWidth(util.TruncateWidth(title, 30), 30)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
