// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app wires the backend client, the event bus and every session
// component into one object the REPL drives.
//
// Wiring order matters: components subscribe to the bus in construction
// order, and handlers run in subscription order. The model registry and the
// role session are built before the conversation session so a loaded
// transcript's role is adopted before anything reads it.
package app
