// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mcp manages the lifecycle of the MCP (tool provider) servers the
// backend can bridge to.
//
// # Key Types
//
//   - Manager: owns the server set and per-server busy flags
//   - Server: id, configuration and connection status
//   - Status: disconnected, connecting, connected, disconnecting, failed
//
// # State Machine
//
//	disconnected --connect--> connecting --ok--> connected
//	connecting --err--> failed --connect--> connecting
//	connected --disconnect--> disconnecting --ok--> disconnected
//	disconnecting --err--> failed
//
// # Usage
//
//	mgr := mcp.NewManager(client, bus, logger)
//	servers, err := mgr.Servers(ctx) // loads on first access
//	if err := mgr.Connect(ctx, "filesystem"); backend.IsBusy(err) {
//	    // another operation on "filesystem" is still running
//	}
package mcp
