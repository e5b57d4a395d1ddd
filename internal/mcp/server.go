// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcp

import "github.com/jeranaias/agentdesk/internal/backend"

// Status represents the connection state of an MCP server.
type Status string

const (
	// StatusDisconnected indicates no connection and none pending
	StatusDisconnected Status = "disconnected"

	// StatusConnecting indicates a connect request is in flight
	StatusConnecting Status = "connecting"

	// StatusConnected indicates the backend holds a live connection
	StatusConnected Status = "connected"

	// StatusDisconnecting indicates a disconnect request is in flight
	StatusDisconnecting Status = "disconnecting"

	// StatusFailed indicates the last connect or disconnect failed
	StatusFailed Status = "failed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Transitional reports whether s only exists while a request is in flight.
func (s Status) Transitional() bool {
	return s == StatusConnecting || s == StatusDisconnecting
}

// ParseStatus converts a backend status string. Anything unrecognised,
// including "unknown", is treated as disconnected.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusConnecting, StatusConnected, StatusDisconnecting, StatusFailed:
		return Status(s)
	default:
		return StatusDisconnected
	}
}

// isValidTransition checks if a status transition is allowed.
//
//	disconnected --connect--> connecting --ok--> connected
//	                          connecting --err-> failed
//	connected --disconnect--> disconnecting --ok--> disconnected
//	                          disconnecting --err-> failed
//	failed --connect--> connecting
func isValidTransition(from, to Status) bool {
	switch from {
	case StatusDisconnected:
		return to == StatusConnecting
	case StatusConnecting:
		return to == StatusConnected || to == StatusFailed
	case StatusConnected:
		return to == StatusDisconnecting
	case StatusDisconnecting:
		return to == StatusDisconnected || to == StatusFailed
	case StatusFailed:
		return to == StatusConnecting
	default:
		return false
	}
}

// ServerConfig is the caller-supplied configuration of a server.
type ServerConfig struct {
	URL string
}

// Server is one tracked MCP server.
type Server struct {
	ID     string
	Config ServerConfig
	Status Status
}

func fromInfo(info backend.MCPServerInfo) Server {
	s := Server{ID: info.ID, Status: ParseStatus(info.Status)}
	if info.Config != nil {
		s.Config.URL = info.Config.URL
	}
	return s
}
