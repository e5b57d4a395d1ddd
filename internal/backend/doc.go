// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the chat backend REST API.
//
// The client is a thin, classified transport: it knows every route the
// session components need, maps HTTP outcomes onto a small error taxonomy,
// and holds the single bound Endpoint. It owns no session state.
//
// # Key Types
//
//   - Client: endpoint binding, rate limiting and one method per route
//   - ClientError: classified failure (Unreachable, Forbidden, Conflict,
//     InvalidInput, Busy, RemoteFailure)
//   - Snapshot: order-preserving capability snapshot from GET /api/models
//
// # Usage
//
//	client := backend.NewClientWithConfig(&backend.ClientConfig{Logger: logger})
//	if err := client.Ping(ctx, client.Candidate()); err != nil {
//	    return err
//	}
//	_ = client.Bind(client.Candidate())
//	snap, err := client.FetchSnapshot(ctx)
//
// # Error Mapping
//
// Transport failures and calls made while unbound are Unreachable. Status
// 403 is Forbidden, 409 Conflict, 400 InvalidInput, and every other non-2xx
// status is RemoteFailure. The backend's {"error": "..."} detail becomes the
// error message when present.
package backend
