// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package connectivity discovers the backend, binds the client to it and
// owns the capability snapshot.
//
// Probing is a single health check against the configured address. There is
// no retry loop and no background polling: the caller decides when to probe
// again, and Reprobe is the only way to move to a different endpoint.
//
// # Key Types
//
//   - Prober: probe, re-probe and on-demand capability refresh
//   - Connection: the bound endpoint with what was fetched after binding
package connectivity
