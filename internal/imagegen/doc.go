// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package imagegen runs image generation requests and owns the single
// displayed result.
//
// # Key Types
//
//   - Workflow: issues requests and decides which result is shown
//   - Request: prompt plus model, size, quality and style
//   - State: what the display slot holds right now
//
// # Supersession
//
// Every Generate call takes a new sequence number and clears the slot at
// once. A response is written to the slot only if no newer call has
// started since; older responses are dropped and their callers receive
// ErrSuperseded. Requests are never cancelled, only outrun.
package imagegen
