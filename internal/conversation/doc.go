// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation owns the live chat transcript and the list of saved
// conversations.
//
// # Key Types
//
//   - Session: send/receive cycle plus save, list, load and delete
//   - Message: one user or assistant turn with optional search results
//   - Summary: a saved conversation that has not been loaded
//
// # Ordering
//
// Every operation that changes the transcript goes through one FIFO worker.
// A Send issued before a Clear always finishes, reply included, before the
// Clear starts.
//
// # Optimistic Append
//
// Send records the user message before the backend answers and never
// removes it. A failed request leaves an unanswered user turn in the
// transcript.
package conversation
