// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package role tracks the active conversational role and mediates role
// switch, save and delete against the backend.
//
// The built-in roles (assistant, programmer, creative) can never be
// deleted; the session refuses such requests locally with a Forbidden error.
// Deleting the active role falls back to the assistant role.
package role
