// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package models derives the selectable model list from the capability
// snapshot and owns the model selection and web-search flag.
//
// # Key Types
//
//   - Registry: flat model list, selection, web-search flag
//   - Descriptor: one model with its derived label and web-search support
//   - Selection: what a chat request carries
package models
