// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes the live transcript to a local file.
//
// # Key Types
//
//   - Transcript: messages plus title, model and role
//   - Exporter: format interface (Markdown, JSON)
//   - Options: output directory and metadata header
//
// # Usage
//
//	exporter, err := export.ForFormat("md", nil)
//	path, err := export.ExportToFile(&export.Transcript{
//	    Title:    "Trip plan",
//	    Messages: session.Transcript(),
//	}, exporter, &export.Options{OutputDir: "exports"})
package export
