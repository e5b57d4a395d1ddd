// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter writes the complete transcript, metadata included.
type JSONExporter struct{}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

type jsonSearchResult struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

type jsonMessage struct {
	Role          string             `json:"role"`
	Content       string             `json:"content"`
	SearchResults []jsonSearchResult `json:"search_results,omitempty"`
}

type jsonTranscript struct {
	Title      string        `json:"title"`
	Model      string        `json:"model,omitempty"`
	Role       string        `json:"role,omitempty"`
	ExportedAt string        `json:"exported_at"`
	Messages   []jsonMessage `json:"messages"`
}

// Export converts a transcript to indented JSON.
func (e *JSONExporter) Export(t *Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}

	out := jsonTranscript{
		Title:      t.Title,
		Model:      t.Model,
		Role:       t.Role,
		ExportedAt: t.ExportedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Messages:   make([]jsonMessage, 0, len(t.Messages)),
	}
	for _, m := range t.Messages {
		jm := jsonMessage{Role: m.Role, Content: m.Content}
		for _, r := range m.SearchResults {
			jm.SearchResults = append(jm.SearchResults, jsonSearchResult{Title: r.Title, URL: r.URL})
		}
		out.Messages = append(out.Messages, jm)
	}
	return json.MarshalIndent(out, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}
