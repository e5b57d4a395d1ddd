// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agentdesk/internal/conversation"
)

func sampleTranscript() *Transcript {
	return &Transcript{
		Title: "Trip plan",
		Model: "gpt-4",
		Role:  "assistant",
		Messages: []conversation.Message{
			{Role: "user", Content: "Where should I go?"},
			{Role: "assistant", Content: "  Try **Lisbon**.  ", SearchResults: []conversation.SearchResult{
				{Title: "Lisbon guide", URL: "https://example.com/lisbon"},
				{URL: "https://example.com/raw"},
			}},
		},
		ExportedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMarkdownExport(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(sampleTranscript())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\ntitle: Trip plan\nmodel: gpt-4\nrole: assistant\nmessages: 2\n"))
	assert.Contains(t, md, "# Trip plan\n")
	assert.Contains(t, md, "### [User]\n\nWhere should I go?")
	assert.Contains(t, md, "### [Assistant]\n\nTry **Lisbon**.\n")
	assert.Contains(t, md, "1. [Lisbon guide](https://example.com/lisbon)")
	assert.Contains(t, md, "2. [https://example.com/raw](https://example.com/raw)")
	assert.Equal(t, 1, strings.Count(md, "\n---\n\n###"), "one separator between two messages")
}

func TestMarkdownExport_NoMetadata(t *testing.T) {
	out, err := NewMarkdownExporter(&Options{}).Export(sampleTranscript())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "# Trip plan"))
}

func TestMarkdownExport_YAMLEscaping(t *testing.T) {
	tr := sampleTranscript()
	tr.Title = "Test\nInjection: malicious \\ path"

	out, err := NewMarkdownExporter(nil).Export(tr)
	require.NoError(t, err)
	assert.Contains(t, string(out), `title: "Test\nInjection: malicious \\ path"`)
	assert.NotContains(t, string(out), "\nInjection: malicious")
}

func TestExport_EmptyTranscript(t *testing.T) {
	for _, exp := range []Exporter{NewMarkdownExporter(nil), NewJSONExporter()} {
		_, err := exp.Export(&Transcript{Title: "empty"})
		assert.Error(t, err)
		_, err = exp.Export(nil)
		assert.Error(t, err)
	}
}

func TestJSONExport(t *testing.T) {
	out, err := NewJSONExporter().Export(sampleTranscript())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "Trip plan", got["title"])
	assert.Equal(t, "2024-05-01T12:00:00Z", got["exported_at"])

	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.NotContains(t, msgs[0].(map[string]any), "search_results")
	assert.Len(t, msgs[1].(map[string]any)["search_results"], 2)
}

func TestForFormat(t *testing.T) {
	for format, ext := range map[string]string{"": ".md", "md": ".md", "Markdown": ".md", "json": ".json"} {
		exp, err := ForFormat(format, nil)
		require.NoError(t, err, format)
		assert.Equal(t, ext, exp.FileExtension())
	}
	_, err := ForFormat("html", nil)
	assert.Error(t, err)
}

func TestExportToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	tr := sampleTranscript()
	tr.Title = "Trip/plan: v2"

	path, err := ExportToFile(tr, NewJSONExporter(), &Options{OutputDir: dir})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "conversation_Trip-plan-_v2_20240501_120000.json"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestExportToFile_SetsExportTime(t *testing.T) {
	tr := sampleTranscript()
	tr.ExportedAt = time.Time{}

	_, err := ExportToFile(tr, NewMarkdownExporter(nil), &Options{OutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.False(t, tr.ExportedAt.IsZero())
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Test/Path\\Name:With*Special?Chars", "Test-Path-Name-With-Special-Chars"},
		{"Test<HTML>Tags|Pipe", "Test-HTML-Tags-Pipe"},
		{"Spaces\tand\nnewlines\r", "Spaces_and_newlines_"},
		{"ctl\x00\x1f\x7f", "ctl---"},
		{"", "conversation"},
		{strings.Repeat("é", 60), strings.Repeat("é", 50)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.input), "%q", tt.input)
	}
}
