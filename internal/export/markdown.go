// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/agentdesk/internal/conversation"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports transcripts to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a transcript to Markdown. Assistant replies are written
// as-is since they are already Markdown.
func (e *MarkdownExporter) Export(t *Transcript) ([]byte, error) {
	if err := validate(t); err != nil {
		return nil, err
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(t.Title))
		if t.Model != "" {
			fmt.Fprintf(&sb, "model: %s\n", escapeYAML(t.Model))
		}
		if t.Role != "" {
			fmt.Fprintf(&sb, "role: %s\n", escapeYAML(t.Role))
		}
		fmt.Fprintf(&sb, "messages: %d\n", len(t.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", t.ExportedAt.Format(time.RFC3339))
		sb.WriteString("generator: agentdesk\n")
		sb.WriteString("---\n\n")
	}

	title := strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(t.Title)
	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(title))

	for i, msg := range t.Messages {
		fmt.Fprintf(&sb, "### %s\n\n", formatRoleLabel(msg.Role))
		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if sources := formatSources(msg.SearchResults); sources != "" {
			sb.WriteString(sources)
			sb.WriteString("\n")
		}
		if i < len(t.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func formatRoleLabel(role string) string {
	switch role {
	case "":
		return "Unknown"
	case "user":
		return "[User]"
	case "assistant":
		return "[Assistant]"
	case "system":
		return "[System]"
	default:
		runes := []rune(role)
		return strings.ToUpper(string(runes[0])) + string(runes[1:])
	}
}

func formatSources(results []conversation.SearchResult) string {
	if len(results) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("**Sources**\n\n")
	for i, r := range results {
		title := r.Title
		if title == "" {
			title = r.URL
		}
		fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, escapeMarkdown(title), r.URL)
	}
	return sb.String()
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that would break formatting in headings
// and link text.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML quotes a frontmatter value when it contains special
// characters, newlines included.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
