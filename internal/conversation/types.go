// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import "github.com/jeranaias/agentdesk/internal/backend"

// Message roles that appear in a transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SearchResult is a retrieval source attached to an assistant reply.
type SearchResult struct {
	Title string
	URL   string
}

// Message is one turn of the live transcript.
type Message struct {
	Role    string
	Content string
	// SearchResults is nil unless the backend returned at least one result.
	SearchResults []SearchResult
}

// Summary describes a saved conversation that has not been loaded.
type Summary struct {
	Filename  string
	Title     string
	Date      string
	Timestamp int64
}

func (m Message) clone() Message {
	if m.SearchResults != nil {
		m.SearchResults = append([]SearchResult(nil), m.SearchResults...)
	}
	return m
}

func convertResults(in []backend.SearchResult) []SearchResult {
	if len(in) == 0 {
		return nil
	}
	out := make([]SearchResult, 0, len(in))
	for _, r := range in {
		out = append(out, SearchResult{Title: r.Title, URL: r.URL})
	}
	return out
}

func fromStored(in []backend.StoredMessage) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			continue
		}
		out = append(out, Message{Role: m.Role, Content: m.Content, SearchResults: convertResults(m.SearchResults)})
	}
	return out
}

func fromSummary(s backend.ConversationSummary) Summary {
	return Summary{Filename: s.Filename, Title: s.Title, Date: s.Datetime, Timestamp: s.Timestamp}
}
