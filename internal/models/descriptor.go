// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jeranaias/agentdesk/internal/backend"
)

// webSearchCategories lists the categories whose models can augment replies
// with retrieved results. Category membership is the only signal.
var webSearchCategories = map[string]bool{
	"OpenAI":       true,
	"OpenAI多模态": true, // OpenAI multimodal
	"Google":       true,
	"Anthropic":    true,
}

// Descriptor is a UI-ready view of one model.
// Label and SupportsWebSearch are derived from ID and Category.
type Descriptor struct {
	ID                string
	Label             string
	Description       string
	Category          string
	ContextLength     int
	Recommended       bool
	SupportsWebSearch bool
}

// Group is the models of one category, in snapshot order.
type Group struct {
	Category string
	Models   []Descriptor
}

// NewDescriptor derives a descriptor from a snapshot entry and its category.
func NewDescriptor(entry backend.ModelEntry, category string) Descriptor {
	return Descriptor{
		ID:                entry.ID,
		Label:             DisplayLabel(entry.ID),
		Description:       entry.Description,
		Category:          category,
		ContextLength:     entry.ContextLength,
		Recommended:       entry.Recommended,
		SupportsWebSearch: CategorySupportsWebSearch(category),
	}
}

// CategorySupportsWebSearch reports whether models in category support web search.
func CategorySupportsWebSearch(category string) bool {
	return webSearchCategories[category]
}

// DisplayLabel turns a model id into a label: tokens split on "-" get their
// first letter title-cased, the rest of each token is left as is, and the
// tokens are joined with spaces.
//
//	DisplayLabel("gpt-4o-mini")  // "Gpt 4o Mini"
//	DisplayLabel("LongCat-8B")   // "LongCat 8B"
func DisplayLabel(id string) string {
	// Casers carry state and must not be shared between goroutines.
	caser := cases.Title(language.Und, cases.NoLower)

	tokens := strings.Split(id, "-")
	for i, tok := range tokens {
		if tok == "" {
			continue
		}
		_, size := utf8.DecodeRuneInString(tok)
		tokens[i] = caser.String(tok[:size]) + tok[size:]
		caser.Reset()
	}
	return strings.Join(tokens, " ")
}
