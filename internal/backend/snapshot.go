// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// =============================================================================
// CAPABILITY SNAPSHOT
// =============================================================================

// Snapshot is a point-in-time record of the models a backend advertises.
// It is built once per fetch and never mutated; a refresh replaces it.
//
// Categories keep the exact order in which the backend sent them, and each
// category keeps the order of its entries.
type Snapshot struct {
	DefaultModel string
	Categories   []CategoryModels
}

// CategoryModels is one named group of models.
type CategoryModels struct {
	Name   string
	Models []ModelEntry
}

// Len returns the total number of models across all categories.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, c := range s.Categories {
		n += len(c.Models)
	}
	return n
}

// Lookup finds a model by id and returns it with its category name.
func (s *Snapshot) Lookup(id string) (ModelEntry, string, bool) {
	if s == nil {
		return ModelEntry{}, "", false
	}
	for _, c := range s.Categories {
		for _, m := range c.Models {
			if m.ID == id {
				return m, c.Name, true
			}
		}
	}
	return ModelEntry{}, "", false
}

// modelsResponse is the response of GET /api/models.
// The flat "models" map is ignored; models_by_category carries the order.
type modelsResponse struct {
	DefaultModel     string            `json:"default_model"`
	ModelsByCategory orderedCategories `json:"models_by_category"`
}

func (r modelsResponse) snapshot() *Snapshot {
	return &Snapshot{
		DefaultModel: r.DefaultModel,
		Categories:   []CategoryModels(r.ModelsByCategory),
	}
}

// orderedCategories decodes a JSON object of category -> []ModelEntry while
// keeping the key order of the document.
type orderedCategories []CategoryModels

func (o *orderedCategories) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*o = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("models_by_category: expected object, got %v", tok)
	}

	var out orderedCategories
	index := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("models_by_category: expected key, got %v", keyTok)
		}

		var entries []ModelEntry
		if err := dec.Decode(&entries); err != nil {
			return fmt.Errorf("models_by_category[%s]: %w", name, err)
		}
		for i := range entries {
			entries[i].Category = name
		}

		// Repeated keys fold into the first occurrence.
		if i, seen := index[name]; seen {
			out[i].Models = append(out[i].Models, entries...)
			continue
		}
		index[name] = len(out)
		out = append(out, CategoryModels{Name: name, Models: entries})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = out
	return nil
}
