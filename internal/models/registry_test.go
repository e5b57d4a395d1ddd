// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agentdesk/internal/backend"
	"github.com/jeranaias/agentdesk/internal/events"
)

func testSnapshot() *backend.Snapshot {
	return &backend.Snapshot{
		DefaultModel: "gpt-4",
		Categories: []backend.CategoryModels{
			{Name: "DeepSeek", Models: []backend.ModelEntry{{ID: "deepseek-chat", Description: "local"}}},
			{Name: "OpenAI", Models: []backend.ModelEntry{{ID: "gpt-4"}, {ID: "gpt-4o-mini"}}},
			{Name: "OpenAI多模态", Models: []backend.ModelEntry{{ID: "gpt-4-vision"}}},
			{Name: "Google", Models: []backend.ModelEntry{{ID: "gemini-pro"}}},
			{Name: "Anthropic", Models: []backend.ModelEntry{{ID: "claude-3-opus"}}},
			{Name: "自研", Models: []backend.ModelEntry{{ID: "LongCat-8B-128K-Chat", Recommended: true}}},
		},
	}
}

func recorder(bus *events.Bus) *[]events.Event {
	var got []events.Event
	bus.Subscribe("", func(e events.Event) { got = append(got, e) })
	return &got
}

func kinds(evts []events.Event) []string {
	var out []string
	for _, e := range evts {
		out = append(out, e.Kind)
	}
	return out
}

// =============================================================================
// DERIVED FIELDS
// =============================================================================

func TestDisplayLabel(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"gpt-4", "Gpt 4"},
		{"gpt-4o-mini", "Gpt 4o Mini"},
		{"claude-3-opus", "Claude 3 Opus"},
		{"LongCat-8B-128K-Chat", "LongCat 8B 128K Chat"},
		{"o1", "O1"},
		{"deepSeek-chat", "DeepSeek Chat"},
		{"a--b", "A  B"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayLabel(tt.id))
		})
	}
}

func TestCategorySupportsWebSearch(t *testing.T) {
	for _, c := range []string{"OpenAI", "OpenAI多模态", "Google", "Anthropic"} {
		assert.True(t, CategorySupportsWebSearch(c), c)
	}
	for _, c := range []string{"openai", "DeepSeek", "自研", "", "Google "} {
		assert.False(t, CategorySupportsWebSearch(c), c)
	}
}

// =============================================================================
// REFRESH
// =============================================================================

func TestRefresh_FlattensInOrder(t *testing.T) {
	r := NewRegistry(events.New(), nil)
	list := r.Refresh(testSnapshot())

	var ids []string
	for _, d := range list {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{
		"deepseek-chat", "gpt-4", "gpt-4o-mini", "gpt-4-vision",
		"gemini-pro", "claude-3-opus", "LongCat-8B-128K-Chat",
	}, ids)

	for _, d := range list {
		assert.Equal(t, CategorySupportsWebSearch(d.Category), d.SupportsWebSearch, d.ID)
		assert.Equal(t, DisplayLabel(d.ID), d.Label, d.ID)
	}
	assert.Equal(t, "gpt-4", r.Selection().Model)
}

func TestRefresh_DiscardsStaleModels(t *testing.T) {
	r := NewRegistry(events.New(), nil)
	r.Refresh(testSnapshot())

	r.Refresh(&backend.Snapshot{
		DefaultModel: "gemini-pro",
		Categories:   []backend.CategoryModels{{Name: "Google", Models: []backend.ModelEntry{{ID: "gemini-pro"}}}},
	})

	assert.Len(t, r.Models(), 1)
	_, ok := r.Lookup("gpt-4")
	assert.False(t, ok, "models from the previous snapshot must be gone")
	assert.Equal(t, "gemini-pro", r.Selection().Model)
}

func TestRefresh_KeepsSelectionWhenPresent(t *testing.T) {
	r := NewRegistry(events.New(), nil)
	r.Refresh(testSnapshot())
	_, err := r.Select("claude-3-opus")
	require.NoError(t, err)

	r.Refresh(testSnapshot())
	assert.Equal(t, "claude-3-opus", r.Selection().Model)
}

func TestRefresh_FallsBackToFirstModel(t *testing.T) {
	r := NewRegistry(events.New(), nil)
	snap := testSnapshot()
	snap.DefaultModel = "not-advertised"

	r.Refresh(snap)
	assert.Equal(t, "deepseek-chat", r.Selection().Model)

	r.Refresh(&backend.Snapshot{})
	assert.Empty(t, r.Models())
	assert.Equal(t, Selection{}, r.Selection())
}

func TestRefresh_ForcesWebSearchOff(t *testing.T) {
	bus := events.New()
	r := NewRegistry(bus, nil)
	r.Refresh(testSnapshot())
	_, err := r.SetWebSearch(true)
	require.NoError(t, err)

	got := recorder(bus)
	// gpt-4 is still present but now sits in a category without retrieval.
	r.Refresh(&backend.Snapshot{
		DefaultModel: "gpt-4",
		Categories:   []backend.CategoryModels{{Name: "Azure", Models: []backend.ModelEntry{{ID: "gpt-4"}}}},
	})

	assert.False(t, r.Selection().WebSearch)
	assert.Contains(t, kinds(*got), events.KindWebSearchForcedOff)
}

func TestRefresh_FromBusEvent(t *testing.T) {
	bus := events.New()
	r := NewRegistry(bus, nil)

	bus.Publish(events.Event{Kind: events.KindSnapshotReplaced, Data: map[string]any{"snapshot": testSnapshot()}})
	assert.Len(t, r.Models(), 7)

	bus.Publish(events.Event{Kind: events.KindDisconnected})
	assert.Empty(t, r.Models())
	assert.Equal(t, Selection{}, r.Selection())

	r.Close()
	bus.Publish(events.Event{Kind: events.KindSnapshotReplaced, Data: map[string]any{"snapshot": testSnapshot()}})
	assert.Empty(t, r.Models(), "closed registry must ignore events")
}

func TestByCategory(t *testing.T) {
	r := NewRegistry(events.New(), nil)
	r.Refresh(testSnapshot())

	groups := r.ByCategory()
	require.Len(t, groups, 6)
	assert.Equal(t, "DeepSeek", groups[0].Category)
	assert.Equal(t, "OpenAI", groups[1].Category)
	assert.Len(t, groups[1].Models, 2)
	assert.Equal(t, "自研", groups[5].Category)
}

// =============================================================================
// SELECTION AND WEB SEARCH
// =============================================================================

func TestSelect_ForcesWebSearchOff(t *testing.T) {
	bus := events.New()
	r := NewRegistry(bus, nil)
	r.Refresh(testSnapshot())

	sel, err := r.SetWebSearch(true)
	require.NoError(t, err)
	require.True(t, sel.WebSearch)

	got := recorder(bus)
	sel, err = r.Select("deepseek-chat")
	require.NoError(t, err)

	assert.False(t, sel.WebSearch)
	assert.False(t, r.Selection().WebSearch)
	assert.Equal(t, []string{events.KindWebSearchForcedOff, events.KindModelSelected}, kinds(*got))
}

func TestSelect_InvariantIsIdempotent(t *testing.T) {
	bus := events.New()
	r := NewRegistry(bus, nil)
	r.Refresh(testSnapshot())
	_, err := r.Select("deepseek-chat")
	require.NoError(t, err)

	got := recorder(bus)
	for i := 0; i < 3; i++ {
		sel, err := r.Select("deepseek-chat")
		require.NoError(t, err)
		assert.False(t, sel.WebSearch)
	}
	assert.Empty(t, *got, "re-selecting the same model with the flag already off changes nothing")
}

func TestSelect_KeepsWebSearchForSupportedModel(t *testing.T) {
	r := NewRegistry(events.New(), nil)
	r.Refresh(testSnapshot())
	_, err := r.SetWebSearch(true)
	require.NoError(t, err)

	sel, err := r.Select("gemini-pro")
	require.NoError(t, err)
	assert.True(t, sel.WebSearch)
}

func TestSelect_UnknownModel(t *testing.T) {
	r := NewRegistry(events.New(), nil)
	r.Refresh(testSnapshot())

	_, err := r.Select("gpt-5")
	require.Error(t, err)
	assert.True(t, backend.IsInvalidInput(err))
	assert.Equal(t, "gpt-4", r.Selection().Model)
}

func TestSetWebSearch_RefusedForUnsupportedModel(t *testing.T) {
	bus := events.New()
	r := NewRegistry(bus, nil)
	r.Refresh(testSnapshot())
	_, err := r.Select("LongCat-8B-128K-Chat")
	require.NoError(t, err)
	assert.False(t, r.CanWebSearch())

	got := recorder(bus)
	sel, err := r.SetWebSearch(true)
	require.Error(t, err)
	assert.True(t, backend.IsInvalidInput(err))
	assert.False(t, sel.WebSearch)
	assert.Empty(t, *got)
}

func TestSetWebSearch_Off(t *testing.T) {
	r := NewRegistry(events.New(), nil)
	r.Refresh(testSnapshot())
	_, _ = r.SetWebSearch(true)

	sel, err := r.SetWebSearch(false)
	require.NoError(t, err)
	assert.False(t, sel.WebSearch)
}
