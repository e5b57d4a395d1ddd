// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package models

import (
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/agentdesk/internal/backend"
	"github.com/jeranaias/agentdesk/internal/events"
)

// Selection is the model and web-search flag that accompany a chat request.
type Selection struct {
	Model     string
	WebSearch bool
}

// Registry derives the flat model list from the capability snapshot and owns
// the model selection and the web-search flag.
//
// The web-search flag is never true while the selected model does not
// support web search. Every operation that could break that rule repairs it
// before returning.
type Registry struct {
	bus    *events.Bus
	logger *zap.Logger

	mu        sync.Mutex
	models    []Descriptor
	index     map[string]int
	selected  string
	webSearch bool

	unsubscribe []func()
}

// NewRegistry creates an empty registry that follows snapshot and
// connection events on bus.
func NewRegistry(bus *events.Bus, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		bus:    bus,
		logger: logger.Named("models"),
		index:  make(map[string]int),
	}
	r.unsubscribe = append(r.unsubscribe,
		bus.Subscribe(events.KindSnapshotReplaced, func(e events.Event) {
			if snap, ok := e.Data["snapshot"].(*backend.Snapshot); ok {
				r.Refresh(snap)
			}
		}),
		bus.Subscribe(events.KindDisconnected, func(events.Event) {
			r.Reset()
		}),
	)
	return r
}

// Close detaches the registry from the bus.
func (r *Registry) Close() {
	for _, fn := range r.unsubscribe {
		fn()
	}
	r.unsubscribe = nil
}

// =============================================================================
// REFRESH
// =============================================================================

// Refresh replaces the registry with the models in snap, in category-then-
// entry order. Nothing from the previous registry is kept except the
// selected model, and only when snap still contains it. Otherwise the
// snapshot's default model is selected, falling back to the first model.
func (r *Registry) Refresh(snap *backend.Snapshot) []Descriptor {
	list := make([]Descriptor, 0, snap.Len())
	index := make(map[string]int, snap.Len())
	if snap != nil {
		for _, cat := range snap.Categories {
			for _, entry := range cat.Models {
				if _, dup := index[entry.ID]; dup {
					continue
				}
				index[entry.ID] = len(list)
				list = append(list, NewDescriptor(entry, cat.Name))
			}
		}
	}

	r.mu.Lock()
	prev := r.selectionLocked()
	r.models = list
	r.index = index

	switch _, keep := index[r.selected]; {
	case keep:
	case snap != nil && hasKey(index, snap.DefaultModel):
		r.selected = snap.DefaultModel
	case len(list) > 0:
		r.selected = list[0].ID
	default:
		r.selected = ""
	}
	forced := r.enforceLocked()
	next := r.selectionLocked()
	out := append([]Descriptor(nil), list...)
	r.mu.Unlock()

	r.logger.Info("model registry refreshed",
		zap.Int("models", len(out)),
		zap.String("selected", next.Model))
	r.notify(prev, next, forced)
	return out
}

// Reset discards every model and the selection.
func (r *Registry) Reset() {
	r.mu.Lock()
	prev := r.selectionLocked()
	r.models = nil
	r.index = make(map[string]int)
	r.selected = ""
	r.webSearch = false
	r.mu.Unlock()

	r.notify(prev, Selection{}, false)
}

// =============================================================================
// QUERIES
// =============================================================================

// Models returns the flat model list.
func (r *Registry) Models() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Descriptor(nil), r.models...)
}

// ByCategory groups the model list by category, keeping snapshot order.
func (r *Registry) ByCategory() []Group {
	r.mu.Lock()
	defer r.mu.Unlock()

	var groups []Group
	for _, d := range r.models {
		if n := len(groups); n > 0 && groups[n-1].Category == d.Category {
			groups[n-1].Models = append(groups[n-1].Models, d)
			continue
		}
		groups = append(groups, Group{Category: d.Category, Models: []Descriptor{d}})
	}
	return groups
}

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return Descriptor{}, false
	}
	return r.models[i], true
}

// Selection returns the effective selection.
func (r *Registry) Selection() Selection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selectionLocked()
}

// CanWebSearch reports whether the selected model supports web search, so a
// UI can disable the toggle up front.
func (r *Registry) CanWebSearch() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.supportsLocked(r.selected)
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Select makes id the selected model. An id that is not in the registry is
// rejected with InvalidInput and the selection is left alone.
func (r *Registry) Select(id string) (Selection, error) {
	r.mu.Lock()
	if _, ok := r.index[id]; !ok {
		r.mu.Unlock()
		return r.Selection(), backend.NewError(backend.ErrTypeInvalidInput, "unknown model %q", id)
	}
	prev := r.selectionLocked()
	r.selected = id
	forced := r.enforceLocked()
	next := r.selectionLocked()
	r.mu.Unlock()

	r.notify(prev, next, forced)
	return next, nil
}

// SetWebSearch turns web search on or off. Turning it on for a model that
// does not support it is refused with InvalidInput and the flag stays off.
func (r *Registry) SetWebSearch(on bool) (Selection, error) {
	r.mu.Lock()
	prev := r.selectionLocked()
	if on && !r.supportsLocked(r.selected) {
		r.webSearch = false
		model := r.selected
		r.mu.Unlock()
		return prev, backend.NewError(backend.ErrTypeInvalidInput, "model %q does not support web search", model)
	}
	r.webSearch = on
	next := r.selectionLocked()
	r.mu.Unlock()

	r.notify(prev, next, false)
	return next, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (r *Registry) selectionLocked() Selection {
	return Selection{Model: r.selected, WebSearch: r.webSearch}
}

func (r *Registry) supportsLocked(id string) bool {
	i, ok := r.index[id]
	return ok && r.models[i].SupportsWebSearch
}

// enforceLocked switches web search off when the selected model cannot use
// it. It reports whether a true flag was forced off.
func (r *Registry) enforceLocked() bool {
	if r.webSearch && !r.supportsLocked(r.selected) {
		r.webSearch = false
		return true
	}
	return false
}

func (r *Registry) notify(prev, next Selection, forced bool) {
	if forced {
		r.logger.Info("web search disabled for model", zap.String("model", next.Model))
		r.bus.Publish(events.Event{
			Source: events.SourceModels,
			Kind:   events.KindWebSearchForcedOff,
			Data:   map[string]any{"model": next.Model},
		})
	}
	if prev != next {
		r.bus.Publish(events.Event{
			Source: events.SourceModels,
			Kind:   events.KindModelSelected,
			Data:   map[string]any{"model": next.Model, "web_search": next.WebSearch},
		})
	}
}

func hasKey(m map[string]int, k string) bool {
	_, ok := m[k]
	return ok
}
