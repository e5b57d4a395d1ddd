// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceConnectivity identifies events from the connectivity prober.
	SourceConnectivity = "connectivity"
	// SourceModels identifies events from the model registry.
	SourceModels = "models"
	// SourceRole identifies events from the role session.
	SourceRole = "role"
	// SourceMCP identifies events from the MCP lifecycle manager.
	SourceMCP = "mcp"
	// SourceConversation identifies events from the conversation session.
	SourceConversation = "conversation"
	// SourceImage identifies events from the image generation workflow.
	SourceImage = "image"
)

// Kind constants describe the type of event within a source.
const (
	// KindConnected signals that an endpoint was bound.
	// Data: endpoint.
	KindConnected = "connected"
	// KindDisconnected signals that the bound endpoint was reset.
	// Data: endpoint.
	KindDisconnected = "disconnected"
	// KindSnapshotReplaced signals a new capability snapshot.
	// Data: snapshot (*backend.Snapshot), default_model, models.
	KindSnapshotReplaced = "snapshot_replaced"

	// KindModelSelected signals a change of selected model or web-search flag.
	// Data: model, web_search.
	KindModelSelected = "model_selected"
	// KindWebSearchForcedOff signals that web search was switched off because
	// the selected model does not support it. Data: model.
	KindWebSearchForcedOff = "web_search_forced_off"

	// KindRoleChanged signals a new active role.
	// Data: role, previous, reason (select, fallback, transcript).
	KindRoleChanged = "role_changed"
	// KindRoleSetChanged signals a replaced role set.
	// Data: roles.
	KindRoleSetChanged = "role_set_changed"

	// KindMCPStatusChanged signals a server state transition.
	// Data: server_id, from, to.
	KindMCPStatusChanged = "mcp_status_changed"
	// KindMCPServersReplaced signals a wholesale refresh of the server set.
	// Data: servers.
	KindMCPServersReplaced = "mcp_servers_replaced"

	// KindTranscriptChanged signals an append to or clear of the transcript.
	// Data: op (append, clear, reset), length; reset also carries dropped.
	KindTranscriptChanged = "transcript_changed"
	// KindTranscriptLoaded signals that a saved conversation replaced the
	// transcript. Data: filename, current_role, system_content, length.
	KindTranscriptLoaded = "transcript_loaded"
	// KindSummariesChanged signals a refreshed saved-conversation list.
	// Data: count.
	KindSummariesChanged = "summaries_changed"

	// KindImageStarted signals a new generation request.
	// Data: seq.
	KindImageStarted = "image_started"
	// KindImageResult signals that the latest request produced a result.
	// Data: seq, url, revised_prompt.
	KindImageResult = "image_result"
	// KindImageDiscarded signals a superseded result that was dropped.
	// Data: seq.
	KindImageDiscarded = "image_discarded"
)

// Event represents a single state change published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// String returns Data[key] as a string, or "" if absent or not a string.
func (e Event) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// Bool returns Data[key] as a bool, or false if absent or not a bool.
func (e Event) Bool(key string) bool {
	b, _ := e.Data[key].(bool)
	return b
}

// Int returns Data[key] as an int, or 0 if absent or not an int.
func (e Event) Int(key string) int {
	n, _ := e.Data[key].(int)
	return n
}

// Handler receives a published event.
type Handler func(Event)

type subscription struct {
	id      uint64
	kind    string
	handler Handler
}

// Bus is a synchronous event bus. Publish calls every matching handler on
// the publisher's goroutine, in subscription order, before returning. A
// handler may publish further events; those are delivered depth-first.
//
// Handlers must not block on the component that published the event.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{}
}

// Publish delivers an event to all matching subscribers. A zero Timestamp
// is set to now. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if s.kind == "" || s.kind == e.Kind {
			s.handler(e)
		}
	}
}

// Subscribe registers handler for events of the given kind, or for every
// event when kind is empty. The returned func removes the subscription.
func (b *Bus) Subscribe(kind string, handler Handler) (unsubscribe func()) {
	if b == nil || handler == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, kind: kind, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
