// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package events provides the synchronous publish/subscribe bus that keeps
// the session components consistent with each other.
//
// Each component publishes when state it owns changes; dependents subscribe
// and react before Publish returns, so there is no window in which one
// component has seen a change and another has not. The bus is nil-safe:
// calling Publish on a nil *Bus is a no-op.
//
// # Usage
//
//	bus := events.New()
//	unsubscribe := bus.Subscribe(events.KindWebSearchForcedOff, func(e events.Event) {
//	    fmt.Println("web search disabled for", e.String("model"))
//	})
//	defer unsubscribe()
package events
