// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_NilBus(t *testing.T) {
	var b *Bus
	b.Publish(Event{Kind: KindConnected})
	unsubscribe := b.Subscribe("", func(Event) {})
	unsubscribe()
	assert.Zero(t, b.SubscriberCount())
}

func TestPublish_OrderAndFilter(t *testing.T) {
	b := New()
	var got []string

	b.Subscribe("", func(e Event) { got = append(got, "all:"+e.Kind) })
	b.Subscribe(KindRoleChanged, func(e Event) { got = append(got, "role:"+e.String("role")) })
	b.Subscribe("", func(e Event) { got = append(got, "all2:"+e.Kind) })

	b.Publish(Event{Source: SourceRole, Kind: KindRoleChanged, Data: map[string]any{"role": "creative"}})
	b.Publish(Event{Source: SourceMCP, Kind: KindMCPServersReplaced})

	assert.Equal(t, []string{
		"all:role_changed", "role:creative", "all2:role_changed",
		"all:mcp_servers_replaced", "all2:mcp_servers_replaced",
	}, got)
}

func TestPublish_SetsTimestamp(t *testing.T) {
	b := New()
	var got Event
	b.Subscribe("", func(e Event) { got = e })

	b.Publish(Event{Kind: KindConnected})
	assert.False(t, got.Timestamp.IsZero())
}

func TestPublish_NestedIsDepthFirst(t *testing.T) {
	b := New()
	var got []string

	b.Subscribe(KindSnapshotReplaced, func(e Event) {
		got = append(got, "snapshot")
		b.Publish(Event{Kind: KindWebSearchForcedOff})
		got = append(got, "snapshot-done")
	})
	b.Subscribe(KindWebSearchForcedOff, func(e Event) { got = append(got, "forced-off") })

	b.Publish(Event{Kind: KindSnapshotReplaced})
	assert.Equal(t, []string{"snapshot", "forced-off", "snapshot-done"}, got)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	b := New()
	calls := 0
	unsubscribe := b.Subscribe("", func(Event) { calls++ })
	require.Equal(t, 1, b.SubscriberCount())

	b.Publish(Event{})
	unsubscribe()
	unsubscribe()
	b.Publish(Event{})

	assert.Equal(t, 1, calls)
	assert.Zero(t, b.SubscriberCount())
}

func TestSubscribe_UnsubscribeDuringPublish(t *testing.T) {
	b := New()
	calls := 0
	var unsubscribe func()
	unsubscribe = b.Subscribe("", func(Event) {
		calls++
		unsubscribe()
	})
	b.Subscribe("", func(Event) { calls++ })

	b.Publish(Event{})
	b.Publish(Event{})
	assert.Equal(t, 3, calls)
}

func TestPublish_Concurrent(t *testing.T) {
	b := New()
	var mu sync.Mutex
	count := 0
	b.Subscribe("", func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish(Event{Kind: KindTranscriptChanged})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, count)
}

func TestEventAccessors(t *testing.T) {
	e := Event{Data: map[string]any{"s": "x", "b": true, "n": 3, "wrong": 1.5}}
	assert.Equal(t, "x", e.String("s"))
	assert.True(t, e.Bool("b"))
	assert.Equal(t, 3, e.Int("n"))
	assert.Equal(t, "", e.String("wrong"))
	assert.Zero(t, e.Int("missing"))
}
