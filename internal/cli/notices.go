// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/jeranaias/agentdesk/internal/events"
	"github.com/jeranaias/agentdesk/internal/mcp"
)

// subscribeNotices prints state changes the user did not ask for directly:
// connection changes, forced web-search shutoff, role fallbacks, transcript
// resets and MCP servers settling.
func (r *REPL) subscribeNotices() {
	bus := r.app.Bus
	r.unsubscribe = append(r.unsubscribe,
		bus.Subscribe(events.KindConnected, func(e events.Event) {
			r.notice(InfoStyle, "Connected to %s", e.String("endpoint"))
		}),
		bus.Subscribe(events.KindDisconnected, func(e events.Event) {
			r.notice(WarningStyle, "Disconnected from %s", e.String("endpoint"))
		}),
		bus.Subscribe(events.KindWebSearchForcedOff, func(e events.Event) {
			r.notice(WarningStyle, "Web search turned off: %s does not support it", e.String("model"))
		}),
		bus.Subscribe(events.KindRoleChanged, func(e events.Event) {
			switch e.String("reason") {
			case "fallback":
				r.notice(WarningStyle, "Role %s is gone, now using %s", e.String("previous"), e.String("role"))
			case "transcript":
				r.notice(InfoStyle, "Role set to %s by the loaded conversation", e.String("role"))
			}
		}),
		bus.Subscribe(events.KindMCPStatusChanged, func(e events.Event) {
			to := mcp.Status(e.String("to"))
			if to.Transitional() {
				return
			}
			r.notice(DimStyle, "MCP %s: %s", e.String("server_id"), RenderStatus(to.String()))
		}),
		bus.Subscribe(events.KindTranscriptChanged, func(e events.Event) {
			if e.String("op") == "reset" {
				r.notice(WarningStyle, "Conversation cleared by the new connection (%d messages dropped)", e.Int("dropped"))
			}
		}),
		bus.Subscribe(events.KindImageDiscarded, func(e events.Event) {
			r.notice(DimStyle, "Image request #%d superseded", e.Int("seq"))
		}),
	)
}

type renderer interface {
	Render(strs ...string) string
}

func (r *REPL) notice(style renderer, format string, args ...any) {
	r.out.Println(style.Render(fmt.Sprintf(format, args...)))
}
