// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/agentdesk/internal/backend"
	"github.com/jeranaias/agentdesk/internal/events"
)

// API is the slice of the backend client the manager needs.
type API interface {
	ListMCPServers(ctx context.Context) ([]backend.MCPServerInfo, error)
	AddMCPServer(ctx context.Context, id string, cfg backend.MCPServerConfig) error
	ConnectMCPServer(ctx context.Context, id string) error
	DisconnectMCPServer(ctx context.Context, id string) error
	DeleteMCPServer(ctx context.Context, id string) error
}

// Manager owns the set of MCP servers and their per-server busy flags.
//
// At most one lifecycle operation (add, connect, disconnect, delete) runs per
// server id; a second one is rejected with Busy. Operations on different ids
// run independently. The busy flag is released on every return path.
//
// The server list is loaded lazily: a new connection only marks it stale and
// the first call to Servers fetches it.
type Manager struct {
	api    API
	bus    *events.Bus
	logger *zap.Logger

	mu      sync.Mutex
	servers []Server
	loaded  bool
	busy    map[string]bool

	// Lists are numbered when requested; a list older than the last commit
	// or local change is dropped.
	issued    uint64
	committed uint64

	unsubscribe []func()
}

// NewManager creates a manager that goes stale on every connect or
// disconnect event on bus.
func NewManager(api API, bus *events.Bus, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		api:    api,
		bus:    bus,
		logger: logger.Named("mcp"),
		busy:   make(map[string]bool),
	}
	m.unsubscribe = append(m.unsubscribe,
		bus.Subscribe(events.KindConnected, func(events.Event) { m.MarkStale() }),
		bus.Subscribe(events.KindDisconnected, func(events.Event) { m.MarkStale() }),
	)
	return m
}

// Close detaches the manager from the bus.
func (m *Manager) Close() {
	for _, fn := range m.unsubscribe {
		fn()
	}
	m.unsubscribe = nil
}

// =============================================================================
// LISTING
// =============================================================================

// MarkStale drops the local server set so the next Servers call refetches it.
func (m *Manager) MarkStale() {
	m.mu.Lock()
	m.servers = nil
	m.loaded = false
	m.invalidateLocked()
	m.mu.Unlock()
}

// Loaded reports whether the server set has been fetched since the last
// connection change.
func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// Servers returns the server set, fetching it first if it is stale.
func (m *Manager) Servers(ctx context.Context) ([]Server, error) {
	if !m.Loaded() {
		return m.Refresh(ctx)
	}
	return m.Snapshot(), nil
}

// Snapshot returns the local server set without fetching.
func (m *Manager) Snapshot() []Server {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Server(nil), m.servers...)
}

// Get returns the local entry for id.
func (m *Manager) Get(id string) (Server, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(id)
	if i < 0 {
		return Server{}, false
	}
	return m.servers[i], true
}

// Busy reports whether an operation is in flight for id.
func (m *Manager) Busy(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy[id]
}

// Refresh replaces the whole local set with the backend's list. Servers the
// backend no longer reports disappear. A server with an operation in flight
// keeps its transitional status until that operation settles it.
//
// A list that resolves after a newer list was committed, or after a local
// change, is discarded and the current set is returned instead.
func (m *Manager) Refresh(ctx context.Context) ([]Server, error) {
	m.mu.Lock()
	m.issued++
	gen := m.issued
	m.mu.Unlock()

	infos, err := m.api.ListMCPServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list mcp servers: %w", err)
	}

	next := make([]Server, 0, len(infos))
	for _, info := range infos {
		next = append(next, fromInfo(info))
	}

	m.mu.Lock()
	if gen <= m.committed {
		out := append([]Server(nil), m.servers...)
		m.mu.Unlock()
		m.logger.Debug("stale mcp server list discarded", zap.Uint64("generation", gen))
		return out, nil
	}
	m.committed = gen
	for i := range next {
		if !m.busy[next[i].ID] {
			continue
		}
		if j := m.indexLocked(next[i].ID); j >= 0 && m.servers[j].Status.Transitional() {
			next[i].Status = m.servers[j].Status
		}
	}
	m.servers = next
	m.loaded = true
	out := append([]Server(nil), next...)
	m.mu.Unlock()

	m.logger.Debug("mcp servers refreshed", zap.Int("servers", len(out)))
	m.bus.Publish(events.Event{
		Source: events.SourceMCP,
		Kind:   events.KindMCPServersReplaced,
		Data:   map[string]any{"servers": len(out)},
	})
	return out, nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Connect moves a disconnected or failed server to connecting, asks the
// backend to connect, and settles on connected or failed.
func (m *Manager) Connect(ctx context.Context, id string) error {
	return m.transition(ctx, id, "connect", StatusConnecting, StatusConnected, m.api.ConnectMCPServer)
}

// Disconnect moves a connected server to disconnecting, asks the backend to
// disconnect, and settles on disconnected or failed.
func (m *Manager) Disconnect(ctx context.Context, id string) error {
	return m.transition(ctx, id, "disconnect", StatusDisconnecting, StatusDisconnected, m.api.DisconnectMCPServer)
}

func (m *Manager) transition(ctx context.Context, id, op string, pending, done Status, call func(context.Context, string) error) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return backend.NewError(backend.ErrTypeInvalidInput, "server id is required")
	}
	if err := m.acquire(id); err != nil {
		return err
	}
	defer m.release(id)

	if !m.Loaded() {
		if _, err := m.Refresh(ctx); err != nil {
			return err
		}
	}

	from, err := m.setStatus(id, pending)
	if err != nil {
		return err
	}
	m.logger.Info("mcp "+op+" started", zap.String("server_id", id), zap.String("from", from.String()))

	if err := call(ctx, id); err != nil {
		m.logger.Warn("mcp "+op+" failed", zap.String("server_id", id), zap.Error(err))
		if _, serr := m.setStatus(id, StatusFailed); serr != nil {
			m.logger.Debug("failed status not applied", zap.String("server_id", id), zap.Error(serr))
		}
		return fmt.Errorf("%s mcp server %s: %w", op, id, err)
	}

	if _, err := m.setStatus(id, done); err != nil {
		m.logger.Debug("settled status not applied", zap.String("server_id", id), zap.Error(err))
	}
	m.refreshAfterMutation(ctx, op, id)
	return nil
}

// Add registers a new server. The id must not exist in the backend's list,
// which is fetched fresh for the check; on Conflict the local set is left
// exactly as it was. On success the list is refreshed from the backend.
func (m *Manager) Add(ctx context.Context, id string, cfg ServerConfig) error {
	id = strings.TrimSpace(id)
	cfg.URL = strings.TrimSpace(cfg.URL)
	if id == "" || cfg.URL == "" {
		return backend.NewError(backend.ErrTypeInvalidInput, "server id and url are required")
	}
	if err := m.acquire(id); err != nil {
		return err
	}
	defer m.release(id)

	infos, err := m.api.ListMCPServers(ctx)
	if err != nil {
		return fmt.Errorf("add mcp server %s: %w", id, err)
	}
	for _, info := range infos {
		if info.ID == id {
			return backend.NewError(backend.ErrTypeConflict, "mcp server %q already exists", id)
		}
	}

	if err := m.api.AddMCPServer(ctx, id, backend.MCPServerConfig{URL: cfg.URL}); err != nil {
		return fmt.Errorf("add mcp server %s: %w", id, err)
	}
	m.logger.Info("mcp server added", zap.String("server_id", id), zap.String("url", cfg.URL))
	m.refreshAfterMutation(ctx, "add", id)
	return nil
}

// Delete removes a server whatever its status. Disconnecting first is the
// caller's choice.
func (m *Manager) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return backend.NewError(backend.ErrTypeInvalidInput, "server id is required")
	}
	if err := m.acquire(id); err != nil {
		return err
	}
	defer m.release(id)

	if err := m.api.DeleteMCPServer(ctx, id); err != nil {
		return fmt.Errorf("delete mcp server %s: %w", id, err)
	}

	m.mu.Lock()
	if i := m.indexLocked(id); i >= 0 {
		m.servers = append(m.servers[:i:i], m.servers[i+1:]...)
	}
	m.invalidateLocked()
	m.mu.Unlock()

	m.logger.Info("mcp server deleted", zap.String("server_id", id))
	m.refreshAfterMutation(ctx, "delete", id)
	return nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (m *Manager) acquire(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy[id] {
		m.logger.Debug("mcp operation rejected, server busy", zap.String("server_id", id))
		return backend.NewError(backend.ErrTypeBusy, "mcp server %q has an operation in progress", id)
	}
	m.busy[id] = true
	return nil
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	delete(m.busy, id)
	m.mu.Unlock()
}

// setStatus applies a validated transition and publishes it.
func (m *Manager) setStatus(id string, to Status) (Status, error) {
	m.mu.Lock()
	i := m.indexLocked(id)
	if i < 0 {
		m.mu.Unlock()
		return "", backend.NewError(backend.ErrTypeInvalidInput, "unknown mcp server %q", id)
	}
	from := m.servers[i].Status
	if !isValidTransition(from, to) {
		m.mu.Unlock()
		return from, backend.NewError(backend.ErrTypeInvalidInput, "mcp server %q cannot go from %s to %s", id, from, to)
	}
	m.servers[i].Status = to
	m.invalidateLocked()
	m.mu.Unlock()

	m.bus.Publish(events.Event{
		Source: events.SourceMCP,
		Kind:   events.KindMCPStatusChanged,
		Data:   map[string]any{"server_id": id, "from": from.String(), "to": to.String()},
	})
	return from, nil
}

// refreshAfterMutation pulls the authoritative list after a successful
// mutation. A failed refresh keeps the local result and is only logged.
func (m *Manager) refreshAfterMutation(ctx context.Context, op, id string) {
	if _, err := m.Refresh(ctx); err != nil {
		m.logger.Warn("refresh after mcp "+op+" failed",
			zap.String("server_id", id),
			zap.Error(err))
	}
}

// invalidateLocked makes every list requested so far stale.
func (m *Manager) invalidateLocked() {
	m.committed = m.issued
}

func (m *Manager) indexLocked(id string) int {
	for i := range m.servers {
		if m.servers[i].ID == id {
			return i
		}
	}
	return -1
}
