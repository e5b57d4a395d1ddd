// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package connectivity

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jeranaias/agentdesk/internal/backend"
	"github.com/jeranaias/agentdesk/internal/events"
	"github.com/jeranaias/agentdesk/internal/role"
)

// API is the slice of the backend client the prober needs.
type API interface {
	Candidate() backend.Endpoint
	Endpoint() (backend.Endpoint, bool)
	Ping(ctx context.Context, candidate backend.Endpoint) error
	Bind(ep backend.Endpoint) error
	Reset()
	FetchSnapshot(ctx context.Context) (*backend.Snapshot, error)
}

// RoleSource hydrates the role session after binding.
type RoleSource interface {
	Hydrate(ctx context.Context) (role.ActiveRole, error)
}

// Connection describes a bound backend.
type Connection struct {
	Endpoint    backend.Endpoint
	Snapshot    *backend.Snapshot
	CurrentRole string
}

// Prober binds the client to a live backend and fetches the state that
// depends on the binding.
type Prober struct {
	api    API
	roles  RoleSource
	bus    *events.Bus
	logger *zap.Logger

	// probeMu serializes Probe, Reprobe and RefreshCapabilities.
	probeMu sync.Mutex

	mu          sync.RWMutex
	snapshot    *backend.Snapshot
	currentRole string
}

// NewProber creates a prober. roles may be nil.
func NewProber(api API, roles RoleSource, bus *events.Bus, logger *zap.Logger) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		api:    api,
		roles:  roles,
		bus:    bus,
		logger: logger.Named("connectivity"),
	}
}

// =============================================================================
// PROBING
// =============================================================================

// Probe runs the health check against the configured address and binds it on
// success. Role and capability fetches follow; their failures are logged and
// leave the affected component empty without undoing the binding.
//
// Probing an already bound client returns the current connection without
// contacting the backend.
func (p *Prober) Probe(ctx context.Context) (*Connection, error) {
	p.probeMu.Lock()
	defer p.probeMu.Unlock()
	return p.probeLocked(ctx)
}

// Reprobe drops the current binding and probes again.
func (p *Prober) Reprobe(ctx context.Context) (*Connection, error) {
	p.probeMu.Lock()
	defer p.probeMu.Unlock()

	old, wasBound := p.api.Endpoint()
	p.api.Reset()

	p.mu.Lock()
	p.snapshot = nil
	p.currentRole = ""
	p.mu.Unlock()

	if wasBound {
		p.logger.Info("endpoint released for re-probe", zap.String("endpoint", string(old)))
		p.bus.Publish(events.Event{
			Source: events.SourceConnectivity,
			Kind:   events.KindDisconnected,
			Data:   map[string]any{"endpoint": string(old)},
		})
	}
	return p.probeLocked(ctx)
}

func (p *Prober) probeLocked(ctx context.Context) (*Connection, error) {
	if _, ok := p.api.Endpoint(); ok {
		return p.Connection(), nil
	}

	candidate := p.api.Candidate()
	if err := p.api.Ping(ctx, candidate); err != nil {
		p.logger.Warn("backend probe failed", zap.String("candidate", string(candidate)), zap.Error(err))
		return nil, fmt.Errorf("probe %s: %w", candidate, err)
	}
	if err := p.api.Bind(candidate); err != nil {
		return nil, fmt.Errorf("bind %s: %w", candidate, err)
	}

	p.logger.Info("backend connected", zap.String("endpoint", string(candidate)))
	p.bus.Publish(events.Event{
		Source: events.SourceConnectivity,
		Kind:   events.KindConnected,
		Data:   map[string]any{"endpoint": string(candidate)},
	})

	if err := p.fetchDependents(ctx); err != nil {
		p.logger.Warn("post-connect fetch incomplete", zap.Error(err))
	}
	return p.Connection(), nil
}

// =============================================================================
// CAPABILITIES
// =============================================================================

// RefreshCapabilities re-fetches the role state and the capability snapshot.
// Both fetches are attempted; the returned error combines their failures.
func (p *Prober) RefreshCapabilities(ctx context.Context) (*Connection, error) {
	p.probeMu.Lock()
	defer p.probeMu.Unlock()

	if _, ok := p.api.Endpoint(); !ok {
		return nil, backend.ErrUnbound
	}
	if err := p.fetchDependents(ctx); err != nil {
		return p.Connection(), fmt.Errorf("refresh capabilities: %w", err)
	}
	return p.Connection(), nil
}

func (p *Prober) fetchDependents(ctx context.Context) error {
	var errs error

	if p.roles != nil {
		active, err := p.roles.Hydrate(ctx)
		if err != nil {
			p.logger.Warn("role fetch failed", zap.Error(err))
			errs = multierr.Append(errs, err)
		} else {
			p.mu.Lock()
			p.currentRole = active.Key
			p.mu.Unlock()
		}
	}

	snap, err := p.api.FetchSnapshot(ctx)
	if err != nil {
		p.logger.Warn("capability snapshot fetch failed", zap.Error(err))
		return multierr.Append(errs, fmt.Errorf("fetch models: %w", err))
	}

	p.mu.Lock()
	p.snapshot = snap
	p.mu.Unlock()

	p.logger.Info("capability snapshot replaced",
		zap.String("default_model", snap.DefaultModel),
		zap.Int("categories", len(snap.Categories)),
		zap.Int("models", snap.Len()))
	p.bus.Publish(events.Event{
		Source: events.SourceConnectivity,
		Kind:   events.KindSnapshotReplaced,
		Data: map[string]any{
			"snapshot":      snap,
			"default_model": snap.DefaultModel,
			"models":        snap.Len(),
		},
	})
	return errs
}

// =============================================================================
// QUERIES
// =============================================================================

// Snapshot returns the current capability snapshot, or nil before the first
// successful fetch.
func (p *Prober) Snapshot() *backend.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// Connection returns the bound connection, or nil when unbound.
func (p *Prober) Connection() *Connection {
	ep, ok := p.api.Endpoint()
	if !ok {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &Connection{Endpoint: ep, Snapshot: p.snapshot, CurrentRole: p.currentRole}
}
