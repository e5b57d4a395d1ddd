// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jeranaias/agentdesk/internal/backend"
	"github.com/jeranaias/agentdesk/internal/config"
	"github.com/jeranaias/agentdesk/internal/connectivity"
	"github.com/jeranaias/agentdesk/internal/conversation"
	"github.com/jeranaias/agentdesk/internal/events"
	"github.com/jeranaias/agentdesk/internal/imagegen"
	"github.com/jeranaias/agentdesk/internal/mcp"
	"github.com/jeranaias/agentdesk/internal/models"
	"github.com/jeranaias/agentdesk/internal/role"
)

// App holds every session component for one backend connection.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Bus    *events.Bus
	Client *backend.Client

	Prober       *connectivity.Prober
	Models       *models.Registry
	Roles        *role.Session
	MCP          *mcp.Manager
	Conversation *conversation.Session
	Images       *imagegen.Workflow
}

// Status is a point-in-time summary for display.
type Status struct {
	Candidate    backend.Endpoint
	Endpoint     backend.Endpoint
	Bound        bool
	Selection    models.Selection
	Models       int
	Role         role.ActiveRole
	RoleChosen   bool
	MCPLoaded    bool
	MCPServers   int
	Transcript   int
	ImagePending bool
}

// New builds the component graph from cfg. Nothing touches the network until
// Connect is called.
func New(cfg *config.Config, logger *zap.Logger) *App {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	bus := events.New()
	client := backend.NewClientWithConfig(&backend.ClientConfig{
		BaseURL:           cfg.Backend.URL,
		Timeout:           cfg.Backend.Timeout(),
		ProbeTimeout:      cfg.Backend.ProbeTimeout(),
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Burst:             cfg.Backend.Burst,
		Logger:            logger,
	})

	registry := models.NewRegistry(bus, logger)
	roles := role.NewSession(client, bus, logger)
	manager := mcp.NewManager(client, bus, logger)
	conv := conversation.NewSession(client, registry, roles, bus, logger)
	images := imagegen.NewWorkflow(client, imagegen.Request{
		Model:   cfg.Image.Model,
		Size:    cfg.Image.Size,
		Quality: cfg.Image.Quality,
		Style:   cfg.Image.Style,
	}, bus, logger)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Bus:          bus,
		Client:       client,
		Prober:       connectivity.NewProber(client, roles, bus, logger),
		Models:       registry,
		Roles:        roles,
		MCP:          manager,
		Conversation: conv,
		Images:       images,
	}
}

// Close stops background work and detaches every component from the bus.
func (a *App) Close() {
	a.Conversation.Close()
	a.Images.Close()
	a.MCP.Close()
	a.Roles.Close()
	a.Models.Close()
}

// =============================================================================
// CONNECTION
// =============================================================================

// Connect probes the configured backend and applies the configured model
// preferences.
func (a *App) Connect(ctx context.Context) (*connectivity.Connection, error) {
	conn, err := a.Prober.Probe(ctx)
	if err != nil {
		return nil, err
	}
	a.applyPreferences()
	return conn, nil
}

// Reconnect drops the binding and probes again.
func (a *App) Reconnect(ctx context.Context) (*connectivity.Connection, error) {
	conn, err := a.Prober.Reprobe(ctx)
	if err != nil {
		return nil, err
	}
	a.applyPreferences()
	return conn, nil
}

// Retarget points the prober at url and reconnects. Used when the config
// file changes the backend address.
func (a *App) Retarget(ctx context.Context, url string) (*connectivity.Connection, error) {
	if err := a.Client.SetCandidate(backend.Endpoint(url)); err != nil {
		return nil, fmt.Errorf("retarget: %w", err)
	}
	a.Logger.Info("backend address changed", zap.String("candidate", url))
	return a.Reconnect(ctx)
}

func (a *App) applyPreferences() {
	prefs := a.Config.Models
	if prefs.Preferred != "" {
		if _, ok := a.Models.Lookup(prefs.Preferred); ok {
			if _, err := a.Models.Select(prefs.Preferred); err != nil {
				a.Logger.Warn("preferred model not applied", zap.String("model", prefs.Preferred), zap.Error(err))
			}
		} else {
			a.Logger.Info("preferred model not offered", zap.String("model", prefs.Preferred))
		}
	}
	if prefs.WebSearch && a.Models.CanWebSearch() {
		if _, err := a.Models.SetWebSearch(true); err != nil {
			a.Logger.Warn("web search preference not applied", zap.Error(err))
		}
	}
}

// =============================================================================
// STATUS
// =============================================================================

// Status reports the current state of every component.
func (a *App) Status() Status {
	ep, bound := a.Client.Endpoint()
	active, chosen := a.Roles.Active()
	return Status{
		Candidate:    a.Client.Candidate(),
		Endpoint:     ep,
		Bound:        bound,
		Selection:    a.Models.Selection(),
		Models:       len(a.Models.Models()),
		Role:         active,
		RoleChosen:   chosen,
		MCPLoaded:    a.MCP.Loaded(),
		MCPServers:   len(a.MCP.Snapshot()),
		Transcript:   len(a.Conversation.Transcript()),
		ImagePending: a.Images.Current().Pending,
	}
}
