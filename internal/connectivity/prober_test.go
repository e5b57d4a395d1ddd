// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package connectivity_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agentdesk/internal/backend"
	"github.com/jeranaias/agentdesk/internal/backend/backendtest"
	"github.com/jeranaias/agentdesk/internal/connectivity"
	"github.com/jeranaias/agentdesk/internal/events"
	"github.com/jeranaias/agentdesk/internal/mcp"
	"github.com/jeranaias/agentdesk/internal/models"
	"github.com/jeranaias/agentdesk/internal/role"
)

const (
	probeRoute  = "POST /api/conversations/clear"
	modelsRoute = "GET /api/models"
	roleRoute   = "GET /api/role"
)

type fixture struct {
	srv      *backendtest.Server
	client   *backend.Client
	bus      *events.Bus
	prober   *connectivity.Prober
	registry *models.Registry
	roles    *role.Session
	mcp      *mcp.Manager
	kinds    []string
}

func newFixture(t *testing.T, baseURL string) *fixture {
	t.Helper()
	f := &fixture{bus: events.New()}
	f.client = backend.NewClientWithConfig(&backend.ClientConfig{BaseURL: baseURL})
	f.registry = models.NewRegistry(f.bus, nil)
	f.roles = role.NewSession(f.client, f.bus, nil)
	f.mcp = mcp.NewManager(f.client, f.bus, nil)
	f.prober = connectivity.NewProber(f.client, f.roles, f.bus, nil)
	f.bus.Subscribe("", func(e events.Event) { f.kinds = append(f.kinds, e.Kind) })
	t.Cleanup(func() {
		f.registry.Close()
		f.roles.Close()
		f.mcp.Close()
	})
	return f
}

func newLiveFixture(t *testing.T) *fixture {
	t.Helper()
	srv := backendtest.New(t)
	f := newFixture(t, srv.URL)
	f.srv = srv
	return f
}

func TestProbe_BindsAndInitializes(t *testing.T) {
	f := newLiveFixture(t)

	conn, err := f.prober.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.srv.Endpoint(), conn.Endpoint)
	assert.Equal(t, "assistant", conn.CurrentRole)
	require.NotNil(t, conn.Snapshot)
	assert.Equal(t, "gpt-4", conn.Snapshot.DefaultModel)

	ep, bound := f.client.Endpoint()
	assert.True(t, bound)
	assert.Equal(t, f.srv.Endpoint(), ep)
	assert.Equal(t, 1, f.srv.Calls(probeRoute))

	assert.Contains(t, f.kinds, events.KindConnected)
	assert.Contains(t, f.kinds, events.KindSnapshotReplaced)

	// Dependents are initialized from the snapshot.
	assert.Equal(t, models.Selection{Model: "gpt-4"}, f.registry.Selection())
	assert.Len(t, f.registry.Models(), 5)
	active, chosen := f.roles.Active()
	assert.Equal(t, "assistant", active.Key)
	assert.False(t, chosen, "hydration does not count as choosing a role")

	// MCP list is fetched lazily.
	assert.False(t, f.mcp.Loaded())
	_, err = f.mcp.Servers(context.Background())
	require.NoError(t, err)
	assert.True(t, f.mcp.Loaded())
}

func TestProbe_SnapshotKeepsBackendOrder(t *testing.T) {
	f := newLiveFixture(t)
	_, err := f.prober.Probe(context.Background())
	require.NoError(t, err)

	var names []string
	for _, c := range f.prober.Snapshot().Categories {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"OpenAI", "DeepSeek", "Anthropic", "Google"}, names)
}

func TestProbe_Unreachable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	f := newFixture(t, dead.URL)

	conn, err := f.prober.Probe(context.Background())
	require.Error(t, err)
	assert.Nil(t, conn)
	assert.True(t, backend.IsUnreachable(err))
	assert.False(t, f.client.Bound())
	assert.Nil(t, f.prober.Snapshot())
	assert.Nil(t, f.prober.Connection())
	assert.Empty(t, f.kinds)
}

func TestProbe_NonSuccessStatus(t *testing.T) {
	f := newLiveFixture(t)
	f.srv.Fail(probeRoute, http.StatusServiceUnavailable, "starting")

	_, err := f.prober.Probe(context.Background())
	require.Error(t, err)
	assert.True(t, backend.IsUnreachable(err))
	assert.False(t, f.client.Bound())
	assert.Equal(t, 1, f.srv.Calls(probeRoute), "a failed probe is not retried")
	assert.Zero(t, f.srv.Calls(modelsRoute))
}

func TestProbe_DependentFailuresKeepBinding(t *testing.T) {
	f := newLiveFixture(t)
	f.srv.Fail(modelsRoute, http.StatusInternalServerError, "catalog offline")
	f.srv.Fail(roleRoute, http.StatusInternalServerError, "roles offline")

	conn, err := f.prober.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, f.client.Bound())
	assert.Nil(t, conn.Snapshot)
	assert.Empty(t, conn.CurrentRole)
	assert.Empty(t, f.registry.Models())
	assert.Empty(t, f.roles.Roles())
	assert.NotContains(t, f.kinds, events.KindSnapshotReplaced)
}

func TestProbe_AlreadyBound(t *testing.T) {
	f := newLiveFixture(t)
	_, err := f.prober.Probe(context.Background())
	require.NoError(t, err)

	conn, err := f.prober.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.srv.Endpoint(), conn.Endpoint)
	assert.Equal(t, 1, f.srv.Calls(probeRoute))
	assert.Equal(t, 1, f.srv.Calls(modelsRoute))
}

func TestReprobe(t *testing.T) {
	f := newLiveFixture(t)
	_, err := f.prober.Probe(context.Background())
	require.NoError(t, err)
	_, err = f.mcp.Servers(context.Background())
	require.NoError(t, err)
	_, err = f.roles.Select(context.Background(), "programmer", "")
	require.NoError(t, err)

	f.srv.SetModelsJSON(`{"default_model":"gemini-1.5-pro","models_by_category":{"Google":[{"id":"gemini-1.5-pro"}]}}`)
	f.kinds = nil

	conn, err := f.prober.Reprobe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gemini-1.5-pro", conn.Snapshot.DefaultModel)
	assert.Equal(t, 2, f.srv.Calls(probeRoute))

	disconnected := indexOf(f.kinds, events.KindDisconnected)
	connected := indexOf(f.kinds, events.KindConnected)
	require.GreaterOrEqual(t, disconnected, 0)
	assert.Greater(t, connected, disconnected)

	assert.Equal(t, models.Selection{Model: "gemini-1.5-pro"}, f.registry.Selection())
	assert.False(t, f.mcp.Loaded(), "the MCP set is refetched lazily after a re-probe")
	assert.False(t, f.roles.Chosen(), "a re-probe forgets the previous choice")
}

func TestReprobe_FailureLeavesUnbound(t *testing.T) {
	f := newLiveFixture(t)
	_, err := f.prober.Probe(context.Background())
	require.NoError(t, err)

	f.srv.Fail(probeRoute, http.StatusBadGateway, "")
	_, err = f.prober.Reprobe(context.Background())
	require.Error(t, err)
	assert.False(t, f.client.Bound())
	assert.Nil(t, f.prober.Snapshot())
	assert.Empty(t, f.registry.Models())
}

func TestRefreshCapabilities(t *testing.T) {
	f := newLiveFixture(t)

	_, err := f.prober.RefreshCapabilities(context.Background())
	assert.True(t, backend.IsUnreachable(err))

	_, err = f.prober.Probe(context.Background())
	require.NoError(t, err)
	_, err = f.registry.Select("gpt-4o-mini")
	require.NoError(t, err)

	f.srv.SetModelsJSON(`{"default_model":"gpt-4","models_by_category":{"OpenAI":[{"id":"gpt-4"},{"id":"gpt-4o-mini"}],"Mistral":[{"id":"mistral-large"}]}}`)
	conn, err := f.prober.RefreshCapabilities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, conn.Snapshot.Len())
	assert.Len(t, f.registry.Models(), 3)
	assert.Equal(t, "gpt-4o-mini", f.registry.Selection().Model, "a selection still offered survives a refresh")
	assert.Equal(t, 1, f.srv.Calls(probeRoute), "refreshing does not re-probe")
}

func TestRefreshCapabilities_CombinesFailures(t *testing.T) {
	f := newLiveFixture(t)
	_, err := f.prober.Probe(context.Background())
	require.NoError(t, err)
	before := f.prober.Snapshot()

	f.srv.Fail(modelsRoute, http.StatusInternalServerError, "catalog offline")
	f.srv.Fail(roleRoute, http.StatusInternalServerError, "roles offline")

	conn, err := f.prober.RefreshCapabilities(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog offline")
	assert.Contains(t, err.Error(), "roles offline")
	assert.Same(t, before, conn.Snapshot, "a failed fetch keeps the previous snapshot")
}

func indexOf(kinds []string, kind string) int {
	for i, k := range kinds {
		if k == kind {
			return i
		}
	}
	return -1
}
