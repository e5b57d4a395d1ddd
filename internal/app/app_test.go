// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jeranaias/agentdesk/internal/app"
	"github.com/jeranaias/agentdesk/internal/backend"
	"github.com/jeranaias/agentdesk/internal/backend/backendtest"
	"github.com/jeranaias/agentdesk/internal/config"
	"github.com/jeranaias/agentdesk/internal/imagegen"
	"github.com/jeranaias/agentdesk/internal/mcp"
	"github.com/jeranaias/agentdesk/internal/models"
)

func newApp(t *testing.T, srv *backendtest.Server, mutate func(*config.Config)) *app.App {
	t.Helper()
	cfg := config.Default()
	cfg.Backend.URL = srv.URL
	if mutate != nil {
		mutate(cfg)
	}
	a := app.New(cfg, nil)
	t.Cleanup(a.Close)
	return a
}

func TestConnect_EndToEnd(t *testing.T) {
	srv := backendtest.New(t)
	a := newApp(t, srv, nil)
	ctx := context.Background()

	st := a.Status()
	assert.False(t, st.Bound)
	assert.Equal(t, srv.Endpoint(), st.Candidate)

	_, err := a.Connect(ctx)
	require.NoError(t, err)

	st = a.Status()
	assert.True(t, st.Bound)
	assert.Equal(t, models.Selection{Model: "gpt-4"}, st.Selection)
	assert.Equal(t, 5, st.Models)
	assert.Equal(t, "assistant", st.Role.Key)
	assert.False(t, st.RoleChosen)
	assert.False(t, st.MCPLoaded)

	// A message needs a chosen role first.
	_, err = a.Conversation.Send(ctx, "hi")
	assert.True(t, backend.IsInvalidInput(err))

	_, err = a.Roles.Select(ctx, "programmer", "")
	require.NoError(t, err)
	reply, err := a.Conversation.Send(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", reply.Content)

	require.NoError(t, a.MCP.Add(ctx, "files", mcp.ServerConfig{URL: "http://mcp.local"}))
	require.NoError(t, a.MCP.Connect(ctx, "files"))
	server, ok := a.MCP.Get("files")
	require.True(t, ok)
	assert.Equal(t, mcp.StatusConnected, server.Status)

	res, err := a.Images.Generate(ctx, imageRequest("lighthouse"))
	require.NoError(t, err)
	assert.Contains(t, res.URL, "lighthouse")

	st = a.Status()
	assert.Equal(t, 2, st.Transcript)
	assert.Equal(t, 1, st.MCPServers)
	assert.True(t, st.RoleChosen)
}

func TestConnect_AppliesPreferences(t *testing.T) {
	srv := backendtest.New(t)
	a := newApp(t, srv, func(c *config.Config) {
		c.Models.Preferred = "claude-3-opus"
		c.Models.WebSearch = true
	})

	_, err := a.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Selection{Model: "claude-3-opus", WebSearch: true}, a.Models.Selection())
}

func TestConnect_PreferenceNotOffered(t *testing.T) {
	srv := backendtest.New(t)
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := config.Default()
	cfg.Backend.URL = srv.URL
	cfg.Models.Preferred = "gpt-9"
	cfg.Models.WebSearch = true
	a := app.New(cfg, zap.New(core))
	defer a.Close()

	_, err := a.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", a.Models.Selection().Model)
	assert.True(t, a.Models.Selection().WebSearch, "the default model supports web search")
	assert.Equal(t, 1, logs.FilterMessage("preferred model not offered").Len())
}

func TestConnect_WebSearchPreferenceIgnoredWhenUnsupported(t *testing.T) {
	srv := backendtest.New(t)
	a := newApp(t, srv, func(c *config.Config) {
		c.Models.Preferred = "deepseek-chat"
		c.Models.WebSearch = true
	})

	_, err := a.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Selection{Model: "deepseek-chat"}, a.Models.Selection())
}

func TestRetarget(t *testing.T) {
	first := backendtest.New(t)
	second := backendtest.New(t)
	second.SetModelsJSON(`{"default_model":"gemini-1.5-pro","models_by_category":{"Google":[{"id":"gemini-1.5-pro"}]}}`)

	a := newApp(t, first, nil)
	ctx := context.Background()
	_, err := a.Connect(ctx)
	require.NoError(t, err)
	_, err = a.Roles.Select(ctx, "creative", "")
	require.NoError(t, err)

	conn, err := a.Retarget(ctx, second.URL)
	require.NoError(t, err)
	assert.Equal(t, second.Endpoint(), conn.Endpoint)
	assert.Equal(t, "gemini-1.5-pro", a.Models.Selection().Model)
	assert.False(t, a.Roles.Chosen())
	assert.Equal(t, 1, second.Calls("POST /api/conversations/clear"))

	_, err = a.Retarget(ctx, "")
	assert.True(t, backend.IsInvalidInput(err))
}

func TestReconnect_ResetsTranscript(t *testing.T) {
	srv := backendtest.New(t)
	a := newApp(t, srv, nil)
	ctx := context.Background()
	_, err := a.Connect(ctx)
	require.NoError(t, err)
	_, err = a.Roles.Select(ctx, "programmer", "")
	require.NoError(t, err)
	_, err = a.Conversation.Send(ctx, "hi")
	require.NoError(t, err)
	require.Len(t, a.Conversation.Transcript(), 2)

	_, err = a.Reconnect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Calls("POST /api/conversations/clear"))
	assert.Empty(t, a.Conversation.Transcript(), "the health check cleared the backend conversation")
}

func imageRequest(prompt string) imagegen.Request {
	return imagegen.Request{Prompt: prompt}
}
