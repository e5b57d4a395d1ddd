// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"net/http"
	"net/url"
)

// =============================================================================
// ROLE OPERATIONS
// =============================================================================

// GetRole returns the active role key and the role set.
func (c *Client) GetRole(ctx context.Context) (*RoleState, error) {
	var out RoleState
	if err := c.do(ctx, http.MethodGet, "/api/role", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetRole activates a role. A non-empty customPrompt makes the backend
// switch to the "custom" role regardless of key.
func (c *Client) SetRole(ctx context.Context, key, customPrompt string) (*SetRoleResponse, error) {
	var out SetRoleResponse
	req := SetRoleRequest{Type: key, CustomPrompt: customPrompt}
	if err := c.do(ctx, http.MethodPost, "/api/role", req, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, remoteFailure("", "role change rejected")
	}
	return &out, nil
}

// SaveRole stores a new named role and returns the updated role set.
func (c *Client) SaveRole(ctx context.Context, name, prompt string) (map[string]string, error) {
	var out RoleSetResponse
	if err := c.do(ctx, http.MethodPost, "/api/role/save", SaveRoleRequest{Name: name, Prompt: prompt}, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, remoteFailure(out.Message, "role save rejected")
	}
	return out.PredefinedRoles, nil
}

// DeleteRole removes a user-saved role and returns the updated role set.
func (c *Client) DeleteRole(ctx context.Context, name string) (map[string]string, error) {
	var out RoleSetResponse
	if err := c.do(ctx, http.MethodPost, "/api/role/delete", DeleteRoleRequest{Name: name}, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, remoteFailure(out.Message, "role delete rejected")
	}
	return out.PredefinedRoles, nil
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// FetchSnapshot retrieves the capability snapshot.
func (c *Client) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	var out modelsResponse
	if err := c.do(ctx, http.MethodGet, "/api/models", nil, &out); err != nil {
		return nil, err
	}
	return out.snapshot(), nil
}

// =============================================================================
// MCP OPERATIONS
// =============================================================================

// ListMCPServers returns every MCP server the backend knows about.
func (c *Client) ListMCPServers(ctx context.Context) ([]MCPServerInfo, error) {
	var out MCPServerList
	if err := c.do(ctx, http.MethodGet, "/api/mcp/servers", nil, &out); err != nil {
		return nil, err
	}
	return out.Servers, nil
}

// AddMCPServer registers a server configuration.
func (c *Client) AddMCPServer(ctx context.Context, id string, cfg MCPServerConfig) error {
	return c.mcpMutation(ctx, http.MethodPost, "/api/mcp/servers", AddMCPServerRequest{ID: id, Config: cfg}, "add "+id)
}

// ConnectMCPServer asks the backend to connect to a server.
func (c *Client) ConnectMCPServer(ctx context.Context, id string) error {
	return c.mcpMutation(ctx, http.MethodPost, "/api/mcp/servers/"+url.PathEscape(id)+"/connect", nil, "connect "+id)
}

// DisconnectMCPServer asks the backend to disconnect from a server.
func (c *Client) DisconnectMCPServer(ctx context.Context, id string) error {
	return c.mcpMutation(ctx, http.MethodPost, "/api/mcp/servers/"+url.PathEscape(id)+"/disconnect", nil, "disconnect "+id)
}

// DeleteMCPServer removes a server configuration.
func (c *Client) DeleteMCPServer(ctx context.Context, id string) error {
	return c.mcpMutation(ctx, http.MethodDelete, "/api/mcp/servers/"+url.PathEscape(id), nil, "delete "+id)
}

func (c *Client) mcpMutation(ctx context.Context, method, path string, in any, what string) error {
	var out MCPResult
	if err := c.do(ctx, method, path, in, &out); err != nil {
		return err
	}
	if !out.Success {
		return remoteFailure(out.Error, "mcp "+what+" failed")
	}
	return nil
}

// =============================================================================
// CHAT OPERATIONS
// =============================================================================

// Chat sends one user turn and returns the assistant reply.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearConversation resets the backend's live conversation.
func (c *Client) ClearConversation(ctx context.Context) error {
	var out AckResponse
	if err := c.do(ctx, http.MethodPost, "/api/conversations/clear", nil, &out); err != nil {
		return err
	}
	if !out.Success {
		return remoteFailure(out.Error, "clear rejected")
	}
	return nil
}

// =============================================================================
// CONVERSATION PERSISTENCE
// =============================================================================

// ListConversations returns the saved conversation summaries.
func (c *Client) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	var out []ConversationSummary
	if err := c.do(ctx, http.MethodGet, "/api/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveConversation persists the live conversation. An empty title lets the
// backend pick one.
func (c *Client) SaveConversation(ctx context.Context, title string) (string, error) {
	var out SaveConversationResponse
	if err := c.do(ctx, http.MethodPost, "/api/conversations", SaveConversationRequest{Title: title}, &out); err != nil {
		return "", err
	}
	if !out.Success {
		return "", remoteFailure(out.Error, "save rejected")
	}
	return out.Filepath, nil
}

// LoadConversation makes a saved conversation the backend's live one and
// returns its messages.
func (c *Client) LoadConversation(ctx context.Context, filename string) (*LoadedConversation, error) {
	var out LoadedConversation
	if err := c.do(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(filename), nil, &out); err != nil {
		return nil, err
	}
	if !out.Success && out.Messages == nil {
		return nil, remoteFailure("", "load of "+filename+" returned no messages")
	}
	return &out, nil
}

// DeleteConversation removes a saved conversation.
func (c *Client) DeleteConversation(ctx context.Context, filename string) error {
	var out AckResponse
	if err := c.do(ctx, http.MethodDelete, "/api/conversations/"+url.PathEscape(filename), nil, &out); err != nil {
		return err
	}
	if !out.Success {
		return remoteFailure(out.Error, "delete of "+filename+" rejected")
	}
	return nil
}

// =============================================================================
// IMAGE GENERATION
// =============================================================================

// GenerateImage requests a single image.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResponse, error) {
	if req.N == 0 {
		req.N = 1
	}
	var out ImageResponse
	if err := c.do(ctx, http.MethodPost, "/api/image", req, &out); err != nil {
		return nil, err
	}
	if out.URL == "" {
		return nil, remoteFailure("", "image response carried no url")
	}
	return &out, nil
}
