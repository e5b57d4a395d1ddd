// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

// Endpoint is the base address of a bound backend, e.g. "http://localhost:5001".
type Endpoint string

// String returns the endpoint as a plain string.
func (e Endpoint) String() string { return string(e) }

// =============================================================================
// ERROR PAYLOAD
// =============================================================================

// ErrorPayload is the body the backend sends alongside a non-2xx status.
type ErrorPayload struct {
	Error string `json:"error"`
}

// =============================================================================
// ROLE TYPES
// =============================================================================

// RoleState is the response of GET /api/role.
type RoleState struct {
	CurrentRole string `json:"current_role"`
	// PredefinedRoles maps role key to a short display label.
	PredefinedRoles map[string]string `json:"predefined_roles"`
}

// SetRoleRequest is the body of POST /api/role.
type SetRoleRequest struct {
	Type         string `json:"type"`
	CustomPrompt string `json:"custom_prompt"`
}

// SetRoleResponse is the response of POST /api/role.
type SetRoleResponse struct {
	Success       bool   `json:"success"`
	Role          string `json:"role"`
	SystemContent string `json:"system_content"`
}

// SaveRoleRequest is the body of POST /api/role/save.
type SaveRoleRequest struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// DeleteRoleRequest is the body of POST /api/role/delete.
type DeleteRoleRequest struct {
	Name string `json:"name"`
}

// RoleSetResponse is the response of the role save and delete calls.
type RoleSetResponse struct {
	Success         bool              `json:"success"`
	Message         string            `json:"message,omitempty"`
	PredefinedRoles map[string]string `json:"predefined_roles"`
}

// =============================================================================
// MODEL TYPES
// =============================================================================

// ModelEntry is one model inside a category of GET /api/models.
type ModelEntry struct {
	ID            string `json:"id"`
	Category      string `json:"category,omitempty"`
	Description   string `json:"description,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
	Recommended   bool   `json:"recommended,omitempty"`
}

// =============================================================================
// MCP TYPES
// =============================================================================

// MCPServerConfig is the caller-supplied configuration of an MCP server.
type MCPServerConfig struct {
	URL string `json:"url"`
}

// MCPServerInfo is one entry of GET /api/mcp/servers.
type MCPServerInfo struct {
	ID     string           `json:"id"`
	Status string           `json:"status"`
	Config *MCPServerConfig `json:"config,omitempty"`
}

// MCPServerList is the response of GET /api/mcp/servers.
type MCPServerList struct {
	Servers []MCPServerInfo `json:"servers"`
}

// AddMCPServerRequest is the body of POST /api/mcp/servers.
type AddMCPServerRequest struct {
	ID     string          `json:"id"`
	Config MCPServerConfig `json:"config"`
}

// MCPResult is the response of every mutating MCP call.
type MCPResult struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// =============================================================================
// CHAT TYPES
// =============================================================================

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	Model     string `json:"model"`
	WebSearch bool   `json:"web_search"`
}

// SearchResult is a retrieval source attached to an assistant reply.
type SearchResult struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// ChatResponse is the response of POST /api/chat.
type ChatResponse struct {
	Message       string         `json:"message"`
	SearchResults []SearchResult `json:"search_results,omitempty"`
}

// =============================================================================
// CONVERSATION TYPES
// =============================================================================

// ConversationSummary is one entry of GET /api/conversations.
type ConversationSummary struct {
	Timestamp int64  `json:"timestamp"`
	Datetime  string `json:"datetime"`
	Title     string `json:"title"`
	Filename  string `json:"filename"`
}

// SaveConversationRequest is the body of POST /api/conversations.
// An empty title is omitted so the backend names the file itself.
type SaveConversationRequest struct {
	Title string `json:"title,omitempty"`
}

// SaveConversationResponse is the response of POST /api/conversations.
type SaveConversationResponse struct {
	Success  bool   `json:"success"`
	Filepath string `json:"filepath,omitempty"`
	Error    string `json:"error,omitempty"`
}

// StoredMessage is a message as persisted by the backend, system turns included.
type StoredMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// SearchResults is present only on assistant turns that carried sources.
	SearchResults []SearchResult `json:"search_results,omitempty"`
}

// LoadedConversation is the response of GET /api/conversations/{filename}.
type LoadedConversation struct {
	Success     bool            `json:"success"`
	Messages    []StoredMessage `json:"messages"`
	CurrentRole string          `json:"current_role"`
}

// AckResponse is the generic {success, message?, error?} acknowledgement.
type AckResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// =============================================================================
// IMAGE TYPES
// =============================================================================

// ImageRequest is the body of POST /api/image.
type ImageRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	Size    string `json:"size"`
	Quality string `json:"quality"`
	Style   string `json:"style"`
	N       int    `json:"n"`
}

// ImageResponse is the response of POST /api/image.
type ImageResponse struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}
