// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backendtest

import (
	"net/http"
	"strings"

	"github.com/jeranaias/agentdesk/internal/backend"
)

// =============================================================================
// ROLE
// =============================================================================

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prompt, ok := s.roles[s.currentRole]
	if !ok {
		prompt = s.roles["assistant"]
	}
	s.live = []backend.StoredMessage{{Role: "system", Content: prompt}}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": s.live})
}

func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, backend.RoleState{
		CurrentRole:     s.currentRole,
		PredefinedRoles: s.roleLabelsLocked(),
	})
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var req backend.SetRoleRequest
	decode(r, &req)

	s.mu.Lock()
	defer s.mu.Unlock()

	var content string
	switch prompt, ok := s.roles[req.Type]; {
	case ok && req.CustomPrompt == "":
		content = prompt
		s.currentRole = req.Type
	case req.CustomPrompt != "":
		content = req.CustomPrompt
		s.currentRole = "custom"
	default:
		content = s.roles["assistant"]
		s.currentRole = "assistant"
	}
	if len(s.live) > 0 && s.live[0].Role == "system" {
		s.live[0].Content = content
	}
	writeJSON(w, http.StatusOK, backend.SetRoleResponse{Success: true, Role: s.currentRole, SystemContent: content})
}

func (s *Server) handleSaveRole(w http.ResponseWriter, r *http.Request) {
	var req backend.SaveRoleRequest
	decode(r, &req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Name == "" || req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "role name and prompt are required"})
		return
	}
	if _, exists := s.roles[req.Name]; exists {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "role '" + req.Name + "' already exists"})
		return
	}
	s.roles[req.Name] = req.Prompt
	writeJSON(w, http.StatusOK, backend.RoleSetResponse{Success: true, PredefinedRoles: s.roleLabelsLocked()})
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	var req backend.DeleteRoleRequest
	decode(r, &req)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case req.Name == "":
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "role name is required"})
		return
	case s.roles[req.Name] == "":
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "role '" + req.Name + "' does not exist"})
		return
	case BuiltinRoles[req.Name] != "":
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "cannot delete built-in role '" + req.Name + "'"})
		return
	}
	delete(s.roles, req.Name)
	writeJSON(w, http.StatusOK, backend.RoleSetResponse{Success: true, PredefinedRoles: s.roleLabelsLocked()})
}

// =============================================================================
// MODELS
// =============================================================================

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	raw := s.modelsJSON
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(raw))
}

// =============================================================================
// MCP
// =============================================================================

func (s *Server) handleListMCP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	servers := append([]backend.MCPServerInfo{}, s.mcp...)
	writeJSON(w, http.StatusOK, backend.MCPServerList{Servers: servers})
}

func (s *Server) handleAddMCP(w http.ResponseWriter, r *http.Request) {
	var req backend.AddMCPServerRequest
	decode(r, &req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ID == "" || req.Config.URL == "" {
		writeJSON(w, http.StatusBadRequest, backend.MCPResult{Error: "server id and config are required"})
		return
	}
	if s.findMCPLocked(req.ID) != nil {
		writeJSON(w, http.StatusOK, backend.MCPResult{Error: "server " + req.ID + " already exists"})
		return
	}
	cfg := req.Config
	s.mcp = append(s.mcp, backend.MCPServerInfo{ID: req.ID, Status: "disconnected", Config: &cfg})
	writeJSON(w, http.StatusOK, backend.MCPResult{Success: true})
}

func (s *Server) handleConnectMCP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	srv := s.findMCPLocked(id)
	if srv == nil {
		writeJSON(w, http.StatusNotFound, backend.MCPResult{Error: "mcp server not found: " + id})
		return
	}
	if detail, failing := s.mcpFails[id]; failing {
		srv.Status = "failed"
		writeJSON(w, http.StatusOK, backend.MCPResult{Status: "failed", Error: detail})
		return
	}
	srv.Status = "connected"
	writeJSON(w, http.StatusOK, backend.MCPResult{Success: true, Status: "connected"})
}

func (s *Server) handleDisconnectMCP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	srv := s.findMCPLocked(id)
	if srv == nil {
		writeJSON(w, http.StatusOK, backend.MCPResult{Status: "unknown"})
		return
	}
	srv.Status = "disconnected"
	writeJSON(w, http.StatusOK, backend.MCPResult{Success: true, Status: "disconnected"})
}

func (s *Server) handleDeleteMCP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.removeMCPLocked(r.PathValue("id"))
	writeJSON(w, http.StatusOK, backend.MCPResult{Success: ok})
}

// =============================================================================
// CHAT AND CONVERSATIONS
// =============================================================================

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req backend.ChatRequest
	decode(r, &req)
	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "message is empty"})
		return
	}

	s.mu.Lock()
	hook := s.chatHook
	s.mu.Unlock()

	var resp backend.ChatResponse
	if hook != nil {
		resp = hook(req)
	} else {
		resp = backend.ChatResponse{Message: "echo: " + req.Message}
		if req.WebSearch {
			resp.SearchResults = []backend.SearchResult{{Title: "result", URL: "https://example.com"}}
		}
	}

	s.mu.Lock()
	s.live = append(s.live,
		backend.StoredMessage{Role: "user", Content: req.Message},
		backend.StoredMessage{Role: "assistant", Content: resp.Message, SearchResults: resp.SearchResults},
	)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]backend.ConversationSummary, 0, len(s.saved))
	for _, c := range s.saved {
		out = append(out, c.summary)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveConversation(w http.ResponseWriter, r *http.Request) {
	var req backend.SaveConversationRequest
	decode(r, &req)

	s.mu.Lock()
	defer s.mu.Unlock()
	filename := s.saveLocked(req.Title, s.live)
	writeJSON(w, http.StatusOK, backend.SaveConversationResponse{Success: true, Filepath: "conversations/" + filename})
}

func (s *Server) handleLoadConversation(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.saved {
		if c.summary.Filename != filename {
			continue
		}
		s.live = append([]backend.StoredMessage(nil), c.messages...)
		if len(s.live) > 0 && s.live[0].Role == "system" {
			s.currentRole = "custom"
			for key, prompt := range s.roles {
				if prompt == s.live[0].Content {
					s.currentRole = key
					break
				}
			}
		}
		writeJSON(w, http.StatusOK, backend.LoadedConversation{Success: true, Messages: s.live, CurrentRole: s.currentRole})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "conversation failed to load or is empty"})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.saved {
		if c.summary.Filename == filename {
			s.saved = append(s.saved[:i], s.saved[i+1:]...)
			writeJSON(w, http.StatusOK, backend.AckResponse{Success: true, Message: "deleted " + filename})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"error": "conversation '" + filename + "' could not be deleted"})
}

// =============================================================================
// IMAGE
// =============================================================================

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	var req backend.ImageRequest
	decode(r, &req)
	if req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "image prompt is empty"})
		return
	}
	s.mu.Lock()
	hook := s.imageHook
	s.mu.Unlock()
	if hook != nil {
		writeJSON(w, http.StatusOK, hook(req))
		return
	}
	writeJSON(w, http.StatusOK, backend.ImageResponse{
		URL:           "https://images.example.com/" + strings.ReplaceAll(req.Prompt, " ", "-") + ".png",
		RevisedPrompt: "revised: " + req.Prompt,
	})
}
