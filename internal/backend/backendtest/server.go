// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backendtest provides an in-memory fake of the chat backend REST API
// for use in tests.
//
// The fake keeps just enough state (roles, models, MCP servers, the live and
// saved conversations) to exercise the session components end to end. Routes
// can be forced to fail, blocked until released, or overridden with hooks.
//
// # Usage
//
//	srv := backendtest.New(t)
//	client := backend.NewClientWithConfig(&backend.ClientConfig{BaseURL: srv.URL})
//	release := srv.Block("POST /api/mcp/servers/{id}/connect")
//	defer release()
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jeranaias/agentdesk/internal/backend"
)

// DefaultModelsJSON is the models payload served unless overridden. Category
// keys are deliberately out of alphabetical order.
const DefaultModelsJSON = `{
	"default_model": "gpt-4",
	"models": {},
	"models_by_category": {
		"OpenAI": [
			{"id": "gpt-4", "description": "flagship", "context_length": 8192, "recommended": true},
			{"id": "gpt-4o-mini", "description": "small"}
		],
		"DeepSeek": [
			{"id": "deepseek-chat", "description": "no retrieval"}
		],
		"Anthropic": [
			{"id": "claude-3-opus", "description": "long context"}
		],
		"Google": [
			{"id": "gemini-1.5-pro"}
		]
	}
}`

// BuiltinRoles are the role prompts the fake starts with.
var BuiltinRoles = map[string]string{
	"assistant":  "You are a helpful assistant",
	"programmer": "You are an expert programmer",
	"creative":   "You are a creative writer",
}

type failure struct {
	status int
	msg    string
}

type savedConversation struct {
	summary  backend.ConversationSummary
	messages []backend.StoredMessage
}

// Server is a fake backend. Its state is only changed through methods, so
// tests may adjust it while requests are in flight.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	currentRole string
	roles       map[string]string
	modelsJSON  string
	mcp         []backend.MCPServerInfo
	mcpFails    map[string]string
	live        []backend.StoredMessage
	saved       []savedConversation
	saveSeq     int64
	failures    map[string]failure
	gates       map[string]chan struct{}
	calls       map[string]int
	bodies      map[string][]json.RawMessage

	chatHook  func(req backend.ChatRequest) backend.ChatResponse
	imageHook func(req backend.ImageRequest) backend.ImageResponse
}

// New starts a fake backend that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		currentRole: "assistant",
		roles:       make(map[string]string),
		modelsJSON:  DefaultModelsJSON,
		mcpFails:    make(map[string]string),
		failures:    make(map[string]failure),
		gates:       make(map[string]chan struct{}),
		calls:       make(map[string]int),
		bodies:      make(map[string][]json.RawMessage),
	}
	for k, v := range BuiltinRoles {
		s.roles[k] = v
	}
	s.live = []backend.StoredMessage{{Role: "system", Content: s.roles["assistant"]}}

	mux := http.NewServeMux()
	s.route(mux, "POST /api/conversations/clear", s.handleClear)
	s.route(mux, "GET /api/role", s.handleGetRole)
	s.route(mux, "POST /api/role", s.handleSetRole)
	s.route(mux, "POST /api/role/save", s.handleSaveRole)
	s.route(mux, "POST /api/role/delete", s.handleDeleteRole)
	s.route(mux, "GET /api/models", s.handleModels)
	s.route(mux, "GET /api/mcp/servers", s.handleListMCP)
	s.route(mux, "POST /api/mcp/servers", s.handleAddMCP)
	s.route(mux, "POST /api/mcp/servers/{id}/connect", s.handleConnectMCP)
	s.route(mux, "POST /api/mcp/servers/{id}/disconnect", s.handleDisconnectMCP)
	s.route(mux, "DELETE /api/mcp/servers/{id}", s.handleDeleteMCP)
	s.route(mux, "POST /api/chat", s.handleChat)
	s.route(mux, "GET /api/conversations", s.handleListConversations)
	s.route(mux, "POST /api/conversations", s.handleSaveConversation)
	s.route(mux, "GET /api/conversations/{filename}", s.handleLoadConversation)
	s.route(mux, "DELETE /api/conversations/{filename}", s.handleDeleteConversation)
	s.route(mux, "POST /api/image", s.handleImage)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// =============================================================================
// TEST CONTROLS
// =============================================================================

// Endpoint returns the server address as a backend endpoint.
func (s *Server) Endpoint() backend.Endpoint {
	return backend.Endpoint(s.URL)
}

// Fail makes every request to route answer with status and {"error": msg}.
// A status of 0 removes the failure.
func (s *Server) Fail(route string, status int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, route)
		return
	}
	s.failures[route] = failure{status: status, msg: msg}
}

// Block holds requests to route until the returned release func is called.
// Release is safe to call more than once.
func (s *Server) Block(route string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gates[route] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gates[route] == ch {
				delete(s.gates, route)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns how many requests reached route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// LastBody decodes the most recent request body sent to route into v.
func (s *Server) LastBody(route string, v any) error {
	s.mu.Lock()
	bodies := s.bodies[route]
	s.mu.Unlock()
	if len(bodies) == 0 {
		return fmt.Errorf("no request body recorded for %s", route)
	}
	return json.Unmarshal(bodies[len(bodies)-1], v)
}

// SetChatHook makes fn produce the reply for POST /api/chat.
func (s *Server) SetChatHook(fn func(req backend.ChatRequest) backend.ChatResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatHook = fn
}

// SetImageHook makes fn produce the reply for POST /api/image. fn runs
// without the server lock held and may block.
func (s *Server) SetImageHook(fn func(req backend.ImageRequest) backend.ImageResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imageHook = fn
}

// SetModelsJSON replaces the raw GET /api/models payload.
func (s *Server) SetModelsJSON(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelsJSON = raw
}

// AddRole adds a role prompt directly, bypassing validation.
func (s *Server) AddRole(key, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[key] = prompt
}

// CurrentRole returns the backend's active role key.
func (s *Server) CurrentRole() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentRole
}

// PutMCPServer inserts or replaces a server entry directly.
func (s *Server) PutMCPServer(info backend.MCPServerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.mcp {
		if s.mcp[i].ID == info.ID {
			s.mcp[i] = info
			return
		}
	}
	s.mcp = append(s.mcp, info)
}

// RemoveMCPServer drops a server entry directly.
func (s *Server) RemoveMCPServer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeMCPLocked(id)
}

// FailMCPConnect makes connect for id report success=false with detail.
// An empty detail clears the failure.
func (s *Server) FailMCPConnect(id, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if detail == "" {
		delete(s.mcpFails, id)
		return
	}
	s.mcpFails[id] = detail
}

// SaveConversationAs stores a conversation directly and returns its filename.
func (s *Server) SaveConversationAs(title string, messages []backend.StoredMessage) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(title, messages)
}

// =============================================================================
// PLUMBING
// =============================================================================

func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		var raw json.RawMessage
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&raw)
		}

		s.mu.Lock()
		s.calls[pattern]++
		if raw != nil {
			s.bodies[pattern] = append(s.bodies[pattern], raw)
		}
		gate := s.gates[pattern]
		fail, failing := s.failures[pattern]
		s.mu.Unlock()

		if gate != nil {
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		if failing {
			writeJSON(w, fail.status, map[string]any{"error": fail.msg})
			return
		}

		if raw != nil {
			r.Body = readCloser{strings.NewReader(string(raw))}
		}
		h(w, r)
	})
}

type readCloser struct{ *strings.Reader }

func (readCloser) Close() error { return nil }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) {
	if r.Body == nil {
		return
	}
	_ = json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) roleLabelsLocked() map[string]string {
	out := make(map[string]string, len(s.roles))
	for k, v := range s.roles {
		out[k] = strings.SplitN(v, ",", 2)[0]
	}
	return out
}

func (s *Server) removeMCPLocked(id string) bool {
	for i := range s.mcp {
		if s.mcp[i].ID == id {
			s.mcp = append(s.mcp[:i], s.mcp[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Server) findMCPLocked(id string) *backend.MCPServerInfo {
	for i := range s.mcp {
		if s.mcp[i].ID == id {
			return &s.mcp[i]
		}
	}
	return nil
}

func (s *Server) saveLocked(title string, messages []backend.StoredMessage) string {
	s.saveSeq++
	ts := 1700000000 + s.saveSeq
	if title == "" {
		title = fmt.Sprintf("conversation_%d", ts)
	}
	filename := fmt.Sprintf("%d_%s.json", ts, strings.ReplaceAll(title, " ", "_"))
	copied := append([]backend.StoredMessage(nil), messages...)
	s.saved = append([]savedConversation{{
		summary: backend.ConversationSummary{
			Timestamp: ts,
			Datetime:  fmt.Sprintf("2024-01-01 00:00:%02d", s.saveSeq%60),
			Title:     title,
			Filename:  filename,
		},
		messages: copied,
	}}, s.saved...)
	return filename
}
