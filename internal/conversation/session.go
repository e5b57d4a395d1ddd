// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/agentdesk/internal/backend"
	"github.com/jeranaias/agentdesk/internal/events"
	"github.com/jeranaias/agentdesk/internal/models"
)

// ErrClosed is returned by operations submitted after Close.
var ErrClosed = errors.New("conversation session closed")

// API is the slice of the backend client the session needs.
type API interface {
	Bound() bool
	Chat(ctx context.Context, req backend.ChatRequest) (*backend.ChatResponse, error)
	ClearConversation(ctx context.Context) error
	SaveConversation(ctx context.Context, title string) (string, error)
	ListConversations(ctx context.Context) ([]backend.ConversationSummary, error)
	LoadConversation(ctx context.Context, filename string) (*backend.LoadedConversation, error)
	DeleteConversation(ctx context.Context, filename string) error
}

// Selector supplies the model and web-search flag for a chat request.
type Selector interface {
	Selection() models.Selection
}

// RoleGate reports whether a role has been chosen.
type RoleGate interface {
	Chosen() bool
}

type job struct {
	ctx    context.Context
	name   string
	run    func(ctx context.Context) error
	result chan error
}

// Session owns the live transcript and the saved-conversation list.
//
// Send, Clear, Load and Save run one at a time, in submission order, on a
// single worker goroutine, so an append never interleaves with a clear or a
// load. List and Delete only touch the saved list and run directly.
//
// Connecting clears the backend's live conversation, so every connect event
// also queues a reset of the local transcript.
type Session struct {
	api      API
	selector Selector
	roles    RoleGate
	bus      *events.Bus
	logger   *zap.Logger

	jobs      chan job
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu         sync.Mutex
	transcript []Message
	summaries  []Summary

	// Summary lists are numbered when requested; an older list than the
	// one installed is dropped.
	listIssued    uint64
	listInstalled uint64

	unsubscribe func()
}

// NewSession creates a session and starts its worker. Call Close to stop it.
func NewSession(api API, selector Selector, roles RoleGate, bus *events.Bus, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		api:      api,
		selector: selector,
		roles:    roles,
		bus:      bus,
		logger:   logger.Named("conversation"),
		jobs:     make(chan job),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.worker()
	s.unsubscribe = bus.Subscribe(events.KindConnected, s.onConnected)
	return s
}

// Close stops the worker. Jobs still queued fail with ErrClosed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.unsubscribe()
		close(s.done)
	})
	s.wg.Wait()
}

// =============================================================================
// QUEUE
// =============================================================================

func (s *Session) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case j := <-s.jobs:
			if err := j.ctx.Err(); err != nil {
				j.result <- err
				continue
			}
			s.logger.Debug("running transcript job", zap.String("job", j.name))
			j.result <- j.run(j.ctx)
		}
	}
}

// submit queues fn behind every earlier transcript operation and waits for
// it to finish.
func (s *Session) submit(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	j := job{ctx: ctx, name: name, run: fn, result: make(chan error, 1)}

	select {
	case s.jobs <- j:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// The worker always answers a job it has accepted.
	return <-j.result
}

// =============================================================================
// TRANSCRIPT OPERATIONS
// =============================================================================

// Send appends text as a user message, asks the backend for a reply with the
// current model selection, and appends the reply. The user message is added
// before the request and stays even if the request fails.
func (s *Session) Send(ctx context.Context, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, backend.NewError(backend.ErrTypeInvalidInput, "message is empty")
	}
	if !s.api.Bound() {
		return nil, backend.ErrUnbound
	}
	if !s.roles.Chosen() {
		return nil, backend.NewError(backend.ErrTypeInvalidInput, "no role selected")
	}

	var reply *Message
	err := s.submit(ctx, "send", func(ctx context.Context) error {
		s.appendMessage(Message{Role: RoleUser, Content: text})

		sel := s.selector.Selection()
		resp, err := s.api.Chat(ctx, backend.ChatRequest{Message: text, Model: sel.Model, WebSearch: sel.WebSearch})
		if err != nil {
			s.logger.Warn("chat request failed", zap.String("model", sel.Model), zap.Error(err))
			return fmt.Errorf("send message: %w", err)
		}

		msg := Message{Role: RoleAssistant, Content: resp.Message, SearchResults: convertResults(resp.SearchResults)}
		s.appendMessage(msg)
		s.logger.Debug("reply received",
			zap.String("model", sel.Model),
			zap.Bool("web_search", sel.WebSearch),
			zap.Int("search_results", len(msg.SearchResults)))
		reply = &msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := reply.clone()
	return &out, nil
}

// Clear empties the transcript once the backend confirms. On failure the
// transcript is untouched.
func (s *Session) Clear(ctx context.Context) error {
	if !s.api.Bound() {
		return backend.ErrUnbound
	}
	return s.submit(ctx, "clear", func(ctx context.Context) error {
		if err := s.api.ClearConversation(ctx); err != nil {
			return fmt.Errorf("clear conversation: %w", err)
		}
		s.mu.Lock()
		s.transcript = nil
		s.mu.Unlock()

		s.bus.Publish(events.Event{
			Source: events.SourceConversation,
			Kind:   events.KindTranscriptChanged,
			Data:   map[string]any{"op": "clear", "length": 0},
		})
		return nil
	})
}

// Load replaces the transcript with a saved conversation. The role embedded
// in the conversation is published so the role session can adopt it.
func (s *Session) Load(ctx context.Context, filename string) ([]Message, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, backend.NewError(backend.ErrTypeInvalidInput, "filename is required")
	}
	if !s.api.Bound() {
		return nil, backend.ErrUnbound
	}

	err := s.submit(ctx, "load", func(ctx context.Context) error {
		loaded, err := s.api.LoadConversation(ctx, filename)
		if err != nil {
			return fmt.Errorf("load conversation %s: %w", filename, err)
		}

		messages := fromStored(loaded.Messages)
		s.mu.Lock()
		s.transcript = messages
		s.mu.Unlock()

		systemContent := ""
		if len(loaded.Messages) > 0 {
			systemContent = loaded.Messages[0].Content
		}
		s.logger.Info("conversation loaded",
			zap.String("filename", filename),
			zap.Int("messages", len(messages)),
			zap.String("role", loaded.CurrentRole))
		s.bus.Publish(events.Event{
			Source: events.SourceConversation,
			Kind:   events.KindTranscriptLoaded,
			Data: map[string]any{
				"filename":       filename,
				"current_role":   loaded.CurrentRole,
				"system_content": systemContent,
				"length":         len(messages),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Transcript(), nil
}

// Save persists the live conversation. An empty title leaves naming to the
// backend. The saved list is refreshed afterwards.
func (s *Session) Save(ctx context.Context, title string) (string, error) {
	if !s.api.Bound() {
		return "", backend.ErrUnbound
	}

	var path string
	err := s.submit(ctx, "save", func(ctx context.Context) error {
		p, err := s.api.SaveConversation(ctx, strings.TrimSpace(title))
		if err != nil {
			return fmt.Errorf("save conversation: %w", err)
		}
		path = p
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("conversation saved", zap.String("path", path))
	if _, err := s.List(ctx); err != nil {
		s.logger.Warn("refresh after save failed", zap.Error(err))
	}
	return path, nil
}

// onConnected empties the local transcript behind any transcript job
// already queued.
func (s *Session) onConnected(events.Event) {
	err := s.submit(context.Background(), "reset", func(context.Context) error {
		s.mu.Lock()
		dropped := len(s.transcript)
		s.transcript = nil
		s.mu.Unlock()

		if dropped == 0 {
			return nil
		}
		s.logger.Info("transcript reset after connect", zap.Int("dropped", dropped))
		s.bus.Publish(events.Event{
			Source: events.SourceConversation,
			Kind:   events.KindTranscriptChanged,
			Data:   map[string]any{"op": "reset", "length": 0, "dropped": dropped},
		})
		return nil
	})
	if err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Warn("transcript reset failed", zap.Error(err))
	}
}

// =============================================================================
// SAVED CONVERSATIONS
// =============================================================================

// List fetches the saved-conversation summaries. If a newer list was
// installed while the request was in flight, that list is returned instead.
func (s *Session) List(ctx context.Context) ([]Summary, error) {
	if !s.api.Bound() {
		return nil, backend.ErrUnbound
	}

	s.mu.Lock()
	s.listIssued++
	gen := s.listIssued
	s.mu.Unlock()

	raw, err := s.api.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	out := make([]Summary, 0, len(raw))
	for _, r := range raw {
		out = append(out, fromSummary(r))
	}

	s.mu.Lock()
	if gen <= s.listInstalled {
		current := append([]Summary(nil), s.summaries...)
		s.mu.Unlock()
		s.logger.Debug("stale conversation list discarded", zap.Uint64("generation", gen))
		return current, nil
	}
	s.listInstalled = gen
	s.summaries = out
	s.mu.Unlock()

	s.bus.Publish(events.Event{
		Source: events.SourceConversation,
		Kind:   events.KindSummariesChanged,
		Data:   map[string]any{"count": len(out)},
	})
	return append([]Summary(nil), out...), nil
}

// Delete removes a saved conversation and refreshes the saved list. The live
// transcript is never touched, even if it was loaded from filename.
func (s *Session) Delete(ctx context.Context, filename string) error {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return backend.NewError(backend.ErrTypeInvalidInput, "filename is required")
	}
	if !s.api.Bound() {
		return backend.ErrUnbound
	}
	if err := s.api.DeleteConversation(ctx, filename); err != nil {
		return fmt.Errorf("delete conversation %s: %w", filename, err)
	}
	s.logger.Info("conversation deleted", zap.String("filename", filename))

	if _, err := s.List(ctx); err != nil {
		s.logger.Warn("refresh after delete failed", zap.Error(err))
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Transcript returns a copy of the live transcript.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.transcript))
	for i, m := range s.transcript {
		out[i] = m.clone()
	}
	return out
}

// Summaries returns the last fetched saved-conversation list.
func (s *Session) Summaries() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Summary(nil), s.summaries...)
}

func (s *Session) appendMessage(m Message) {
	s.mu.Lock()
	s.transcript = append(s.transcript, m)
	n := len(s.transcript)
	s.mu.Unlock()

	s.bus.Publish(events.Event{
		Source: events.SourceConversation,
		Kind:   events.KindTranscriptChanged,
		Data:   map[string]any{"op": "append", "role": m.Role, "length": n},
	})
}
