// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package role

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/agentdesk/internal/backend"
	"github.com/jeranaias/agentdesk/internal/events"
)

// API is the slice of the backend client the role session needs.
type API interface {
	GetRole(ctx context.Context) (*backend.RoleState, error)
	SetRole(ctx context.Context, key, customPrompt string) (*backend.SetRoleResponse, error)
	SaveRole(ctx context.Context, name, prompt string) (map[string]string, error)
	DeleteRole(ctx context.Context, name string) (map[string]string, error)
}

// Session tracks the role set and the single active role slot.
//
// The slot starts as "none selected". Hydrate records what the backend
// reports as current without counting as a choice; Select and loading a
// transcript do count.
type Session struct {
	api    API
	bus    *events.Bus
	logger *zap.Logger

	mu     sync.Mutex
	roles  RoleSet
	active ActiveRole
	chosen bool

	// Role set responses are numbered when requested; one older than the
	// last installed set is dropped.
	issued    uint64
	installed uint64

	unsubscribe []func()
}

// NewSession creates a role session. It adopts the role embedded in loaded
// transcripts and forgets everything when the endpoint is reset.
func NewSession(api API, bus *events.Bus, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		api:    api,
		bus:    bus,
		logger: logger.Named("role"),
	}
	s.unsubscribe = append(s.unsubscribe,
		bus.Subscribe(events.KindTranscriptLoaded, s.onTranscriptLoaded),
		bus.Subscribe(events.KindDisconnected, func(events.Event) { s.Reset() }),
	)
	return s
}

// Close detaches the session from the bus.
func (s *Session) Close() {
	for _, fn := range s.unsubscribe {
		fn()
	}
	s.unsubscribe = nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Roles returns the last known role set.
func (s *Session) Roles() RoleSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roles.Clone()
}

// Active returns the active role and whether one has been chosen.
func (s *Session) Active() (ActiveRole, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.chosen
}

// Chosen reports whether a role has been chosen in this session.
func (s *Session) Chosen() bool {
	_, ok := s.Active()
	return ok
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Hydrate fetches the role set and records the backend's current role
// without marking it as chosen. The role set only carries labels, so the
// recorded role has no SystemContent.
func (s *Session) Hydrate(ctx context.Context) (ActiveRole, error) {
	gen := s.nextGeneration()
	state, err := s.api.GetRole(ctx)
	if err != nil {
		return ActiveRole{}, fmt.Errorf("fetch role: %w", err)
	}

	roles := toSet(state.PredefinedRoles)
	s.mu.Lock()
	if !s.chosen && gen > s.installed {
		s.active = ActiveRole{Key: state.CurrentRole}
	}
	s.mu.Unlock()

	s.replaceSet(gen, roles)
	active, _ := s.Active()
	return active, nil
}

// List fetches and returns the role set. If a newer set was installed while
// the request was in flight, that set is returned instead.
func (s *Session) List(ctx context.Context) (RoleSet, error) {
	gen := s.nextGeneration()
	state, err := s.api.GetRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return s.replaceSet(gen, toSet(state.PredefinedRoles)), nil
}

// Select activates key. For KeyCustom, customContent is the prompt and must
// not be blank; for any other key customContent is ignored.
func (s *Session) Select(ctx context.Context, key, customContent string) (ActiveRole, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return ActiveRole{}, backend.NewError(backend.ErrTypeInvalidInput, "role key is required")
	}

	prompt := ""
	if key == KeyCustom {
		prompt = strings.TrimSpace(customContent)
		if prompt == "" {
			return ActiveRole{}, backend.NewError(backend.ErrTypeInvalidInput, "custom role requires a prompt")
		}
	} else {
		s.mu.Lock()
		known := len(s.roles) == 0 || s.roles.Has(key)
		s.mu.Unlock()
		if !known {
			return ActiveRole{}, backend.NewError(backend.ErrTypeInvalidInput, "unknown role %q", key)
		}
	}

	resp, err := s.api.SetRole(ctx, key, prompt)
	if err != nil {
		return ActiveRole{}, fmt.Errorf("select role %s: %w", key, err)
	}

	next := ActiveRole{Key: resp.Role, SystemContent: resp.SystemContent}
	if next.Key == "" {
		next.Key = key
	}

	s.mu.Lock()
	prev := s.active
	s.active = next
	s.chosen = true
	s.mu.Unlock()

	s.logger.Info("role selected", zap.String("role", next.Key))
	s.publishChanged(prev.Key, next.Key, "select")
	return next, nil
}

// SaveCustom stores a new named role. The new role is not activated.
func (s *Session) SaveCustom(ctx context.Context, name, prompt string) (RoleSet, error) {
	name = strings.TrimSpace(name)
	prompt = strings.TrimSpace(prompt)
	if name == "" || prompt == "" {
		return nil, backend.NewError(backend.ErrTypeInvalidInput, "role name and prompt are required")
	}
	if name == KeyCustom {
		return nil, backend.NewError(backend.ErrTypeInvalidInput, "%q is reserved", KeyCustom)
	}

	s.mu.Lock()
	exists := s.roles.Has(name)
	s.mu.Unlock()
	if exists {
		return nil, backend.NewError(backend.ErrTypeConflict, "role %q already exists", name)
	}

	gen := s.nextGeneration()
	set, err := s.api.SaveRole(ctx, name, prompt)
	if err != nil {
		return nil, fmt.Errorf("save role %s: %w", name, err)
	}

	roles := s.replaceSet(gen, toSet(set))
	s.logger.Info("role saved", zap.String("role", name))
	return roles, nil
}

// Delete removes a user-saved role. Built-in roles are refused with
// Forbidden before any request is made. If the deleted role was active the
// session falls back to DefaultKey.
func (s *Session) Delete(ctx context.Context, key string) (RoleSet, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, backend.NewError(backend.ErrTypeInvalidInput, "role key is required")
	}
	if IsBuiltin(key) {
		return nil, backend.NewError(backend.ErrTypeForbidden, "built-in role %q cannot be deleted", key)
	}

	gen := s.nextGeneration()
	set, err := s.api.DeleteRole(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("delete role %s: %w", key, err)
	}

	roles := s.replaceSet(gen, toSet(set))
	s.logger.Info("role deleted", zap.String("role", key))
	return roles, nil
}

// Reset forgets the role set and the active role.
func (s *Session) Reset() {
	s.mu.Lock()
	s.roles = nil
	s.active = ActiveRole{}
	s.chosen = false
	s.installed = s.issued
	s.mu.Unlock()
}

// =============================================================================
// INTERNALS
// =============================================================================

func (s *Session) nextGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	return s.issued
}

func toSet(m map[string]string) RoleSet {
	roles := RoleSet(m).Clone()
	if roles == nil {
		roles = RoleSet{}
	}
	return roles
}

// replaceSet installs roles, requested as generation gen, and falls back to
// DefaultKey if the active role is no longer a member. A set older than the
// installed one is dropped. It returns a copy of the set now installed.
func (s *Session) replaceSet(gen uint64, roles RoleSet) RoleSet {
	s.mu.Lock()
	if gen <= s.installed {
		current := s.roles.Clone()
		s.mu.Unlock()
		s.logger.Debug("stale role set discarded", zap.Uint64("generation", gen))
		if current == nil {
			current = RoleSet{}
		}
		return current
	}
	s.installed = gen
	s.roles = roles
	prev := s.active
	fellBack := false
	if prev.Key != "" && prev.Key != KeyCustom && !roles.Has(prev.Key) {
		// The prompt behind DefaultKey is unknown until the backend reports it.
		s.active = ActiveRole{Key: DefaultKey}
		fellBack = true
	}
	s.mu.Unlock()

	s.publishSet(roles)
	if fellBack {
		s.logger.Info("active role removed, falling back",
			zap.String("removed", prev.Key),
			zap.String("role", DefaultKey))
		s.publishChanged(prev.Key, DefaultKey, "fallback")
	}
	return roles.Clone()
}

// onTranscriptLoaded adopts the role a loaded transcript ran under. A key
// missing from a known role set becomes KeyCustom with the transcript's
// system prompt.
func (s *Session) onTranscriptLoaded(e events.Event) {
	key := e.String("current_role")
	if key == "" {
		return
	}

	s.mu.Lock()
	if key != KeyCustom && len(s.roles) > 0 && !s.roles.Has(key) {
		s.logger.Info("loaded role is not in the role set, using custom", zap.String("role", key))
		key = KeyCustom
	}
	prev := s.active
	s.active = ActiveRole{Key: key, SystemContent: e.String("system_content")}
	s.chosen = true
	s.mu.Unlock()

	s.publishChanged(prev.Key, key, "transcript")
}

func (s *Session) publishSet(roles RoleSet) {
	s.bus.Publish(events.Event{
		Source: events.SourceRole,
		Kind:   events.KindRoleSetChanged,
		Data:   map[string]any{"roles": roles.Keys()},
	})
}

func (s *Session) publishChanged(prev, next, reason string) {
	s.bus.Publish(events.Event{
		Source: events.SourceRole,
		Kind:   events.KindRoleChanged,
		Data:   map[string]any{"role": next, "previous": prev, "reason": reason},
	})
}
