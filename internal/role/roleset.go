// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package role

import "sort"

// Built-in role keys. These cannot be deleted.
const (
	KeyAssistant  = "assistant"
	KeyProgrammer = "programmer"
	KeyCreative   = "creative"
)

// KeyCustom is the sentinel key the backend reports for an ad hoc prompt.
// It is never a member of a RoleSet.
const KeyCustom = "custom"

// DefaultKey is the role that takes over when the active role is deleted.
const DefaultKey = KeyAssistant

var builtinKeys = []string{KeyAssistant, KeyProgrammer, KeyCreative}

// IsBuiltin reports whether key names a built-in role.
func IsBuiltin(key string) bool {
	for _, k := range builtinKeys {
		if k == key {
			return true
		}
	}
	return false
}

// RoleSet maps a role key to its display label.
type RoleSet map[string]string

// Has reports whether key is in the set.
func (s RoleSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Keys returns the built-in keys first, in fixed order, followed by the
// user-saved keys sorted by name.
func (s RoleSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for _, k := range builtinKeys {
		if s.Has(k) {
			keys = append(keys, k)
		}
	}
	var saved []string
	for k := range s {
		if !IsBuiltin(k) {
			saved = append(saved, k)
		}
	}
	sort.Strings(saved)
	return append(keys, saved...)
}

// Clone returns an independent copy.
func (s RoleSet) Clone() RoleSet {
	if s == nil {
		return nil
	}
	out := make(RoleSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// ActiveRole is the role the conversation runs under. SystemContent is the
// system prompt confirmed by the backend on select or by a loaded
// transcript; it is empty when only the key is known.
type ActiveRole struct {
	Key           string
	SystemContent string
}
