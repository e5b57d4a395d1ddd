// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents a classified failure from the backend client or
// from one of the session components built on top of it.
type ClientError struct {
	Type    ErrorType
	Message string
	// Status is the HTTP status code when the failure came from a response.
	Status int
	Cause  error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches any *ClientError with the same Type, so sentinels work with
// errors.Is regardless of message.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return t.Type == e.Type && (t.Message == "" || t.Message == e.Message)
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	// ErrTypeUnreachable: no backend bound, or the transport failed.
	ErrTypeUnreachable
	// ErrTypeForbidden: disallowed mutation such as deleting a built-in role.
	ErrTypeForbidden
	// ErrTypeConflict: duplicate identifier.
	ErrTypeConflict
	// ErrTypeInvalidInput: empty or malformed required field.
	ErrTypeInvalidInput
	// ErrTypeBusy: an operation is already pending on the same resource.
	ErrTypeBusy
	// ErrTypeRemoteFailure: backend reachable but reported an error.
	ErrTypeRemoteFailure
)

// String returns the taxonomy name of the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeUnreachable:
		return "unreachable"
	case ErrTypeForbidden:
		return "forbidden"
	case ErrTypeConflict:
		return "conflict"
	case ErrTypeInvalidInput:
		return "invalid_input"
	case ErrTypeBusy:
		return "busy"
	case ErrTypeRemoteFailure:
		return "remote_failure"
	default:
		return "unknown"
	}
}

// Sentinel errors for easy checking.
var (
	ErrUnbound      = &ClientError{Type: ErrTypeUnreachable, Message: "no backend endpoint bound"}
	ErrAlreadyBound = errors.New("backend endpoint already bound")
)

// NewError builds a ClientError of the given type with a formatted message.
func NewError(t ErrorType, format string, args ...any) *ClientError {
	return &ClientError{Type: t, Message: fmt.Sprintf(format, args...)}
}

// TypeOf reports the ErrorType carried by err, or ErrTypeUnknown.
func TypeOf(err error) ErrorType {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ErrTypeUnknown
}

// IsUnreachable returns true if err signals that no backend is available.
func IsUnreachable(err error) bool { return TypeOf(err) == ErrTypeUnreachable }

// IsForbidden returns true if err is a disallowed mutation.
func IsForbidden(err error) bool { return TypeOf(err) == ErrTypeForbidden }

// IsConflict returns true if err is a duplicate identifier.
func IsConflict(err error) bool { return TypeOf(err) == ErrTypeConflict }

// IsInvalidInput returns true if err is a missing or malformed field.
func IsInvalidInput(err error) bool { return TypeOf(err) == ErrTypeInvalidInput }

// IsBusy returns true if err rejected a concurrent operation.
func IsBusy(err error) bool { return TypeOf(err) == ErrTypeBusy }

// IsRemoteFailure returns true if the backend reported an error.
func IsRemoteFailure(err error) bool { return TypeOf(err) == ErrTypeRemoteFailure }

// typeForStatus maps a non-2xx HTTP status to the error taxonomy.
func typeForStatus(status int) ErrorType {
	switch status {
	case http.StatusForbidden:
		return ErrTypeForbidden
	case http.StatusConflict:
		return ErrTypeConflict
	case http.StatusBadRequest:
		return ErrTypeInvalidInput
	default:
		return ErrTypeRemoteFailure
	}
}
