// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error display and exit codes.
//
// Command handlers always return errors and never print them. The REPL loop
// and main decide how to display them.

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/agentdesk/internal/backend"
	"github.com/jeranaias/agentdesk/internal/config"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates the backend could not be reached
	ExitNetworkError = 5
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports a malformed flag or slash command.
type UsageError struct {
	Field   string // Flag, command or argument at fault
	Value   string // Value that was provided
	Reason  string // Why it was rejected
	Example string // Example of valid usage (optional)
}

func (e *UsageError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nUsage: %s", e.Example)
	}
	return msg
}

func usage(cmd, example string) error {
	return &UsageError{Field: "/" + cmd, Reason: "missing argument", Example: example}
}

// =============================================================================
// DISPLAY
// =============================================================================

// Hint returns a one-line suggestion for err, or "".
func Hint(err error) string {
	var ue *UsageError
	var ve config.ValidateErrors
	switch {
	case errors.As(err, &ue):
		return "Type /help for the list of commands."
	case errors.As(err, &ve):
		return "Fix the config file or the AGENTDESK_* environment variables."
	}

	switch backend.TypeOf(err) {
	case backend.ErrTypeUnreachable:
		return "Start the backend, then run /reprobe."
	case backend.ErrTypeBusy:
		return "Wait for the pending operation to finish."
	case backend.ErrTypeConflict:
		return "Pick a different name."
	case backend.ErrTypeForbidden:
		return "Built-in entries cannot be changed."
	}
	return ""
}

// DisplayError writes err and its hint to w.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[Error]"), err.Error())
	if hint := Hint(err); hint != "" {
		fmt.Fprintln(w, DimStyle.Render(hint))
	}
}

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ue *UsageError
	var ve config.ValidateErrors
	switch {
	case errors.As(err, &ue):
		return ExitUsageError
	case errors.As(err, &ve):
		return ExitConfigError
	case backend.IsUnreachable(err):
		return ExitNetworkError
	}
	return ExitGeneralError
}
