// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// args.go - Argument parsing for the command line and for slash commands.

package cli

import (
	"strings"
	"unicode"
)

// =============================================================================
// ARG PARSER
// =============================================================================

// ArgParser splits raw arguments into flags and positional arguments.
//
// Supported flag formats:
//
//	--flag value     Long flag with space-separated value
//	--flag=value     Long flag with equals sign
//	-f value         Short flag with space-separated value
//	--flag           Boolean flag, when flag is listed in boolNames
type ArgParser struct {
	flags      map[string]string
	boolFlags  map[string]bool
	positional []string
}

// NewArgParser parses raw. Names in boolNames never consume the next
// argument as their value.
//
// Example:
//
//	p := NewArgParser([]string{"--url", "http://host:5001", "--plain"}, "plain")
//	p.Flag("url")       // "http://host:5001"
//	p.BoolFlag("plain") // true
func NewArgParser(raw []string, boolNames ...string) *ArgParser {
	isBool := make(map[string]bool, len(boolNames))
	for _, n := range boolNames {
		isBool[n] = true
	}

	p := &ArgParser{
		flags:     make(map[string]string),
		boolFlags: make(map[string]bool),
	}

	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		if arg == "--" {
			p.positional = append(p.positional, raw[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			p.positional = append(p.positional, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if k, v, ok := strings.Cut(name, "="); ok {
			if isBool[k] {
				p.boolFlags[k] = v == "true" || v == "1"
			} else {
				p.flags[k] = v
			}
			continue
		}
		if isBool[name] {
			p.boolFlags[name] = true
			continue
		}
		if i+1 < len(raw) && !strings.HasPrefix(raw[i+1], "-") {
			p.flags[name] = raw[i+1]
			i++
			continue
		}
		// A value flag with nothing after it is kept so HasFlag reports it.
		p.flags[name] = ""
	}
	return p
}

// Flag returns the value of the first name that is set, so a long and a
// short spelling can be passed together.
func (p *ArgParser) Flag(names ...string) string {
	for _, n := range names {
		if v, ok := p.flags[n]; ok {
			return v
		}
	}
	return ""
}

// HasFlag reports whether any of names was given as a value flag.
func (p *ArgParser) HasFlag(names ...string) bool {
	for _, n := range names {
		if _, ok := p.flags[n]; ok {
			return true
		}
	}
	return false
}

// BoolFlag reports whether any of names was set.
func (p *ArgParser) BoolFlag(names ...string) bool {
	for _, n := range names {
		if p.boolFlags[n] {
			return true
		}
	}
	return false
}

// Positional returns the positional argument at index, or "".
func (p *ArgParser) Positional(index int) string {
	if index < 0 || index >= len(p.positional) {
		return ""
	}
	return p.positional[index]
}

// PositionalCount returns the number of positional arguments.
func (p *ArgParser) PositionalCount() int {
	return len(p.positional)
}

// =============================================================================
// SLASH COMMAND LINES
// =============================================================================

// CommandLine is one parsed slash command.
type CommandLine struct {
	// Name is the command without its leading slash, lower-cased.
	Name string
	// Args are the whitespace-separated words after the name.
	Args []string

	raw string
}

// ParseCommandLine parses input that starts with "/". It returns false for
// anything else, including a lone "/".
func ParseCommandLine(input string) (CommandLine, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return CommandLine{}, false
	}
	fields := strings.Fields(input[1:])
	if len(fields) == 0 {
		return CommandLine{}, false
	}
	return CommandLine{
		Name: strings.ToLower(fields[0]),
		Args: fields[1:],
		raw:  input[1:],
	}, true
}

// Arg returns the argument at index, or "".
func (c CommandLine) Arg(index int) string {
	if index < 0 || index >= len(c.Args) {
		return ""
	}
	return c.Args[index]
}

// Rest returns the text after the first n arguments with its inner spacing
// intact. Prompts and titles are taken this way.
func (c CommandLine) Rest(n int) string {
	s := c.raw
	// Skip the name and then n arguments.
	for i := 0; i <= n; i++ {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		end := strings.IndexFunc(s, unicode.IsSpace)
		if end < 0 {
			return ""
		}
		s = s[end:]
	}
	return strings.TrimSpace(s)
}
