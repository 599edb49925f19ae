// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"strings"
	"unicode"
)

// =============================================================================
// PARSE RESULT
// =============================================================================

// ParseResult contains the result of parsing a command line.
type ParseResult struct {
	// Command is the matched command (nil if not found)
	Command *Command

	// CommandName is the raw command name (e.g., "model")
	CommandName string

	// Args are the parsed arguments
	Args []string

	// RawInput is the command line without the prefix
	RawInput string

	// RawArgs is the unparsed arguments portion
	RawArgs string
}

// =============================================================================
// PARSER
// =============================================================================

// Parser handles parsing of command lines and their arguments.
type Parser struct {
	registry *Registry
}

// NewParser creates a new parser with the given registry.
func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse parses a command line with the prefix already removed.
// Command names are matched case-insensitively.
func (p *Parser) Parse(line string) ParseResult {
	line = strings.TrimSpace(line)
	result := ParseResult{RawInput: line}

	parts := splitCommandLine(line)
	if len(parts) == 0 {
		return result
	}

	result.CommandName = strings.ToLower(parts[0])
	if len(parts) > 1 {
		result.Args = parts[1:]
	}
	if end := strings.IndexFunc(line, unicode.IsSpace); end >= 0 {
		result.RawArgs = strings.TrimSpace(line[end:])
	}

	result.Command = p.registry.Get(result.CommandName)
	return result
}

// ParseArgs parses a raw argument string into individual arguments.
// Handles quoted strings with spaces.
func ParseArgs(input string) []string {
	return splitCommandLine(input)
}

// =============================================================================
// ARGUMENT PARSING
// =============================================================================

// splitCommandLine splits a command line into tokens, respecting quotes.
// Supports both single and double quotes for arguments with spaces.
func splitCommandLine(input string) []string {
	var tokens []string
	var current strings.Builder
	var inSingleQuote, inDoubleQuote, quoted bool

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		char := runes[i]

		switch {
		case char == '\'' && !inDoubleQuote:
			inSingleQuote = !inSingleQuote
			quoted = true

		case char == '"' && !inSingleQuote:
			inDoubleQuote = !inDoubleQuote
			quoted = true

		case char == '\\' && i+1 < len(runes) && (inDoubleQuote || inSingleQuote):
			next := runes[i+1]
			if next == '"' || next == '\'' || next == '\\' {
				current.WriteRune(next)
				i++
			} else {
				current.WriteRune(char)
			}

		case unicode.IsSpace(char) && !inSingleQuote && !inDoubleQuote:
			if current.Len() > 0 || quoted {
				tokens = append(tokens, current.String())
				current.Reset()
				quoted = false
			}

		default:
			current.WriteRune(char)
		}
	}

	if current.Len() > 0 || quoted {
		tokens = append(tokens, current.String())
	}

	return tokens
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// IsCommand returns true if the input starts with prefix.
func IsCommand(input, prefix string) bool {
	return prefix != "" && strings.HasPrefix(strings.TrimSpace(input), prefix)
}

// StripPrefix removes prefix and surrounding space from a command input.
func StripPrefix(input, prefix string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), prefix))
}

// ExtractCommandName extracts just the command name from a command line.
// e.g., "model llama3" -> "model"
func ExtractCommandName(line string) string {
	line = strings.TrimSpace(line)
	end := strings.IndexFunc(line, unicode.IsSpace)
	if end == -1 {
		return strings.ToLower(line)
	}
	return strings.ToLower(line[:end])
}

// ValidateArgs validates arguments against a command's argument definitions.
func ValidateArgs(cmd *Command, args []string) error {
	if cmd == nil {
		return nil
	}

	for i, argDef := range cmd.Args {
		if argDef.Required && i >= len(args) {
			return &ValidationError{
				Command:  cmd.Name,
				Arg:      argDef.Name,
				Message:  "required argument missing",
				Expected: argDef.Description,
			}
		}

		if i < len(args) && argDef.Type == ArgTypeEnum && len(argDef.Values) > 0 {
			valid := false
			for _, v := range argDef.Values {
				if strings.EqualFold(args[i], v) {
					valid = true
					break
				}
			}
			if !valid {
				return &ValidationError{
					Command:  cmd.Name,
					Arg:      argDef.Name,
					Message:  "invalid value",
					Got:      args[i],
					Expected: strings.Join(argDef.Values, ", "),
				}
			}
		}
	}

	if cmd.MaxArgs > 0 && len(args) > cmd.MaxArgs {
		return &ValidationError{
			Command: cmd.Name,
			Message: "too many arguments",
			Got:     strings.Join(args[cmd.MaxArgs:], " "),
		}
	}

	return nil
}

// =============================================================================
// VALIDATION ERROR
// =============================================================================

// ValidationError represents an argument validation error.
type ValidationError struct {
	Command  string
	Arg      string
	Message  string
	Got      string
	Expected string
}

func (e *ValidationError) Error() string {
	msg := e.Command + ": " + e.Message
	if e.Arg != "" {
		msg += " for argument '" + e.Arg + "'"
	}
	if e.Got != "" {
		msg += " (got: " + e.Got + ")"
	}
	if e.Expected != "" {
		msg += "; expected: " + e.Expected
	}
	return msg
}
