// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jeranaias/webui-chat/internal/config"
)

// maxFileCompletions bounds directory listings.
const maxFileCompletions = 20

// Completion is one completion candidate.
type Completion struct {
	Value       string
	Display     string
	Description string
	Score       int
}

// SessionInfo describes a stored conversation for completion.
type SessionInfo struct {
	ID    string
	Title string
}

// =============================================================================
// COMPLETER
// =============================================================================

// Completer handles tab completion for commands and arguments.
type Completer struct {
	registry *Registry

	// Callbacks for dynamic completion, set by the application
	ModelsFn   func() []string
	SessionsFn func() []SessionInfo
	ConfigFn   func() []string
	FilesFn    func(prefix string) []string
}

// NewCompleter creates a new completer with the given registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{registry: registry}
}

// Complete returns candidates for the token being typed at the end of
// input. Input that is not a command has no completions.
func (c *Completer) Complete(input string) []Completion {
	if !IsCommand(input, c.registry.prefix) {
		return nil
	}
	line := strings.TrimPrefix(strings.TrimLeft(input, " \t"), c.registry.prefix)
	trailingSpace := strings.HasSuffix(line, " ")

	parts := splitCommandLine(line)
	if len(parts) == 0 {
		return c.completeCommands("")
	}
	if len(parts) == 1 && !trailingSpace {
		return c.completeCommands(parts[0])
	}

	cmd := c.registry.Get(parts[0])
	if cmd == nil {
		return nil
	}

	argIndex := len(parts) - 2
	partial := parts[len(parts)-1]
	if trailingSpace {
		argIndex++
		partial = ""
	}
	return c.completeArg(cmd, argIndex, partial)
}

// CompleteLine returns whole-line candidates for input, the form line
// editors expect.
func (c *Completer) CompleteLine(input string) []string {
	input = strings.TrimLeft(input, " \t")
	completions := c.Complete(input)
	if len(completions) == 0 {
		return nil
	}

	head := input
	if !strings.HasSuffix(input, " ") {
		cut := strings.LastIndexAny(input, " \t")
		if cut < 0 {
			head = input[:strings.Index(input, c.registry.prefix)+len(c.registry.prefix)]
		} else {
			head = input[:cut+1]
		}
	}

	lines := make([]string, 0, len(completions))
	for _, comp := range completions {
		value := comp.Value
		if strings.ContainsAny(value, " \t") {
			value = `"` + value + `"`
		}
		lines = append(lines, head+value)
	}
	return lines
}

// =============================================================================
// COMMAND COMPLETION
// =============================================================================

func (c *Completer) completeCommands(partial string) []Completion {
	var completions []Completion
	partial = strings.ToLower(partial)

	for _, cmd := range c.registry.All() {
		if cmd.Hidden {
			continue
		}
		if strings.HasPrefix(cmd.Name, partial) {
			completions = append(completions, Completion{
				Value:       cmd.Name,
				Display:     c.registry.prefix + cmd.Name,
				Description: cmd.Description,
				Score:       calculateScore(cmd.Name, partial),
			})
		}
		for _, alias := range cmd.Aliases {
			if partial != "" && strings.HasPrefix(alias, partial) && alias != partial {
				completions = append(completions, Completion{
					Value:       alias,
					Display:     c.registry.prefix + alias + " -> " + cmd.Name,
					Description: cmd.Description,
					Score:       calculateScore(alias, partial) - 10,
				})
			}
		}
	}

	sortCompletions(completions)
	return completions
}

// =============================================================================
// ARGUMENT COMPLETION
// =============================================================================

func (c *Completer) completeArg(cmd *Command, argIndex int, partial string) []Completion {
	if argIndex < 0 || argIndex >= len(cmd.Args) {
		return nil
	}

	arg := cmd.Args[argIndex]
	switch arg.Type {
	case ArgTypeModel:
		if c.ModelsFn == nil {
			return nil
		}
		return completeFromList(c.ModelsFn(), partial)
	case ArgTypeSession:
		return c.completeSessions(partial)
	case ArgTypeFile:
		if c.FilesFn != nil {
			return completeFromList(c.FilesFn(partial), partial)
		}
		return defaultFileCompletion(partial)
	case ArgTypeEnum:
		return completeFromList(arg.Values, partial)
	case ArgTypeConfig:
		keys := config.GetAllKeys()
		if c.ConfigFn != nil {
			keys = c.ConfigFn()
		}
		return completeFromList(keys, partial)
	default:
		return nil
	}
}

func (c *Completer) completeSessions(partial string) []Completion {
	if c.SessionsFn == nil {
		return nil
	}

	var completions []Completion
	partial = strings.ToLower(partial)

	for _, s := range c.SessionsFn() {
		if !strings.HasPrefix(strings.ToLower(s.ID), partial) {
			continue
		}
		display := s.ID
		if s.Title != "" {
			display += " - " + s.Title
		}
		completions = append(completions, Completion{
			Value:   s.ID,
			Display: display,
			Score:   calculateScore(s.ID, partial),
		})
	}

	sortCompletions(completions)
	return completions
}

// defaultFileCompletion lists directory entries matching partial.
func defaultFileCompletion(partial string) []Completion {
	dir := filepath.Dir(partial)
	prefix := filepath.Base(partial)
	if partial == "" || strings.HasSuffix(partial, string(os.PathSeparator)) {
		dir = partial
		prefix = ""
	}
	readDir := dir
	if readDir == "" {
		readDir = "."
	}

	entries, err := os.ReadDir(readDir)
	if err != nil {
		return nil
	}

	var completions []Completion
	lowerPrefix := strings.ToLower(prefix)

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(strings.ToLower(name), lowerPrefix) {
			continue
		}
		// Skip hidden files unless partial starts with .
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(prefix, ".") {
			continue
		}

		path := name
		if dir != "" && dir != "." {
			path = filepath.Join(dir, name)
		} else if strings.HasPrefix(partial, "./") {
			path = "./" + name
		}

		score := calculateScore(name, lowerPrefix)
		desc := ""
		if entry.IsDir() {
			path += string(os.PathSeparator)
			desc = "directory"
			score += 5
		}

		completions = append(completions, Completion{
			Value:       path,
			Display:     name,
			Description: desc,
			Score:       score,
		})
	}

	sortCompletions(completions)
	if len(completions) > maxFileCompletions {
		completions = completions[:maxFileCompletions]
	}
	return completions
}

func completeFromList(values []string, partial string) []Completion {
	var completions []Completion
	partial = strings.ToLower(partial)

	for _, value := range values {
		if strings.HasPrefix(strings.ToLower(value), partial) {
			completions = append(completions, Completion{
				Value:   value,
				Display: value,
				Score:   calculateScore(value, partial),
			})
		}
	}

	sortCompletions(completions)
	return completions
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// calculateScore calculates a match score for completion ranking.
// Higher score = better match.
func calculateScore(value, partial string) int {
	value = strings.ToLower(value)
	partial = strings.ToLower(partial)

	score := 100
	if value == partial {
		return score + 100
	}
	if strings.HasPrefix(value, partial) {
		score += 50
		score += 20 - len(value)
	}
	score -= len(value) / 2
	return score
}

// sortCompletions sorts completions by score (descending), then alphabetically.
func sortCompletions(completions []Completion) {
	sort.SliceStable(completions, func(i, j int) bool {
		if completions[i].Score != completions[j].Score {
			return completions[i].Score > completions[j].Score
		}
		return completions[i].Value < completions[j].Value
	})
}
