// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jeranaias/webui-chat/internal/config"
	"github.com/jeranaias/webui-chat/internal/openwebui"
	"github.com/jeranaias/webui-chat/internal/session"
	"github.com/jeranaias/webui-chat/internal/storage"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnknownCommand is returned for a command name with no match.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrQuit asks the REPL to exit.
	ErrQuit = errors.New("quit requested")

	// ErrStorageDisabled is returned by history commands without a store.
	ErrStorageDisabled = errors.New("transcript storage is disabled")

	// ErrUploadUnavailable is returned by attach without an uploader.
	ErrUploadUnavailable = errors.New("file upload is not available")
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// HandlerFunc executes a command with parsed arguments.
type HandlerFunc func(ctx context.Context, env *Context, args []string) error

// Command represents a command that can be executed.
type Command struct {
	// Name is the primary command name without prefix (e.g., "help")
	Name string

	// Aliases are alternative names (e.g., "h", "?")
	Aliases []string

	// Description is shown in help and completion
	Description string

	// Usage shows argument syntax without prefix (e.g., "model [id]")
	Usage string

	// Args defines the expected arguments
	Args []ArgDef

	// MaxArgs rejects extra arguments when positive
	MaxArgs int

	// Handler is the function that executes the command
	Handler HandlerFunc

	// Hidden commands don't appear in help
	Hidden bool

	// Category for grouping in help display
	Category string
}

// ArgDef defines an argument for a command.
type ArgDef struct {
	// Name of the argument
	Name string

	// Required indicates if the argument must be provided
	Required bool

	// Type determines completion behavior
	Type ArgType

	// Description explains the argument
	Description string

	// Values for enum types
	Values []string
}

// ArgType indicates what kind of completion to provide.
type ArgType int

const (
	ArgTypeString  ArgType = iota // Free-form string
	ArgTypeModel                  // Model id from the catalog
	ArgTypeSession                // Stored conversation id
	ArgTypeFile                   // File path
	ArgTypeEnum                   // One of predefined values
	ArgTypeConfig                 // Config key
)

// =============================================================================
// CONTEXT
// =============================================================================

// Settings reads and updates the effective configuration.
type Settings interface {
	Current() *config.Config
	// Update validates, persists and applies cfg.
	Update(cfg *config.Config) error
}

// Uploader uploads a local file for attachment.
type Uploader interface {
	UploadFile(ctx context.Context, path string) (*openwebui.FileInfo, error)
}

// Context is what command handlers operate on. Store and Uploader may be
// nil.
type Context struct {
	Session  *session.Session
	Catalog  *session.Catalog
	Settings Settings
	Store    *storage.Store
	Uploader Uploader
	Out      io.Writer

	registry *Registry
}

func (c *Context) printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format, args...)
}

func (c *Context) println(s string) {
	fmt.Fprintln(c.Out, s)
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	prefix   string
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a new command registry with all built-in commands.
// prefix is only used for display.
func NewRegistry(prefix string) *Registry {
	if prefix == "" {
		prefix = session.DefaultCommandPrefix
	}
	r := &Registry{
		prefix:   prefix,
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Prefix returns the display prefix.
func (r *Registry) Prefix() string {
	return r.prefix
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) {
	r.commands[strings.ToLower(cmd.Name)] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[strings.ToLower(alias)] = cmd
	}
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) *Command {
	name = strings.ToLower(name)
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if cmd, ok := r.aliases[name]; ok {
		return cmd
	}
	return nil
}

// All returns all registered commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// ByCategory returns visible commands grouped by category.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.All() {
		if cmd.Hidden {
			continue
		}
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		result[category] = append(result[category], cmd)
	}
	return result
}

// Suggest returns visible command names starting with partial.
func (r *Registry) Suggest(partial string) []string {
	partial = strings.ToLower(partial)
	var names []string
	for _, cmd := range r.All() {
		if !cmd.Hidden && partial != "" && strings.HasPrefix(cmd.Name, partial) {
			names = append(names, cmd.Name)
		}
	}
	return names
}

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher runs command lines against a Context.
type Dispatcher struct {
	registry *Registry
	parser   *Parser
	env      *Context
}

// Bind returns a Dispatcher that runs commands against env.
func (r *Registry) Bind(env *Context) *Dispatcher {
	env.registry = r
	return &Dispatcher{registry: r, parser: NewParser(r), env: env}
}

// HandleCommand parses and runs one command line with the prefix removed.
func (d *Dispatcher) HandleCommand(ctx context.Context, line string) error {
	result := d.parser.Parse(line)
	if result.CommandName == "" {
		return d.registry.Get("help").Handler(ctx, d.env, nil)
	}
	if result.Command == nil {
		err := fmt.Errorf("%w: %s%s", ErrUnknownCommand, d.registry.prefix, result.CommandName)
		if names := d.registry.Suggest(result.CommandName); len(names) > 0 {
			err = fmt.Errorf("%w (did you mean %s%s?)", err, d.registry.prefix, names[0])
		}
		return err
	}
	if err := ValidateArgs(result.Command, result.Args); err != nil {
		return err
	}
	return result.Command.Handler(ctx, d.env, result.Args)
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	r.Register(&Command{
		Name:        "help",
		Aliases:     []string{"h", "?"},
		Description: "Show help and available commands",
		Usage:       "help [command]",
		MaxArgs:     1,
		Category:    "General",
		Handler:     HandleHelp,
	})

	r.Register(&Command{
		Name:        "quit",
		Aliases:     []string{"q", "exit"},
		Description: "Exit webui-chat",
		Category:    "General",
		Handler:     HandleQuit,
	})

	r.Register(&Command{
		Name:        "settings",
		Aliases:     []string{"config"},
		Description: "Show or change settings",
		Usage:       "settings [set <key> <value> | get <key> | keys]",
		Args: []ArgDef{
			{Name: "action", Type: ArgTypeEnum, Values: []string{"set", "get", "keys"}, Description: "Settings action"},
			{Name: "key", Type: ArgTypeConfig, Description: "Config key"},
			{Name: "value", Type: ArgTypeString, Description: "New value"},
		},
		Category: "General",
		Handler:  HandleSettings,
	})

	// Conversation commands
	r.Register(&Command{
		Name:        "clear",
		Aliases:     []string{"new"},
		Description: "Clear the conversation",
		Category:    "Conversation",
		Handler:     HandleClear,
	})

	r.Register(&Command{
		Name:        "stop",
		Description: "Stop the response being generated",
		Category:    "Conversation",
		Handler:     HandleStop,
	})

	r.Register(&Command{
		Name:        "retry",
		Aliases:     []string{"regenerate", "r"},
		Description: "Regenerate a response (default: the last one)",
		Usage:       "retry [n]",
		Args: []ArgDef{
			{Name: "n", Type: ArgTypeString, Description: "Response number, counting from 1"},
		},
		MaxArgs:  1,
		Category: "Conversation",
		Handler:  HandleRetry,
	})

	r.Register(&Command{
		Name:        "attach",
		Description: "Upload a file and attach it to the next message",
		Usage:       "attach <path>",
		Args: []ArgDef{
			{Name: "path", Required: true, Type: ArgTypeFile, Description: "File to upload"},
		},
		MaxArgs:  1,
		Category: "Conversation",
		Handler:  HandleAttach,
	})

	r.Register(&Command{
		Name:        "detach",
		Description: "Drop the pending attachment",
		Category:    "Conversation",
		Handler:     HandleDetach,
	})

	// Model commands
	r.Register(&Command{
		Name:        "models",
		Description: "List available models",
		Category:    "Model",
		Handler:     HandleModels,
	})

	r.Register(&Command{
		Name:        "model",
		Aliases:     []string{"m"},
		Description: "Show or switch the current model",
		Usage:       "model [id]",
		Args: []ArgDef{
			{Name: "id", Type: ArgTypeModel, Description: "Model to switch to"},
		},
		MaxArgs:  1,
		Category: "Model",
		Handler:  HandleModel,
	})

	r.Register(&Command{
		Name:        "stream",
		Description: "Show or toggle streaming responses",
		Usage:       "stream [on|off]",
		Args: []ArgDef{
			{Name: "state", Type: ArgTypeEnum, Values: []string{"on", "off"}, Description: "Streaming on or off"},
		},
		MaxArgs:  1,
		Category: "Model",
		Handler:  HandleStream,
	})

	// History commands
	r.Register(&Command{
		Name:        "save",
		Aliases:     []string{"s"},
		Description: "Save the conversation",
		Category:    "History",
		Handler:     HandleSave,
	})

	r.Register(&Command{
		Name:        "history",
		Aliases:     []string{"sessions", "list"},
		Description: "List saved conversations",
		Usage:       "history [search text]",
		Args: []ArgDef{
			{Name: "query", Type: ArgTypeString, Description: "Text to search for"},
		},
		Category: "History",
		Handler:  HandleHistory,
	})

	r.Register(&Command{
		Name:        "load",
		Aliases:     []string{"resume"},
		Description: "Load a saved conversation",
		Usage:       "load <id>",
		Args: []ArgDef{
			{Name: "id", Required: true, Type: ArgTypeSession, Description: "Conversation id or prefix"},
		},
		MaxArgs:  1,
		Category: "History",
		Handler:  HandleLoad,
	})

	r.Register(&Command{
		Name:        "delete",
		Description: "Delete a saved conversation",
		Usage:       "delete <id>",
		Args: []ArgDef{
			{Name: "id", Required: true, Type: ArgTypeSession, Description: "Conversation id or prefix"},
		},
		MaxArgs:  1,
		Category: "History",
		Handler:  HandleDelete,
	})

	r.Register(&Command{
		Name:        "export",
		Description: "Write the conversation to a Markdown file",
		Usage:       "export <path>",
		Args: []ArgDef{
			{Name: "path", Required: true, Type: ArgTypeFile, Description: "Output file"},
		},
		MaxArgs:  1,
		Category: "History",
		Handler:  HandleExport,
	})
}
