// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - command-line parsing for webui-chat.
package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdModels
	CmdVersion
	CmdHelp
)

func (c Command) String() string {
	switch c {
	case CmdChat:
		return "chat"
	case CmdAsk:
		return "ask"
	case CmdModels:
		return "models"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Connection overrides; empty means "use the config file"
	URL    string
	APIKey string
	Model  string

	NoStream   bool
	NoMarkdown bool
	Quiet      bool

	// ConfigPath replaces the default ~/.webui-chat/config.toml
	ConfigPath string

	// Query is the question for ask
	Query string
}

// Flags that never take a value.
var boolFlagNames = []string{"no-stream", "no-markdown", "quiet", "q", "help", "h", "version", "v"}

// Flags that take a value.
var valueFlagNames = map[string]bool{
	"url": true, "api-key": true, "model": true, "m": true, "config": true, "c": true,
}

const usageText = `webui-chat - terminal chat client for Open WebUI

Usage:
  webui-chat [flags]                 Start an interactive chat (default)
  webui-chat chat [flags]            Same as above
  webui-chat ask [flags] <question>  Ask one question and print the answer
                                     ("-" or no question reads stdin)
  webui-chat models [flags]          List the models the server offers
  webui-chat version                 Show version information

Flags:
  --url <url>          Server URL (default from config, http://localhost:3000)
  --api-key <key>      API key sent as a bearer token
  -m, --model <id>     Model to chat with
  --no-stream          Wait for whole responses instead of streaming
  --no-markdown        Print responses without markdown rendering
  -c, --config <path>  Use a different config file (.toml or .json)
  -q, --quiet          Skip the welcome banner
  -h, --help           Show this help
  -v, --version        Show version information

Environment:
  WEBUI_CHAT_URL, WEBUI_CHAT_API_KEY, WEBUI_CHAT_MODEL, WEBUI_CHAT_STREAM
  override the config file; WEBUI_CHAT_HOME moves ~/.webui-chat.

In chat, lines starting with ">" are commands. Type ">help" to list them.

Version: %s
`

// PrintUsage writes the usage text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "webui-chat version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go version: %s\n", runtime.Version())
}

// Parse parses command-line arguments (without the program name).
func Parse(argv []string) (Command, Args, error) {
	p := NewArgParser(argv, boolFlagNames...)

	for _, name := range p.FlagNames() {
		if !valueFlagNames[name] && !isBoolFlag(name) {
			return CmdHelp, Args{}, &UsageError{Reason: fmt.Sprintf("unknown flag --%s", name)}
		}
		if isBoolFlag(name) && p.Flag(name) != "" {
			return CmdHelp, Args{}, &UsageError{Reason: fmt.Sprintf("flag --%s does not take a value", name)}
		}
		if valueFlagNames[name] && p.Flag(name) == "" {
			return CmdHelp, Args{}, &UsageError{Reason: fmt.Sprintf("flag --%s needs a value", name)}
		}
	}

	args := Args{
		URL:        p.Flag("url"),
		APIKey:     p.Flag("api-key"),
		Model:      p.Flag("model", "m"),
		NoStream:   p.BoolFlag("no-stream"),
		NoMarkdown: p.BoolFlag("no-markdown"),
		Quiet:      p.BoolFlag("quiet", "q"),
		ConfigPath: p.Flag("config", "c"),
	}

	if p.BoolFlag("help", "h") {
		return CmdHelp, args, nil
	}
	if p.BoolFlag("version", "v") {
		return CmdVersion, args, nil
	}

	switch cmd := strings.ToLower(p.Subcommand()); cmd {
	case "", "chat":
		if p.PositionalCount() > 1 {
			return CmdHelp, args, &UsageError{Reason: "chat takes no arguments", Example: "webui-chat chat --model llama3"}
		}
		return CmdChat, args, nil
	case "ask":
		args.Query = strings.Join(p.PositionalFrom(1), " ")
		return CmdAsk, args, nil
	case "models":
		return CmdModels, args, nil
	case "version":
		return CmdVersion, args, nil
	case "help":
		return CmdHelp, args, nil
	default:
		return CmdHelp, args, &UsageError{Reason: fmt.Sprintf("unknown command %q", cmd), Example: `webui-chat ask "what is SSE?"`}
	}
}

func isBoolFlag(name string) bool {
	for _, b := range boolFlagNames {
		if b == name {
			return true
		}
	}
	return false
}
