// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"strings"

	"github.com/jeranaias/webui-chat/internal/util"
)

// categoryOrder is the display order of help sections.
var categoryOrder = []string{"General", "Conversation", "Model", "History"}

// =============================================================================
// HELP TEXT GENERATION
// =============================================================================

// GenerateHelpText returns help for one command, or for all of them when
// topic is empty or unknown.
func GenerateHelpText(r *Registry, topic string) string {
	if topic != "" {
		if cmd := r.Get(strings.TrimPrefix(topic, r.prefix)); cmd != nil {
			return generateCommandHelp(r, cmd)
		}
	}
	return generateFullHelp(r)
}

func generateCommandHelp(r *Registry, cmd *Command) string {
	var sb strings.Builder
	usage := cmd.Usage
	if usage == "" {
		usage = cmd.Name
	}
	sb.WriteString(r.prefix + usage + "\n")
	sb.WriteString("  " + cmd.Description + "\n")
	if len(cmd.Aliases) > 0 {
		sb.WriteString("  Aliases: " + r.prefix + strings.Join(cmd.Aliases, ", "+r.prefix) + "\n")
	}
	for _, arg := range cmd.Args {
		line := "  " + util.PadRight(arg.Name, 10) + arg.Description
		if arg.Required {
			line += " (required)"
		}
		if len(arg.Values) > 0 {
			line += ": " + strings.Join(arg.Values, ", ")
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func generateFullHelp(r *Registry) string {
	var sb strings.Builder

	sb.WriteString("Type a message and press Enter to send it.\n")
	sb.WriteString(fmt.Sprintf("Lines starting with %s are commands:\n\n", r.prefix))

	categories := r.ByCategory()
	for _, category := range categoryOrder {
		cmds := categories[category]
		if len(cmds) == 0 {
			continue
		}
		sb.WriteString(category + "\n")
		for _, cmd := range cmds {
			usage := cmd.Usage
			if usage == "" {
				usage = cmd.Name
			}
			sb.WriteString("  " + util.PadRight(r.prefix+usage, 33) + " " + cmd.Description + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Keys\n")
	sb.WriteString("  " + util.PadRight("Ctrl+C", 34) + "Stop the response being generated\n")
	sb.WriteString("  " + util.PadRight("Ctrl+D", 34) + "Exit\n")
	sb.WriteString("  " + util.PadRight("Tab", 34) + "Complete commands and arguments\n")
	return sb.String()
}
