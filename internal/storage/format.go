// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/webui-chat/internal/model"
	"github.com/jeranaias/webui-chat/internal/util"
)

// ShortIDLength is the ID prefix shown in listings.
const ShortIDLength = 8

// =============================================================================
// HISTORY LIST FORMATTING
// =============================================================================

// FormatList formats conversation metadata as a table.
func FormatList(metas []model.ConversationMeta) string {
	if len(metas) == 0 {
		return "No saved conversations."
	}

	var sb strings.Builder
	sb.WriteString(util.PadRight("ID", ShortIDLength+2))
	sb.WriteString(util.PadRight("Updated", 18))
	sb.WriteString(util.PadRight("Msgs", 6))
	sb.WriteString("Title\n")
	sb.WriteString(strings.Repeat("-", 72))
	sb.WriteString("\n")

	for _, m := range metas {
		id := m.ID
		if len(id) > ShortIDLength {
			id = id[:ShortIDLength]
		}
		sb.WriteString(util.PadRight(id, ShortIDLength+2))
		sb.WriteString(util.PadRight(m.UpdatedAt.Format("2006-01-02 15:04"), 18))
		sb.WriteString(util.PadRight(strconv.Itoa(m.MessageCount), 6))
		sb.WriteString(util.Truncate(m.Title, 40))
		sb.WriteString("\n")
	}
	return sb.String()
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportMarkdown renders a conversation as Markdown with role labels.
func ExportMarkdown(conv *model.Conversation) string {
	var sb strings.Builder
	title := conv.Title
	if title == "" {
		title = "Conversation " + conv.ID
	}
	sb.WriteString("# " + title + "\n\n")
	if conv.Model != "" {
		sb.WriteString("Model: " + conv.Model + "\n\n")
	}
	sb.WriteString("Created: " + conv.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range conv.Messages {
		if msg.IsStreaming {
			continue
		}
		role := "**User**"
		switch {
		case msg.IsError:
			role = "**Error**"
		case msg.IsRetryPrompt:
			role = "**Retry**"
		case msg.Role == model.RoleAssistant:
			role = "**Assistant**"
		case msg.Role == model.RoleSystem:
			role = "**System**"
		}
		sb.WriteString(role + " (" + msg.Timestamp.Format("15:04") + "):\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String()
}
