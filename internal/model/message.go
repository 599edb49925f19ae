// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/webui-chat/internal/openwebui"
	"github.com/jeranaias/webui-chat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// NoOriginal marks a message that does not point back at another message.
const NoOriginal = -1

// Cancellation text shown in place of, or after, a stopped response. Neither
// is sent back to the server.
const (
	CancelledMarker = "\n\n_[response cancelled]_"
	CancelledNotice = "_[response cancelled before any text arrived]_"
)

// Message represents a single message in a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// IsOriginalUserMessage is set on messages the user typed.
	IsOriginalUserMessage bool `json:"is_original_user_message,omitempty"`

	// IsRetryPrompt marks a synthetic regenerate prompt; OriginalMessageIndex
	// is the index of the user message it regenerates an answer for.
	IsRetryPrompt        bool `json:"is_retry_prompt,omitempty"`
	OriginalMessageIndex int  `json:"original_message_index"`

	IsStreaming bool `json:"is_streaming,omitempty"`
	IsError     bool `json:"is_error,omitempty"`
	StatusCode  int  `json:"status_code,omitempty"`
}

// NewUserMessage creates a message typed by the user.
func NewUserMessage(content string) *Message {
	m := newMessage(RoleUser, content)
	m.IsOriginalUserMessage = true
	return m
}

// NewAssistantMessage creates a completed assistant message.
func NewAssistantMessage(content string) *Message {
	return newMessage(RoleAssistant, content)
}

// NewCancelledNotice creates the assistant message recorded when a response
// is stopped before any text arrived.
func NewCancelledNotice(id string) *Message {
	m := newMessage(RoleAssistant, CancelledNotice)
	if id != "" {
		m.ID = id
	}
	return m
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return newMessage(RoleSystem, content)
}

// NewStreamingMessage creates an empty assistant placeholder with the given
// id. Generated when id is empty.
func NewStreamingMessage(id string) *Message {
	m := newMessage(RoleAssistant, "")
	if id != "" {
		m.ID = id
	}
	m.IsStreaming = true
	return m
}

// NewRetryPrompt creates the synthetic user message sent to regenerate the
// answer to the message at originalIndex.
func NewRetryPrompt(content string, originalIndex int) *Message {
	m := newMessage(RoleUser, content)
	m.IsRetryPrompt = true
	m.OriginalMessageIndex = originalIndex
	return m
}

// NewErrorMessage creates an assistant message describing a failure.
func NewErrorMessage(content string, statusCode int) *Message {
	m := newMessage(RoleAssistant, content)
	m.IsError = true
	m.StatusCode = statusCode
	return m
}

func newMessage(role Role, content string) *Message {
	return &Message{
		ID:                   uuid.NewString(),
		Role:                 role,
		Content:              content,
		Timestamp:            time.Now(),
		OriginalMessageIndex: NoOriginal,
	}
}

// =============================================================================
// STREAMING
// =============================================================================

// AppendFragment adds streamed text to the message.
func (m *Message) AppendFragment(delta string) {
	m.Content += delta
	m.IsStreaming = true
}

// Finalize ends streaming and stores the trimmed text.
func (m *Message) Finalize(text string) {
	m.Content = strings.TrimSpace(text)
	m.IsStreaming = false
}

// Cancel ends streaming and marks the partial text as cancelled.
func (m *Message) Cancel() {
	m.Content = strings.TrimSpace(m.Content) + CancelledMarker
	m.IsStreaming = false
}

// SetError turns the message into an error message, replacing its content.
func (m *Message) SetError(content string, statusCode int) {
	m.Content = content
	m.IsError = true
	m.IsStreaming = false
	m.StatusCode = statusCode
}

// =============================================================================
// ACCESSORS
// =============================================================================

// IsUser returns true if this is a user message.
func (m *Message) IsUser() bool {
	return m.Role == RoleUser
}

// IsAssistant returns true if this is an assistant message.
func (m *Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

// IsCancelled reports whether the response was stopped by the user.
func (m *Message) IsCancelled() bool {
	return m.IsAssistant() &&
		(m.Content == CancelledNotice || strings.HasSuffix(m.Content, CancelledMarker))
}

// Preview returns a one-line preview of the content.
func (m *Message) Preview(maxWidth int) string {
	return util.Preview(m.Content, maxWidth)
}

// Clone returns a copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	return &c
}

// ToWire converts the message to its wire form, dropping every flag and
// any cancellation text.
func (m *Message) ToWire() openwebui.ChatMessage {
	return openwebui.ChatMessage{
		Role:    string(m.Role),
		Content: m.wireContent(),
	}
}

// Transmittable reports whether the message belongs in request history:
// error messages, cancel notices and in-flight or empty placeholders are
// left out.
func (m *Message) Transmittable() bool {
	if m.IsError || m.IsStreaming {
		return false
	}
	return strings.TrimSpace(m.wireContent()) != ""
}

func (m *Message) wireContent() string {
	if !m.IsAssistant() {
		return m.Content
	}
	if m.Content == CancelledNotice {
		return ""
	}
	return strings.TrimSuffix(m.Content, CancelledMarker)
}
