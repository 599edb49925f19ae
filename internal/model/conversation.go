// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/webui-chat/internal/openwebui"
)

// titleWidth is the display width of generated titles.
const titleWidth = 50

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds an ordered chat history. Insertion order is display
// order.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []*Message `json:"messages"`
}

// NewConversation creates an empty conversation with a generated ID.
func NewConversation() *Conversation {
	now := time.Now()
	return &Conversation{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// NewConversationWithModel creates an empty conversation for model.
func NewConversationWithModel(model string) *Conversation {
	conv := NewConversation()
	conv.Model = model
	return conv
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddMessage appends msg and returns its index.
func (c *Conversation) AddMessage(msg *Message) int {
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = time.Now()
	if c.Title == "" && msg.IsOriginalUserMessage {
		c.Title = msg.Preview(titleWidth)
	}
	return len(c.Messages) - 1
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// At returns the message at index, or nil when out of range.
func (c *Conversation) At(index int) *Message {
	if index < 0 || index >= len(c.Messages) {
		return nil
	}
	return c.Messages[index]
}

// IndexOf returns the index of the message with id, or -1.
func (c *Conversation) IndexOf(id string) int {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// FindByID returns the message with id, or nil.
func (c *Conversation) FindByID(id string) *Message {
	if i := c.IndexOf(id); i >= 0 {
		return c.Messages[i]
	}
	return nil
}

// LastAssistantIndex returns the index of the most recent assistant message,
// or -1.
func (c *Conversation) LastAssistantIndex() int {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].IsAssistant() {
			return i
		}
	}
	return -1
}

// Touch records a modification.
func (c *Conversation) Touch() {
	c.UpdatedAt = time.Now()
}

// ClearHistory removes every message and the title.
func (c *Conversation) ClearHistory() {
	c.Messages = make([]*Message, 0)
	c.Title = ""
	c.UpdatedAt = time.Now()
}

// IsEmpty returns true if the conversation has no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// =============================================================================
// CONVERSION
// =============================================================================

// ToWireMessages returns the transmittable history in wire form.
func (c *Conversation) ToWireMessages() []openwebui.ChatMessage {
	return WireMessages(c.Messages)
}

// WireMessages converts msgs to wire form, skipping messages that are not
// transmittable.
func WireMessages(msgs []*Message) []openwebui.ChatMessage {
	out := make([]openwebui.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Transmittable() {
			out = append(out, m.ToWire())
		}
	}
	return out
}

// Snapshot returns copies of the messages.
func (c *Conversation) Snapshot() []Message {
	out := make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		out[i] = *m
	}
	return out
}

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Messages = make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		clone.Messages[i] = m.Clone()
	}
	return &clone
}

// =============================================================================
// METADATA
// =============================================================================

// ConversationMeta summarizes a stored conversation for listings.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Meta returns the listing summary of the conversation.
func (c *Conversation) Meta() ConversationMeta {
	return ConversationMeta{
		ID:           c.ID,
		Title:        c.Title,
		Model:        c.Model,
		MessageCount: len(c.Messages),
		UpdatedAt:    c.UpdatedAt,
	}
}
