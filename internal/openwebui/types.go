// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openwebui

import "encoding/json"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Role constants for wire messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a message as sent to the server. Only role and content
// cross the wire.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FileRef attaches a previously uploaded file to a request.
type FileRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ChatRequest is the body of POST /api/chat/completions.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Files    []FileRef     `json:"files,omitempty"`
}

// NewChatRequest builds a request, attaching fileID when it is non-empty.
func NewChatRequest(model string, messages []ChatMessage, fileID string) ChatRequest {
	req := ChatRequest{
		Model:    model,
		Messages: messages,
	}
	if fileID != "" {
		req.Files = []FileRef{{Type: "file", ID: fileID}}
	}
	return req
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ChatResult is the outcome of a non-streaming completion.
type ChatResult struct {
	Content      string
	Model        string
	FinishReason string
}

// Model is one entry of the model catalog.
type Model struct {
	ID             string          `json:"id"`
	Name           string          `json:"name,omitempty"`
	SizeParameters string          `json:"size_parameters,omitempty"`
	OwnedBy        string          `json:"owned_by,omitempty"`
	Raw            json.RawMessage `json:"-"`
}

// DisplayName returns the name, falling back to the id.
func (m Model) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// FileInfo is the server's record of an uploaded file.
type FileInfo struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
}
