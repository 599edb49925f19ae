// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: ordered chat history with identity and title
//   - Message: single message with role, content and display flags
//   - Role: message role enumeration (user, assistant, system)
//
// Display flags (retry prompts, errors, streaming state) never leave the
// process; ToWireMessages strips them before a request is built.
//
// # Usage
//
//	conv := model.NewConversation()
//	conv.AddMessage(model.NewUserMessage("Hello!"))
//	req := openwebui.NewChatRequest("llama3", conv.ToWireMessages(), "")
package model
