// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openwebui provides the HTTP client for an Open WebUI compatible
// chat server.
//
// The client lists models, sends chat completions with or without streaming,
// asks the server to stop an in-flight generation and uploads files for use
// as attachments.
//
// # Key Types
//
//   - Client: authenticated access to the server endpoints
//   - Stream: one in-flight streaming completion with abort support
//   - APIError: classified transport, status and decode failures
//
// # Usage
//
//	client := openwebui.NewClient(&openwebui.ClientConfig{
//	    BaseURL: "http://localhost:3000",
//	    APIKey:  os.Getenv("WEBUI_CHAT_API_KEY"),
//	})
//	s := client.Stream(ctx, openwebui.NewChatRequest("llama3", msgs, ""))
//	for fragment, err := range s.Fragments() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(fragment)
//	}
package openwebui
