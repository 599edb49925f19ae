// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli is the webui-chat front end: argument parsing, the
// interactive chat loop and the one-shot ask and models commands.
//
// # Key Types
//
//   - Args: parsed command-line flags
//   - App: settings, transport, session, storage and commands wired together
//   - ChatCLI: line editing, input history and tab completion
//   - Renderer: markdown rendering for terminal output
//
// # Usage
//
//	os.Exit(cli.Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
//
// Logs go to ~/.webui-chat/webui-chat.log so they never interleave with
// chat output.
package cli
