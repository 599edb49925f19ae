// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the command-escape system for the chat REPL.
//
// A line that starts with the command prefix (">" by default) is not sent
// to the server. The session strips the prefix and hands the rest to a
// Dispatcher, which parses it, validates the arguments and runs the
// matching handler.
//
// # Key Types
//
//   - Registry: all commands with aliases and argument definitions
//   - Parser: tokenizes a command line, respecting quotes
//   - Dispatcher: binds a Registry to a Context; implements the session's
//     command handler interface
//   - Completer: tab completion for command names and arguments
//
// # Usage
//
//	registry := commands.NewRegistry(">")
//	dispatcher := registry.Bind(&commands.Context{
//	    Session:  sess,
//	    Catalog:  catalog,
//	    Settings: settings,
//	    Out:      os.Stdout,
//	})
//	sess.SetCommandHandler(dispatcher)
package commands
