// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns a chat conversation and drives its exchanges with the
// server.
//
// A Session keeps the message history, runs at most one exchange at a time
// (Idle, Sending, Streaming, then Completed, Errored or Aborted), turns
// streamed fragments into a growing assistant message, and implements the
// regenerate flow that resends history with a synthetic retry prompt.
//
// # Key Types
//
//   - Session: conversation state and the exchange state machine
//   - Listener: receives fragment, completion, error and abort events
//   - Catalog: model list with a configured fallback
//   - RetryContext: the resolved target of a regenerate request
//
// # Usage
//
//	s := session.New(client, session.Config{Model: "llama3", Stream: true})
//	s.SetListener(session.ListenerFuncs{
//	    Fragment: func(m model.Message, delta string) { fmt.Print(delta) },
//	})
//	if err := s.Send(ctx, "Hello"); err != nil {
//	    return err
//	}
//	s.Wait(ctx)
//
// Listener methods run on the exchange goroutine and must not call Abort.
package session
