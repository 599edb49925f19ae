// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists chat transcripts in a local SQLite database.
//
// # Key Types
//
//   - Store: SQLite-backed transcript store
//   - model.ConversationMeta: lightweight metadata for listing
//
// # Usage
//
//	store, err := storage.Open(path, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.Save(ctx, conv)
//	metas, err := store.List(ctx, 20)
//	conv, err := store.Load(ctx, metas[0].ID)
//
// Conversations may be loaded by a unique ID prefix, which is what the
// history listing shows.
//
// # Storage Location
//
// Transcripts are stored in ~/.webui-chat/history.db unless storage.path
// is configured.
package storage
