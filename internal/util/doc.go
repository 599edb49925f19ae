// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the webui-chat packages.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file writing with fsync and rename
//   - Truncate: display-width aware truncation with ellipsis
//   - Preview: single-line preview of multi-line message content
//   - PadRight: display-width aware padding for column output
//
// # Usage
//
//	// Write settings atomically so a crash never leaves a partial file
//	err := util.AtomicWriteFile(path, data, 0600)
//
//	// Fit a model name into a 24 column table cell
//	cell := util.PadRight(util.Truncate(name, 24), 24)
package util
