// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// UNICODE: Width-aware helpers so CJK and emoji content never gets cut
// mid-character or misaligned in column output.

// Truncate shortens s to at most maxWidth display columns, appending "..."
// when anything was removed.
func Truncate(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// PadRight pads s with spaces up to width display columns.
func PadRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// StringWidth returns the number of terminal columns s occupies.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

// Preview collapses all whitespace runs in s to single spaces and truncates
// the result to maxWidth columns.
func Preview(s string, maxWidth int) string {
	return Truncate(strings.Join(strings.Fields(s), " "), maxWidth)
}
