// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - terminal detection for webui-chat.
//
// Interactive terminals get colors and rendered markdown; piped output gets
// plain text so transcripts can be redirected to files.

package cli

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const (
	// DefaultTerminalWidth is used when stdout is not a terminal
	DefaultTerminalWidth = 80

	// MinRenderWidth and MaxRenderWidth bound markdown wrapping
	MinRenderWidth = 40
	MaxRenderWidth = 120

	// renderMargin keeps rendered text off the right edge
	renderMargin = 4
)

// IsTTY reports whether stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY reports whether stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// RenderWidth returns the column markdown output wraps at.
func RenderWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		width = DefaultTerminalWidth
	}
	width -= renderMargin
	switch {
	case width < MinRenderWidth:
		return MinRenderWidth
	case width > MaxRenderWidth:
		return MaxRenderWidth
	}
	return width
}

// ColorProfile returns the profile styles render with. NO_COLOR always
// wins (https://no-color.org/); FORCE_COLOR enables 256 colors even when
// stdout is piped. Otherwise termenv inspects stdout, TERM and CLICOLOR.
func ColorProfile() termenv.Profile {
	switch {
	case os.Getenv("NO_COLOR") != "":
		return termenv.Ascii
	case os.Getenv("FORCE_COLOR") != "":
		return termenv.ANSI256
	}
	return termenv.NewOutput(os.Stdout).EnvColorProfile()
}
