// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - shared lipgloss styles for webui-chat output.
//
// Colors are disabled for non-TTY output and when NO_COLOR is set.

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func init() {
	lipgloss.SetColorProfile(ColorProfile())
}

// =============================================================================
// PALETTE
// =============================================================================

var (
	colorCyan    = lipgloss.Color("39")
	colorPurple  = lipgloss.Color("141")
	colorGreen   = lipgloss.Color("42")
	colorRed     = lipgloss.Color("196")
	colorAmber   = lipgloss.Color("214")
	colorGray    = lipgloss.Color("245")
	colorDimGray = lipgloss.Color("242")
)

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for the welcome banner and section headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	// PromptStyle renders the input prompt
	PromptStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	// AssistantStyle labels assistant output
	AssistantStyle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	// LabelStyle is used for field labels in the banner and model list
	LabelStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	// SuccessStyle is used for confirmations
	SuccessStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	// ErrorStyle is used for error messages and failures
	ErrorStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	// WarningStyle is used for warnings and cancelled responses
	WarningStyle = lipgloss.NewStyle().
			Foreground(colorAmber)

	// DimStyle is used for hints and secondary information
	DimStyle = lipgloss.NewStyle().
			Foreground(colorDimGray)
)

// RenderSeparator renders a horizontal rule of the given width.
func RenderSeparator(width int) string {
	if width <= 0 {
		width = 30
	}
	return DimStyle.Render(strings.Repeat("─", width))
}
