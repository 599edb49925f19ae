// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Renderer turns completed markdown responses into terminal output.
// A disabled Renderer passes text through.
type Renderer struct {
	tr *glamour.TermRenderer
}

// NewRenderer returns a markdown renderer when enabled and stdout is a
// terminal, and a pass-through renderer otherwise.
func NewRenderer(enabled bool) *Renderer {
	if !enabled || !IsStdoutTTY() {
		return &Renderer{}
	}
	return newRenderer(glamour.WithAutoStyle(), RenderWidth())
}

func newRenderer(style glamour.TermRendererOption, width int) *Renderer {
	tr, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		// Fall back to plain text if the renderer cannot be built
		return &Renderer{}
	}
	return &Renderer{tr: tr}
}

// Enabled reports whether markdown is rendered.
func (r *Renderer) Enabled() bool {
	return r != nil && r.tr != nil
}

// Render renders content, returning it unchanged when rendering is off or
// fails. The result always ends in a newline.
func (r *Renderer) Render(content string) string {
	out := content
	if r.Enabled() {
		if rendered, err := r.tr.Render(content); err == nil {
			out = rendered
		}
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return out
}
