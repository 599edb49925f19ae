// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/webui-chat/internal/config"
	"github.com/jeranaias/webui-chat/internal/openwebui"
	"github.com/jeranaias/webui-chat/internal/session"
)

// =============================================================================
// ARG PARSER TESTS (args.go)
// =============================================================================

func TestArgParser_BasicParsing(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantSub  string
		validate func(*testing.T, *ArgParser)
	}{
		{
			name:    "simple subcommand",
			args:    []string{"models"},
			wantSub: "models",
		},
		{
			name:    "subcommand with flag",
			args:    []string{"ask", "--model", "llama3", "hi"},
			wantSub: "ask",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("model") != "llama3" {
					t.Errorf("Flag(model) = %q, want %q", p.Flag("model"), "llama3")
				}
				if p.Positional(1) != "hi" {
					t.Errorf("Positional(1) = %q, want %q", p.Positional(1), "hi")
				}
			},
		},
		{
			name:    "flag with equals",
			args:    []string{"--url=http://h:3000", "chat"},
			wantSub: "chat",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("url") != "http://h:3000" {
					t.Errorf("Flag(url) = %q", p.Flag("url"))
				}
			},
		},
		{
			name:    "declared boolean does not eat positional",
			args:    []string{"ask", "--no-stream", "question"},
			wantSub: "ask",
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("no-stream") {
					t.Error("BoolFlag(no-stream) should be true")
				}
				if got := p.PositionalFrom(1); len(got) != 1 || got[0] != "question" {
					t.Errorf("PositionalFrom(1) = %v", got)
				}
			},
		},
		{
			name:    "explicit false",
			args:    []string{"--no-stream=false"},
			wantSub: "",
			validate: func(t *testing.T, p *ArgParser) {
				if p.BoolFlag("no-stream") {
					t.Error("BoolFlag(no-stream) should be false")
				}
				if !p.HasFlag("no-stream") {
					t.Error("HasFlag(no-stream) should be true")
				}
			},
		},
		{
			name:    "double dash ends flags",
			args:    []string{"ask", "--", "--not-a-flag"},
			wantSub: "ask",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Positional(1) != "--not-a-flag" {
					t.Errorf("Positional(1) = %q", p.Positional(1))
				}
			},
		},
		{
			name:    "short alias lookup",
			args:    []string{"-m", "qwen"},
			wantSub: "",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("model", "m") != "qwen" {
					t.Errorf("Flag(model, m) = %q", p.Flag("model", "m"))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewArgParser(tt.args, boolFlagNames...)
			if p.Subcommand() != tt.wantSub {
				t.Errorf("Subcommand() = %q, want %q", p.Subcommand(), tt.wantSub)
			}
			if tt.validate != nil {
				tt.validate(t, p)
			}
		})
	}
}

func TestParseBoolString(t *testing.T) {
	for _, s := range []string{"true", "YES", "y", "1", "on"} {
		if v, err := ParseBoolString(s); err != nil || !v {
			t.Errorf("ParseBoolString(%q) = %v, %v", s, v, err)
		}
	}
	for _, s := range []string{"false", "No", "n", "0", "off"} {
		if v, err := ParseBoolString(s); err != nil || v {
			t.Errorf("ParseBoolString(%q) = %v, %v", s, v, err)
		}
	}
	if _, err := ParseBoolString("maybe"); err == nil {
		t.Error("ParseBoolString(maybe) should fail")
	}
}

// =============================================================================
// PARSE TESTS (cli.go)
// =============================================================================

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		wantCmd Command
		wantErr bool
		check   func(*testing.T, Args)
	}{
		{name: "no args starts chat", argv: nil, wantCmd: CmdChat},
		{name: "explicit chat", argv: []string{"chat", "-q"}, wantCmd: CmdChat,
			check: func(t *testing.T, a Args) {
				if !a.Quiet {
					t.Error("Quiet should be set")
				}
			}},
		{name: "ask joins words", argv: []string{"ask", "what", "is", "SSE?"}, wantCmd: CmdAsk,
			check: func(t *testing.T, a Args) {
				if a.Query != "what is SSE?" {
					t.Errorf("Query = %q", a.Query)
				}
			}},
		{name: "ask with flags", argv: []string{"ask", "--no-stream", "-m", "llama3", "--url", "http://h:1", "hi"}, wantCmd: CmdAsk,
			check: func(t *testing.T, a Args) {
				if !a.NoStream || a.Model != "llama3" || a.URL != "http://h:1" || a.Query != "hi" {
					t.Errorf("Args = %+v", a)
				}
			}},
		{name: "config and key", argv: []string{"--config=/tmp/c.toml", "--api-key", "sk-1", "models"}, wantCmd: CmdModels,
			check: func(t *testing.T, a Args) {
				if a.ConfigPath != "/tmp/c.toml" || a.APIKey != "sk-1" {
					t.Errorf("Args = %+v", a)
				}
			}},
		{name: "help flag wins", argv: []string{"ask", "--help"}, wantCmd: CmdHelp},
		{name: "version flag", argv: []string{"-v"}, wantCmd: CmdVersion},
		{name: "version command", argv: []string{"version"}, wantCmd: CmdVersion},
		{name: "unknown flag", argv: []string{"--bogus"}, wantErr: true},
		{name: "missing value", argv: []string{"--model"}, wantErr: true},
		{name: "bool with value", argv: []string{"--quiet=maybe"}, wantErr: true},
		{name: "unknown command", argv: []string{"frobnicate"}, wantErr: true},
		{name: "chat takes no arguments", argv: []string{"chat", "extra"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, err := Parse(tt.argv)
			if tt.wantErr {
				var usageErr *UsageError
				if !errors.As(err, &usageErr) {
					t.Fatalf("Parse(%v) error = %v, want UsageError", tt.argv, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%v) error = %v", tt.argv, err)
			}
			if cmd != tt.wantCmd {
				t.Errorf("Parse(%v) command = %v, want %v", tt.argv, cmd, tt.wantCmd)
			}
			if tt.check != nil {
				tt.check(t, args)
			}
		})
	}
}

// =============================================================================
// ERROR TESTS (errors.go)
// =============================================================================

func TestGetExitCode(t *testing.T) {
	unauthorized := &openwebui.APIError{Kind: openwebui.KindHTTPStatus, StatusCode: 401, Message: "denied"}
	network := &openwebui.APIError{Kind: openwebui.KindNetwork, Message: "connection refused"}
	timeout := &openwebui.APIError{Kind: openwebui.KindNetwork, Message: "timed out", Cause: context.DeadlineExceeded}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", &UsageError{Reason: "x"}, ExitUsageError},
		{"config", &ConfigError{Err: errors.New("bad")}, ExitConfigError},
		{"validation", config.ValidateErrors{{Field: "server.url", Message: "bad"}}, ExitConfigError},
		{"unauthorized", fmt.Errorf("listing: %w", unauthorized), ExitAuthError},
		{"no model", session.ErrNoModel, ExitNotFoundError},
		{"network", network, ExitNetworkError},
		{"timeout", timeout, ExitTimeoutError},
		{"interrupted", errInterrupted, ExitInterrupted},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestDisplayError_HintsForAuth(t *testing.T) {
	var sb strings.Builder
	DisplayError(&sb, &openwebui.APIError{Kind: openwebui.KindHTTPStatus, StatusCode: 401, Message: "Authentication failed."})
	out := sb.String()
	if !strings.Contains(out, "Authentication failed. (HTTP 401)") {
		t.Errorf("missing description: %q", out)
	}
	if !strings.Contains(out, "server.api_key") {
		t.Errorf("missing hint: %q", out)
	}
}

// =============================================================================
// RENDER TESTS (render.go, ask.go)
// =============================================================================

func TestRenderer_DisabledPassesThrough(t *testing.T) {
	r := &Renderer{}
	if r.Enabled() {
		t.Fatal("zero Renderer should be disabled")
	}
	if got := r.Render("**bold**"); got != "**bold**\n" {
		t.Errorf("Render = %q", got)
	}
	if got := r.Render("line\n"); got != "line\n" {
		t.Errorf("Render should not double the newline: %q", got)
	}
}

func TestRenderer_RendersMarkdown(t *testing.T) {
	r := newRenderer(glamour.WithStandardStyle("dark"), 80)
	if !r.Enabled() {
		t.Fatal("renderer should be enabled")
	}
	got := r.Render("some **bold** text")
	if strings.Contains(got, "**") {
		t.Errorf("markdown markers left in output: %q", got)
	}
	if !strings.Contains(got, "bold") {
		t.Errorf("text missing from output: %q", got)
	}
}

func TestFormatModels(t *testing.T) {
	models := []openwebui.Model{
		{ID: "llama3", Name: "Llama 3", SizeParameters: "8B"},
		{ID: "mistral"},
	}
	got := FormatModels(models, "mistral")
	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), got)
	}
	if !strings.HasPrefix(lines[0], "  ID") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "  llama3") || !strings.Contains(lines[1], "8B") || !strings.HasSuffix(lines[1], "Llama 3") {
		t.Errorf("llama3 row = %q", lines[1])
	}
	if lines[2] != "* mistral" {
		t.Errorf("current row = %q", lines[2])
	}
}
