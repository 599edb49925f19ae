// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - one-shot questions and model listing.
//
// Command: ask
// Short:   Ask one question and print the answer
//
// Examples:
//   webui-chat ask "What is server-sent events?"
//   git diff | webui-chat ask -       Read the question from stdin
//   webui-chat ask --no-stream --model llama3 "Summarize RFC 6455"
//
// Command: models
// Short:   List the models the server offers

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/jeranaias/webui-chat/internal/model"
	"github.com/jeranaias/webui-chat/internal/openwebui"
	"github.com/jeranaias/webui-chat/internal/session"
	"github.com/jeranaias/webui-chat/internal/util"
)

// maxStdinQuery caps a question read from stdin (1MB).
const maxStdinQuery = 1 << 20

// =============================================================================
// ASK
// =============================================================================

// askListener prints a single exchange and remembers how it ended.
type askListener struct {
	out      io.Writer
	renderer *Renderer

	mu       sync.Mutex
	streamed bool
	err      error
}

func (l *askListener) OnFragment(msg model.Message, delta string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.renderer.Enabled() {
		return
	}
	l.streamed = true
	io.WriteString(l.out, delta)
}

func (l *askListener) OnComplete(msg model.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.streamed {
		fmt.Fprintln(l.out)
		return
	}
	fmt.Fprint(l.out, l.renderer.Render(msg.Content))
}

func (l *askListener) OnError(msg model.Message, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.streamed {
		fmt.Fprintln(l.out)
	}
	l.err = err
}

func (l *askListener) OnAbort(msg model.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.streamed {
		fmt.Fprintln(l.out)
	}
	l.err = errInterrupted
}

// RunAsk sends one question and prints the answer. An empty query or "-"
// reads the question from in, unless in is a terminal.
func RunAsk(ctx context.Context, app *App, args Args, in io.Reader) error {
	query := strings.TrimSpace(args.Query)
	if query == "" || query == "-" {
		if query == "" && IsTTY() {
			return &UsageError{Reason: "ask needs a question", Example: `webui-chat ask "what is SSE?"`}
		}
		data, err := io.ReadAll(io.LimitReader(in, maxStdinQuery))
		if err != nil {
			return fmt.Errorf("reading question from stdin: %w", err)
		}
		query = strings.TrimSpace(string(data))
	}
	if query == "" {
		return &UsageError{Reason: "ask needs a question", Example: `webui-chat ask "what is SSE?"`}
	}

	cfg := app.Config()
	if strings.HasPrefix(query, cfg.Chat.CommandPrefix) {
		return &UsageError{Reason: fmt.Sprintf("ask does not run %q commands; start a chat instead", cfg.Chat.CommandPrefix)}
	}

	if err := app.LoadModels(ctx); err != nil && app.Session.Model() == "" {
		return err
	}

	l := &askListener{out: app.out, renderer: NewRenderer(cfg.Chat.RenderMarkdown)}
	app.Session.SetListener(l)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			app.Session.Abort()
		}
	}()

	if err := app.Session.Send(ctx, query); err != nil {
		return err
	}
	if err := app.Session.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	autoSave(ctx, app)
	return nil
}

// =============================================================================
// MODELS
// =============================================================================

// RunModels prints the model catalog. When listing fails the configured
// fallback models are shown with a warning.
func RunModels(ctx context.Context, app *App, stderr io.Writer) error {
	err := app.LoadModels(ctx)
	models := app.Catalog.Models()
	if err != nil {
		if len(models) == 0 {
			return err
		}
		fmt.Fprintf(stderr, "%s could not fetch models: %s; showing fallback models\n",
			WarningStyle.Render("[Warning]"), openwebui.DescribeError(err))
	}
	if len(models) == 0 {
		fmt.Fprintln(app.out, "No models available.")
		return nil
	}

	fmt.Fprint(app.out, FormatModels(models, app.Session.Model()))
	return nil
}

// FormatModels renders models as a table. current is marked with "*".
func FormatModels(models []openwebui.Model, current string) string {
	idWidth := len("ID")
	for _, m := range models {
		if w := util.StringWidth(m.ID); w > idWidth {
			idWidth = w
		}
	}
	if idWidth > 48 {
		idWidth = 48
	}

	var sb strings.Builder
	sb.WriteString("  " + util.PadRight("ID", idWidth) + "  " + util.PadRight("SIZE", 8) + "  NAME\n")
	for _, m := range models {
		marker := "  "
		if m.ID == current {
			marker = "* "
		}
		name := ""
		if dn := m.DisplayName(); dn != m.ID {
			name = dn
		}
		line := marker + util.PadRight(util.Truncate(m.ID, idWidth), idWidth) + "  " +
			util.PadRight(m.SizeParameters, 8) + "  " + name
		sb.WriteString(strings.TrimRight(line, " ") + "\n")
	}
	return sb.String()
}

var (
	_ session.Listener = (*askListener)(nil)
	_ session.Listener = (*printer)(nil)
)
