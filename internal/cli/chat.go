// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - interactive chat for webui-chat.
//
// Command: chat (default)
//
// Examples:
//   webui-chat                          Chat with the configured model
//   webui-chat --model llama3           Use a specific model
//   webui-chat --url http://ai.lan:3000 Talk to another server
//
// Keys (during chat):
//   Ctrl+C              Stop the response being generated
//   Ctrl+D              Exit chat
//   Tab                 Complete commands and arguments
//   Up/Down             Input history

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/webui-chat/internal/commands"
	"github.com/jeranaias/webui-chat/internal/config"
	"github.com/jeranaias/webui-chat/internal/model"
	"github.com/jeranaias/webui-chat/internal/openwebui"
	"github.com/jeranaias/webui-chat/internal/session"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history, line editing and tab completion.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor. complete may be nil.
func NewChatCLI(complete func(string) []string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	if complete != nil {
		line.SetCompleter(complete)
	}

	historyFile, err := config.DataPath("", "chat_history")
	if err != nil {
		historyFile = ""
	}

	cli := &ChatCLI{
		line:        line,
		historyFile: historyFile,
	}
	cli.LoadHistory()
	return cli
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if c.historyFile == "" {
		return
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput shows prompt and returns the entered line.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	return c.line.Prompt(prompt)
}

// AppendHistory records a line for Up/Down navigation.
func (c *ChatCLI) AppendHistory(input string) {
	c.line.AppendHistory(input)
}

// SaveHistory writes input history with 0600 permissions; it can hold
// pasted secrets.
func (c *ChatCLI) SaveHistory() {
	if c.historyFile == "" {
		return
	}
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
		c.line.WriteHistory(f)
		f.Close()
	}
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// RESPONSE PRINTER
// =============================================================================

// printer shows exchange events. With markdown rendering on, fragments are
// collected and the completed response is rendered once; otherwise they are
// written as they arrive.
type printer struct {
	out      io.Writer
	renderer *Renderer

	mu       sync.Mutex
	streamed bool
	notified bool
}

func newPrinter(out io.Writer, renderer *Renderer) *printer {
	return &printer{out: out, renderer: renderer}
}

// reset prepares for the next exchange.
func (p *printer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamed = false
	p.notified = false
}

func (p *printer) OnFragment(msg model.Message, delta string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.renderer.Enabled() {
		if !p.notified {
			p.notified = true
			fmt.Fprintln(p.out, DimStyle.Render("generating... (Ctrl+C to stop)"))
		}
		return
	}
	p.streamed = true
	io.WriteString(p.out, delta)
}

func (p *printer) OnComplete(msg model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamed {
		fmt.Fprint(p.out, "\n\n")
		return
	}
	fmt.Fprint(p.out, p.renderer.Render(msg.Content))
	fmt.Fprintln(p.out)
}

func (p *printer) OnError(msg model.Message, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamed {
		fmt.Fprintln(p.out)
	}
	DisplayError(p.out, err)
	fmt.Fprintln(p.out)
}

func (p *printer) OnAbort(msg model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.streamed {
		fmt.Fprintln(p.out)
	} else if p.renderer.Enabled() && msg.Content != session.CancelledNotice {
		fmt.Fprint(p.out, p.renderer.Render(msg.Content))
	}
	fmt.Fprintln(p.out, WarningStyle.Render("[Cancelled]"))
	fmt.Fprintln(p.out)
}

// =============================================================================
// CHAT LOOP
// =============================================================================

// RunChat runs the interactive chat until the user quits.
func RunChat(ctx context.Context, app *App, args Args) error {
	cfg := app.Config()
	out := app.out

	if err := app.LoadModels(ctx); err != nil && !args.Quiet {
		fmt.Fprintf(out, "%s could not fetch models: %s\n",
			WarningStyle.Render("[Warning]"), openwebui.DescribeError(err))
		if hint := errorHint(err); hint != "" {
			fmt.Fprintln(out, DimStyle.Render(hint))
		}
	}
	if err := app.WatchConfig(); err != nil {
		app.logger.Warn("config watcher unavailable", "error", err)
	}

	if !args.Quiet {
		printWelcome(out, app, cfg)
	}

	p := newPrinter(out, NewRenderer(cfg.Chat.RenderMarkdown))
	app.Session.SetListener(p)

	// Ctrl+C outside the prompt stops the response; at the prompt liner
	// reports it as ErrPromptAborted.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			app.Session.Abort()
		}
	}()

	input := NewChatCLI(app.Completer.CompleteLine)
	defer input.Close()

	prompt := PromptStyle.Render("you> ")
	for {
		line, err := input.ReadInput(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(out, DimStyle.Render("(Ctrl+D or "+cfg.Chat.CommandPrefix+"quit to exit)"))
				continue
			}
			// EOF (Ctrl+D) or a closed terminal
			fmt.Fprintln(out)
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		input.AppendHistory(line)

		p.reset()
		err = app.Session.Send(ctx, line)
		if errors.Is(err, commands.ErrQuit) {
			break
		}
		if err != nil {
			DisplayError(out, err)
			continue
		}

		// Covers both messages and commands that start an exchange (retry).
		if err := app.Session.Wait(ctx); err != nil {
			return err
		}
		autoSave(ctx, app)
	}

	autoSave(ctx, app)
	fmt.Fprintln(out, DimStyle.Render("Goodbye!"))
	return nil
}

// autoSave stores the conversation after an exchange when enabled.
func autoSave(ctx context.Context, app *App) {
	if app.Store == nil || !app.Config().Storage.AutoSave || !app.Session.Dirty() {
		return
	}
	conv := app.Session.Conversation()
	if conv.IsEmpty() {
		return
	}
	saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := app.Store.Save(saveCtx, conv); err != nil {
		app.logger.Warn("autosave failed", "conversation", conv.ID, "error", err)
		return
	}
	app.Session.MarkSaved()
}

// printWelcome prints the welcome banner.
func printWelcome(out io.Writer, app *App, cfg *config.Config) {
	modelName := WarningStyle.Render("(none, use " + cfg.Chat.CommandPrefix + "model <id>)")
	if id := app.Session.Model(); id != "" {
		modelName = AssistantStyle.Render(id)
	}
	models := WarningStyle.Render("fallback list")
	if app.Catalog.Err() == nil {
		models = SuccessStyle.Render(fmt.Sprintf("%d available", len(app.Catalog.Models())))
	}
	key := "not set"
	if cfg.Server.APIKey != "" {
		key = "set (" + openwebui.KeyFingerprint(cfg.Server.APIKey) + ")"
	}
	stream := "on"
	if !app.Session.Streaming() {
		stream = "off"
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, TitleStyle.Render("webui-chat"))
	fmt.Fprintln(out, RenderSeparator(30))
	fmt.Fprintf(out, "%s %s\n", LabelStyle.Render("Server:"), cfg.Server.URL)
	fmt.Fprintf(out, "%s %s\n", LabelStyle.Render("API key:"), key)
	fmt.Fprintf(out, "%s %s\n", LabelStyle.Render("Model:"), modelName)
	fmt.Fprintf(out, "%s %s\n", LabelStyle.Render("Models:"), models)
	fmt.Fprintf(out, "%s %s\n", LabelStyle.Render("Streaming:"), stream)
	fmt.Fprintln(out)
	fmt.Fprintln(out, DimStyle.Render(fmt.Sprintf("Type a message and press Enter. %shelp lists commands.", cfg.Chat.CommandPrefix)))
	fmt.Fprintln(out)
}
