// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jeranaias/webui-chat/internal/config"
	"github.com/jeranaias/webui-chat/internal/model"
	"github.com/jeranaias/webui-chat/internal/openwebui"
	"github.com/jeranaias/webui-chat/internal/storage"
	"github.com/jeranaias/webui-chat/internal/util"
)

// previewWidth bounds transcript lines printed by load.
const previewWidth = 72

// =============================================================================
// GENERAL
// =============================================================================

// HandleHelp shows all commands, or details for one.
func HandleHelp(ctx context.Context, env *Context, args []string) error {
	topic := ""
	if len(args) > 0 {
		topic = args[0]
	}
	env.printf("%s", GenerateHelpText(env.registry, topic))
	return nil
}

// HandleQuit asks the REPL to exit.
func HandleQuit(ctx context.Context, env *Context, args []string) error {
	return ErrQuit
}

// HandleSettings shows, reads or changes settings.
func HandleSettings(ctx context.Context, env *Context, args []string) error {
	if env.Settings == nil {
		return errors.New("settings are not available")
	}
	cfg := env.Settings.Current()

	if len(args) == 0 {
		for _, key := range config.GetAllKeys() {
			env.printf("  %s = %s\n", util.PadRight(key, 24), settingValue(cfg, key))
		}
		return nil
	}

	switch strings.ToLower(args[0]) {
	case "keys":
		env.println(strings.Join(config.GetAllKeys(), "\n"))
		return nil

	case "get":
		if len(args) < 2 {
			return &ValidationError{Command: "settings", Arg: "key", Message: "required argument missing"}
		}
		if _, err := cfg.Get(args[1]); err != nil {
			return err
		}
		env.println(settingValue(cfg, args[1]))
		return nil

	case "set":
		if len(args) < 3 {
			return &ValidationError{Command: "settings", Message: "usage: settings set <key> <value>"}
		}
		key, value := args[1], strings.Join(args[2:], " ")
		next := cfg.Clone()
		if err := next.Set(key, value); err != nil {
			return err
		}
		next.SetDefaults()
		if err := next.Validate(); err != nil {
			return err
		}
		if err := env.Settings.Update(next); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		env.printf("Saved %s = %s\n", key, settingValue(next, key))
		return nil
	}
	return nil
}

// settingValue formats a setting for display with the API key hidden.
func settingValue(cfg *config.Config, key string) string {
	v, err := cfg.Get(key)
	if err != nil {
		return "?"
	}
	if strings.EqualFold(key, "server.api_key") {
		if s, _ := v.(string); s != "" {
			return "(set, " + openwebui.KeyFingerprint(s) + ")"
		}
		return "(not set)"
	}
	if list, ok := v.([]string); ok {
		return strings.Join(list, ", ")
	}
	return fmt.Sprint(v)
}

// =============================================================================
// CONVERSATION
// =============================================================================

// HandleClear empties the conversation.
func HandleClear(ctx context.Context, env *Context, args []string) error {
	if err := env.Session.Clear(); err != nil {
		return err
	}
	env.println("Conversation cleared.")
	return nil
}

// HandleStop aborts the response in progress.
func HandleStop(ctx context.Context, env *Context, args []string) error {
	if !env.Session.Abort() {
		env.println("Nothing to stop.")
	}
	return nil
}

// HandleRetry regenerates the nth response, or the last one.
func HandleRetry(ctx context.Context, env *Context, args []string) error {
	index := env.Session.LastAssistantIndex()
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return &ValidationError{Command: "retry", Arg: "n", Message: "invalid value", Got: args[0], Expected: "a response number from 1"}
		}
		index = assistantIndex(env.Session.Messages(), n)
		if index < 0 {
			return fmt.Errorf("there is no response %d", n)
		}
	}
	if index < 0 {
		env.println("Nothing to retry yet.")
		return nil
	}
	return env.Session.Retry(ctx, index)
}

// assistantIndex returns the conversation index of the nth assistant
// message, or -1.
func assistantIndex(msgs []model.Message, n int) int {
	for i := range msgs {
		if msgs[i].IsAssistant() && !msgs[i].IsStreaming {
			n--
			if n == 0 {
				return i
			}
		}
	}
	return -1
}

// HandleAttach uploads a file for the next message.
func HandleAttach(ctx context.Context, env *Context, args []string) error {
	if env.Uploader == nil {
		return ErrUploadUnavailable
	}
	path, err := expandPath(args[0])
	if err != nil {
		return err
	}
	info, err := env.Uploader.UploadFile(ctx, path)
	if err != nil {
		return fmt.Errorf("upload failed: %s", openwebui.DescribeError(err))
	}
	env.Session.AttachFile(info.ID)
	name := info.Filename
	if name == "" {
		name = filepath.Base(path)
	}
	env.printf("Attached %s; it will be sent with your next message.\n", name)
	return nil
}

// HandleDetach drops the pending attachment.
func HandleDetach(ctx context.Context, env *Context, args []string) error {
	if env.Session.AttachedFile() == "" {
		env.println("No file attached.")
		return nil
	}
	env.Session.AttachFile("")
	env.println("Attachment removed.")
	return nil
}

// =============================================================================
// MODEL
// =============================================================================

// HandleModels refreshes and lists the model catalog.
func HandleModels(ctx context.Context, env *Context, args []string) error {
	models, err := env.Catalog.Load(ctx)
	if err != nil {
		env.printf("Could not fetch models: %s\n", openwebui.DescribeError(err))
		if len(models) > 0 {
			env.println("Showing configured fallback models.")
		}
	}
	if len(models) == 0 {
		env.println("No models available.")
		return nil
	}

	current := env.Session.Model()
	for _, m := range models {
		marker := "  "
		if m.ID == current {
			marker = "* "
		}
		line := marker + m.ID
		if name := m.DisplayName(); name != m.ID {
			line += " (" + name + ")"
		}
		if m.SizeParameters != "" {
			line += " [" + m.SizeParameters + "]"
		}
		env.println(line)
	}
	return nil
}

// HandleModel shows or switches the current model.
func HandleModel(ctx context.Context, env *Context, args []string) error {
	if len(args) == 0 {
		if current := env.Session.Model(); current != "" {
			env.printf("Current model: %s\n", current)
		} else {
			env.printf("No model selected. Use %smodels to list them.\n", env.registry.Prefix())
		}
		return nil
	}

	id := args[0]
	if len(env.Catalog.Models()) > 0 && !env.Catalog.Contains(id) {
		if env.Catalog.Err() == nil {
			return fmt.Errorf("unknown model %q; use %smodels to list them", id, env.registry.Prefix())
		}
		env.printf("Model list unavailable, using %s unchecked\n", id)
	}
	env.Session.SetModel(id)
	env.printf("Switched to %s\n", id)
	return nil
}

// HandleStream shows or toggles streaming.
func HandleStream(ctx context.Context, env *Context, args []string) error {
	if len(args) > 0 {
		env.Session.SetStreaming(strings.EqualFold(args[0], "on"))
	}
	state := "off"
	if env.Session.Streaming() {
		state = "on"
	}
	env.printf("Streaming is %s.\n", state)
	return nil
}

// =============================================================================
// HISTORY
// =============================================================================

// HandleSave stores the conversation.
func HandleSave(ctx context.Context, env *Context, args []string) error {
	if env.Store == nil {
		return ErrStorageDisabled
	}
	conv := env.Session.Conversation()
	if conv.IsEmpty() {
		env.println("Nothing to save.")
		return nil
	}
	if err := env.Store.Save(ctx, conv); err != nil {
		return err
	}
	env.Session.MarkSaved()
	env.printf("Saved conversation %s.\n", shortID(conv.ID))
	return nil
}

// HandleHistory lists or searches stored conversations.
func HandleHistory(ctx context.Context, env *Context, args []string) error {
	if env.Store == nil {
		return ErrStorageDisabled
	}
	var (
		metas []model.ConversationMeta
		err   error
	)
	if len(args) > 0 {
		metas, err = env.Store.Search(ctx, strings.Join(args, " "))
	} else {
		metas, err = env.Store.List(ctx, 20)
	}
	if err != nil {
		return err
	}
	env.printf("%s", storage.FormatList(metas))
	if len(metas) > 0 {
		env.printf("\nUse %sload <id> to resume one.\n", env.registry.Prefix())
	}
	return nil
}

// HandleLoad replaces the conversation with a stored one.
func HandleLoad(ctx context.Context, env *Context, args []string) error {
	if env.Store == nil {
		return ErrStorageDisabled
	}
	conv, err := env.Store.Load(ctx, args[0])
	if err != nil {
		return err
	}
	if err := env.Session.Load(conv); err != nil {
		return err
	}

	env.printf("Loaded %q (%d messages, model %s)\n\n", conv.Title, conv.Len(), env.Session.Model())
	for _, msg := range conv.Messages {
		label := "you"
		switch {
		case msg.IsError:
			label = "error"
		case msg.IsRetryPrompt:
			label = "retry"
		case msg.IsCancelled():
			label = "cancelled"
		case msg.IsAssistant():
			label = "assistant"
		case msg.Role == model.RoleSystem:
			label = "system"
		}
		env.printf("%s %s\n", util.PadRight(label+":", 10), msg.Preview(previewWidth))
	}
	return nil
}

// HandleDelete removes a stored conversation.
func HandleDelete(ctx context.Context, env *Context, args []string) error {
	if env.Store == nil {
		return ErrStorageDisabled
	}
	if err := env.Store.Delete(ctx, args[0]); err != nil {
		return err
	}
	env.println("Conversation deleted.")
	return nil
}

// HandleExport writes the conversation as Markdown.
func HandleExport(ctx context.Context, env *Context, args []string) error {
	path, err := expandPath(args[0])
	if err != nil {
		return err
	}
	conv := env.Session.Conversation()
	if err := util.AtomicWriteFile(path, []byte(storage.ExportMarkdown(conv)), 0644); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	env.printf("Exported %d messages to %s\n", conv.Len(), path)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func shortID(id string) string {
	if len(id) > storage.ShortIDLength {
		return id[:storage.ShortIDLength]
	}
	return id
}

// expandPath resolves a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
