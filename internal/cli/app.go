// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/webui-chat/internal/commands"
	"github.com/jeranaias/webui-chat/internal/config"
	"github.com/jeranaias/webui-chat/internal/openwebui"
	"github.com/jeranaias/webui-chat/internal/session"
	"github.com/jeranaias/webui-chat/internal/storage"
)

// catalogTimeout bounds model list refreshes.
const catalogTimeout = 10 * time.Second

// Options configures an App.
type Options struct {
	Args Args

	// Out receives command output (default: os.Stdout)
	Out io.Writer

	// Logger overrides the log file named in the config
	Logger *slog.Logger
}

// =============================================================================
// APP
// =============================================================================

// App wires settings, transport, session, storage and commands together.
// It implements commands.Settings and commands.Uploader.
type App struct {
	args       Args
	configPath string
	out        io.Writer
	logger     *slog.Logger
	logFile    io.Closer

	mu     sync.RWMutex
	cfg    *config.Config
	client *openwebui.Client

	Session   *session.Session
	Catalog   *session.Catalog
	Store     *storage.Store
	Registry  *commands.Registry
	Completer *commands.Completer

	watcher *config.Watcher
}

// NewApp loads settings and builds every component. Close releases them.
func NewApp(opts Options) (*App, error) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	a := &App{args: opts.Args, out: out}

	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	config.SetGlobal(cfg)

	a.logger = opts.Logger
	if a.logger == nil {
		a.logger, a.logFile, err = openLogger(cfg)
		if err != nil {
			return nil, err
		}
	}

	a.client = a.newClient(cfg)
	a.Catalog = session.NewCatalog(a.client, cfg.FallbackModelIDs(), a.logger)
	a.Session = session.New(a.client, session.Config{
		Model:         cfg.Chat.Model,
		Stream:        cfg.Chat.Stream,
		CommandPrefix: cfg.Chat.CommandPrefix,
		StopTimeout:   cfg.StopTimeout(),
		Logger:        a.logger,
	})

	if cfg.Storage.Enabled {
		a.Store = a.openStore(cfg)
	}

	a.Registry = commands.NewRegistry(cfg.Chat.CommandPrefix)
	dispatcher := a.Registry.Bind(&commands.Context{
		Session:  a.Session,
		Catalog:  a.Catalog,
		Settings: a,
		Store:    a.Store,
		Uploader: a,
		Out:      out,
	})
	a.Session.SetCommandHandler(dispatcher)
	a.Completer = a.newCompleter()

	a.logger.Info("webui-chat started",
		"url", cfg.Server.URL, "key", openwebui.KeyFingerprint(cfg.Server.APIKey),
		"model", cfg.Chat.Model, "stream", cfg.Chat.Stream, "storage", a.Store != nil)
	return a, nil
}

// loadConfig reads the config file and applies command-line overrides.
func (a *App) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.args.ConfigPath != "" {
		a.configPath = a.args.ConfigPath
		cfg, err = config.LoadFromPath(a.configPath)
		if err != nil {
			return nil, &ConfigError{Path: a.configPath, Err: err}
		}
	} else {
		a.configPath, err = config.ConfigPathTOML()
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		cfg, err = config.Load()
		if cfg == nil {
			return nil, &ConfigError{Err: err}
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v; using defaults\n", WarningStyle.Render("[Warning]"), err)
		}
	}

	if err := a.applyOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides layers flags over cfg. Flags win over the file and the
// environment.
func (a *App) applyOverrides(cfg *config.Config) error {
	if a.args.URL != "" {
		cfg.Server.URL = a.args.URL
	}
	if a.args.APIKey != "" {
		cfg.Server.APIKey = a.args.APIKey
	}
	if a.args.Model != "" {
		cfg.Chat.Model = a.args.Model
	}
	if a.args.NoStream {
		cfg.Chat.Stream = false
	}
	if a.args.NoMarkdown {
		cfg.Chat.RenderMarkdown = false
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}

func (a *App) newClient(cfg *config.Config) *openwebui.Client {
	return openwebui.NewClient(&openwebui.ClientConfig{
		BaseURL:     cfg.Server.URL,
		APIKey:      cfg.Server.APIKey,
		Timeout:     cfg.Timeout(),
		StopTimeout: cfg.StopTimeout(),
		Logger:      a.logger,
	})
}

// openStore opens the transcript database. Failure disables storage rather
// than the whole client.
func (a *App) openStore(cfg *config.Config) *storage.Store {
	path, err := config.DataPath(cfg.Storage.Path, "history.db")
	if err == nil {
		var store *storage.Store
		if store, err = storage.Open(path, a.logger); err == nil {
			return store
		}
	}
	a.logger.Warn("transcript storage disabled", "error", err)
	fmt.Fprintf(os.Stderr, "%s history disabled: %v\n", WarningStyle.Render("[Warning]"), err)
	return nil
}

func (a *App) newCompleter() *commands.Completer {
	c := commands.NewCompleter(a.Registry)
	c.ModelsFn = func() []string {
		models := a.Catalog.Models()
		ids := make([]string, len(models))
		for i, m := range models {
			ids[i] = m.ID
		}
		return ids
	}
	c.ConfigFn = config.GetAllKeys
	if a.Store != nil {
		c.SessionsFn = func() []commands.SessionInfo {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			metas, err := a.Store.List(ctx, 50)
			if err != nil {
				return nil
			}
			infos := make([]commands.SessionInfo, len(metas))
			for i, m := range metas {
				infos[i] = commands.SessionInfo{ID: m.ID, Title: m.Title}
			}
			return infos
		}
	}
	return c
}

// =============================================================================
// SETTINGS
// =============================================================================

// Current returns a copy of the effective settings.
func (a *App) Current() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.Clone()
}

// Config returns the effective settings without copying. Callers must not
// modify the result.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Update saves cfg to the config file and applies it.
func (a *App) Update(cfg *config.Config) error {
	var err error
	if strings.HasSuffix(a.configPath, ".json") {
		err = config.SaveJSON(cfg, a.configPath)
	} else {
		err = config.SaveTOML(cfg, a.configPath)
	}
	if err != nil {
		return err
	}
	a.apply(cfg)
	return nil
}

// apply swaps in a new transport and refreshes the model catalog. The
// in-flight exchange keeps the transport it started with.
func (a *App) apply(cfg *config.Config) {
	a.mu.Lock()
	prev := a.cfg
	a.cfg = cfg
	a.client = a.newClient(cfg)
	client := a.client
	a.mu.Unlock()
	config.SetGlobal(cfg)

	a.Session.SetTransport(client)
	a.Catalog.SetLister(client)
	a.Catalog.SetFallback(cfg.FallbackModelIDs())
	if cfg.Chat.Model != prev.Chat.Model && cfg.Chat.Model != "" {
		a.Session.SetModel(cfg.Chat.Model)
	}
	if cfg.Chat.Stream != prev.Chat.Stream {
		a.Session.SetStreaming(cfg.Chat.Stream)
	}
	a.logger.Info("settings applied",
		"url", cfg.Server.URL, "key", openwebui.KeyFingerprint(cfg.Server.APIKey))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), catalogTimeout)
		defer cancel()
		if _, err := a.Catalog.Load(ctx); err != nil {
			a.logger.Warn("model refresh after settings change failed", "error", err)
		}
	}()
}

// WatchConfig reloads settings when the config file changes on disk.
func (a *App) WatchConfig() error {
	w, err := config.NewWatcher(a.configPath, config.DefaultDebounce, a.onConfigChange, a.logger)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		w.Close()
		return err
	}
	a.watcher = w
	return nil
}

func (a *App) onConfigChange(cfg *config.Config) {
	if err := a.applyOverrides(cfg); err != nil {
		a.logger.Warn("ignoring config change", "error", err)
		return
	}
	a.apply(cfg)
}

// =============================================================================
// UPLOADS AND MODELS
// =============================================================================

// UploadFile uploads through the current client.
func (a *App) UploadFile(ctx context.Context, path string) (*openwebui.FileInfo, error) {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()
	return client.UploadFile(ctx, path)
}

// LoadModels fills the catalog and picks the first model when none is
// configured. The returned error is the listing failure, if any; the
// catalog then holds the fallback models.
func (a *App) LoadModels(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, catalogTimeout)
	defer cancel()
	_, err := a.Catalog.Load(ctx)
	if a.Session.Model() == "" {
		if id := a.Catalog.Default(); id != "" {
			a.Session.SetModel(id)
		}
	}
	return err
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Close stops the watcher and closes storage and the log file.
func (a *App) Close() error {
	if a.watcher != nil {
		a.watcher.Close()
	}
	var err error
	if a.Store != nil {
		err = a.Store.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}

// openLogger opens the log file named in cfg. Logs never go to the
// terminal, where they would interleave with responses.
func openLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	path, err := config.DataPath(cfg.Log.Path, "webui-chat.log")
	if err != nil {
		return nil, nil, &ConfigError{Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)})
	return slog.New(handler), f, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
