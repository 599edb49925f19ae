// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the config directory at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)
	for _, key := range []string{"WEBUI_CHAT_URL", "WEBUI_CHAT_API_KEY", "WEBUI_CHAT_MODEL", "WEBUI_CHAT_STREAM"} {
		t.Setenv(key, "")
	}
	return dir
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Chat.Stream)
	assert.Equal(t, ">", cfg.Chat.CommandPrefix)
	assert.Equal(t, time.Second, cfg.StopTimeout())
	assert.Equal(t, 120*time.Second, cfg.Timeout())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Server.URL, cfg.Server.URL)
}

func TestLoad_TOMLOverDefaults(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
url = "https://chat.example.com/"
api_key = "sk-test"

[chat]
model = "llama3"
fallback_models = ["llama3", "mistral"]
`), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com", cfg.Server.URL)
	assert.Equal(t, "sk-test", cfg.Server.APIKey)
	assert.Equal(t, "llama3", cfg.Chat.Model)
	assert.Equal(t, []string{"llama3", "mistral"}, cfg.Chat.FallbackModels)
	assert.True(t, cfg.Chat.Stream, "unset keys keep defaults")
	assert.Equal(t, 1000, cfg.Server.StopTimeoutMs)

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestLoad_JSONFallback(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"server":{"url":"http://10.0.0.5:8080"},"chat":{"stream":false}}`), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8080", cfg.Server.URL)
	assert.False(t, cfg.Chat.Stream)
}

func TestLoad_InvalidFileReturnsDefaultsAndError(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[server\nurl="), 0600))

	cfg, err := Load()
	assert.Error(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, Default().Server.URL, cfg.Server.URL)
}

func TestApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("WEBUI_CHAT_URL", "https://override.example.com")
	t.Setenv("WEBUI_CHAT_API_KEY", "Bearer sk-env")
	t.Setenv("WEBUI_CHAT_MODEL", "qwen")
	t.Setenv("WEBUI_CHAT_STREAM", "off")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://override.example.com", cfg.Server.URL)
	assert.Equal(t, "Bearer sk-env", cfg.Server.APIKey)
	assert.Equal(t, "qwen", cfg.Chat.Model)
	assert.False(t, cfg.Chat.Stream)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad scheme", func(c *Config) { c.Server.URL = "ftp://host" }, "server.url"},
		{"no host", func(c *Config) { c.Server.URL = "http://" }, "server.url"},
		{"zero timeout", func(c *Config) { c.Server.TimeoutSecs = 0 }, "server.timeout_secs"},
		{"huge stop timeout", func(c *Config) { c.Server.StopTimeoutMs = 120000 }, "server.stop_timeout_ms"},
		{"prefix with space", func(c *Config) { c.Chat.CommandPrefix = "> " }, "chat.command_prefix"},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verrs ValidateErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("server.url", "https://x.example.com"))
	require.NoError(t, cfg.Set("server.api_key", "sk-1"))
	require.NoError(t, cfg.Set("chat.stream", "no"))
	require.NoError(t, cfg.Set("server.stop_timeout_ms", "500"))
	require.NoError(t, cfg.Set("chat.fallback_models", "a, b,,c"))

	assert.Equal(t, "https://x.example.com", cfg.Server.URL)
	assert.Equal(t, "sk-1", cfg.Server.APIKey)
	assert.False(t, cfg.Chat.Stream)
	assert.Equal(t, 500*time.Millisecond, cfg.StopTimeout())
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Chat.FallbackModels)

	v, err := cfg.Get("chat.command_prefix")
	require.NoError(t, err)
	assert.Equal(t, ">", v)

	assert.Error(t, cfg.Set("chat.stream", "maybe"))
	assert.Error(t, cfg.Set("server.timeout_secs", "soon"))
	assert.Error(t, cfg.Set("nope.key", "x"))
	assert.Error(t, cfg.Set("server", "x"))
	assert.Error(t, cfg.Set("", "x"))
	_, err = cfg.Get("chat.model.extra")
	assert.Error(t, err)
}

func TestGetAllKeysResolve(t *testing.T) {
	cfg := Default()
	keys := GetAllKeys()
	assert.Contains(t, keys, "server.api_key")
	assert.Contains(t, keys, "chat.command_prefix")
	for _, key := range keys {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)
	cfg := Default()
	cfg.Server.APIKey = "sk-secret"
	cfg.Chat.Model = "llama3"
	cfg.Chat.Stream = false
	require.NoError(t, Save(cfg))

	path, err := ConfigPathTOML()
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", loaded.Server.APIKey)
	assert.Equal(t, "llama3", loaded.Chat.Model)
	assert.False(t, loaded.Chat.Stream)

	jsonPath := filepath.Join(filepath.Dir(path), "config.json")
	require.NoError(t, SaveJSON(cfg, jsonPath))
	loaded, err = LoadFromPath(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "llama3", loaded.Chat.Model)
}

func TestStringRedactsKey(t *testing.T) {
	cfg := Default()
	cfg.Server.APIKey = "sk-very-secret"
	s := cfg.String()
	assert.NotContains(t, s, "sk-very-secret")
	assert.Contains(t, s, "[REDACTED]")
	assert.Equal(t, "sk-very-secret", cfg.Server.APIKey)
}

func TestFallbackModelIDs(t *testing.T) {
	tests := []struct {
		name     string
		model    string
		fallback []string
		want     []string
	}{
		{"defaults", "", nil, []string{}},
		{"configured model only", "llama3", nil, []string{"llama3"}},
		{"model leads", "mistral", []string{"llama3", "mistral", " ", "qwen"}, []string{"mistral", "llama3", "qwen"}},
		{"no model", "", []string{"a", "a"}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Chat.Model = tt.model
			cfg.Chat.FallbackModels = tt.fallback
			assert.Equal(t, tt.want, cfg.FallbackModelIDs())
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := Default()
	cfg.Chat.FallbackModels = []string{"a"}
	clone := cfg.Clone()
	clone.Chat.FallbackModels[0] = "b"
	assert.Equal(t, "a", cfg.Chat.FallbackModels[0])
}

// TestConfig_ConcurrentAccess tests that Global(), SetGlobal(), and ReloadGlobal()
// can be safely called concurrently without race conditions.
// Run with: go test -race -v ./internal/config/
func TestConfig_ConcurrentAccess(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			SetGlobal(Default())
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
		go func() {
			defer wg.Done()
			_ = ReloadGlobal()
		}()
	}
	wg.Wait()
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	path := filepath.Join(dir, "config.toml")
	cfg := Default()
	require.NoError(t, SaveTOML(cfg, path))

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, func(c *Config) { changes <- c }, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Close()

	cfg.Chat.Model = "watched-model"
	require.NoError(t, SaveTOML(cfg, path))

	select {
	case got := <-changes:
		assert.Equal(t, "watched-model", got.Chat.Model)
		assert.Equal(t, "watched-model", Global().Chat.Model)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after config change")
	}
}

func TestWatcher_IgnoresInvalidAndOtherFiles(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, SaveTOML(Default(), path))

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, 20*time.Millisecond, func(c *Config) { changes <- c }, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(path, []byte("[server]\nurl = \"ftp://bad\"\n"), 0600))

	select {
	case c := <-changes:
		t.Fatalf("unexpected reload: %+v", c)
	case <-time.After(300 * time.Millisecond):
	}
}
