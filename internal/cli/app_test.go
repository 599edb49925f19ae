// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/webui-chat/internal/config"
	"github.com/jeranaias/webui-chat/internal/model"
	"github.com/jeranaias/webui-chat/internal/openwebui"
)

// fakeServer is a minimal chat server that records what it receives.
type fakeServer struct {
	*httptest.Server
	name string

	mu       sync.Mutex
	requests []openwebui.ChatRequest
	auth     []string
	status   int
}

func newFakeServer(t *testing.T, name string) *fakeServer {
	t.Helper()
	fs := &fakeServer{name: name}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/models", func(w http.ResponseWriter, r *http.Request) {
		if code := fs.failStatus(); code != 0 {
			w.WriteHeader(code)
			return
		}
		io.WriteString(w, `{"data":[{"id":"llama3","name":"Llama 3"},{"id":"mistral"}]}`)
	})
	mux.HandleFunc("/api/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req openwebui.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		fs.mu.Lock()
		fs.requests = append(fs.requests, req)
		fs.auth = append(fs.auth, r.Header.Get("Authorization"))
		fs.mu.Unlock()

		if code := fs.failStatus(); code != 0 {
			w.WriteHeader(code)
			return
		}
		if !req.Stream {
			fmt.Fprintf(w, `{"choices":[{"message":{"content":"answer from %s"}}]}`, fs.name)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hel", "lo from ", fs.name} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
			w.(http.Flusher).Flush()
		}
		io.WriteString(w, "data: [DONE]\n\n")
	})
	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {})
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) failStatus() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.status
}

func (fs *fakeServer) setStatus(code int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.status = code
}

func (fs *fakeServer) lastRequest(t *testing.T) openwebui.ChatRequest {
	t.Helper()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.NotEmpty(t, fs.requests, "no chat request reached %s", fs.name)
	return fs.requests[len(fs.requests)-1]
}

// isolateHome points config, history and logs at a temp dir.
func isolateHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.HomeEnv, dir)
	for _, key := range []string{"WEBUI_CHAT_URL", "WEBUI_CHAT_API_KEY", "WEBUI_CHAT_MODEL", "WEBUI_CHAT_STREAM"} {
		t.Setenv(key, "")
	}
	return dir
}

func newTestApp(t *testing.T, args Args) (*App, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	app, err := NewApp(Options{Args: args, Out: out})
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app, out
}

func TestNewApp_FlagsOverrideConfigFile(t *testing.T) {
	dir := isolateHome(t)
	srv := newFakeServer(t, "a")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[server]
url = "http://unused.example.com"

[chat]
model = "from-file"
stream = true
`), 0600))

	app, _ := newTestApp(t, Args{URL: srv.URL + "/", Model: "mistral", NoStream: true})

	cfg := app.Config()
	assert.Equal(t, srv.URL, cfg.Server.URL)
	assert.Equal(t, "mistral", app.Session.Model())
	assert.False(t, app.Session.Streaming())
	assert.NotNil(t, app.Store)
	assert.FileExists(t, filepath.Join(dir, "webui-chat.log"))
	assert.FileExists(t, filepath.Join(dir, "history.db"))
}

func TestNewApp_InvalidOverrideIsConfigError(t *testing.T) {
	isolateHome(t)
	_, err := NewApp(Options{Args: Args{URL: "ftp://nope"}, Out: io.Discard})
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
}

func TestApp_LoadModelsPicksFirstWhenUnset(t *testing.T) {
	isolateHome(t)
	srv := newFakeServer(t, "a")
	app, _ := newTestApp(t, Args{URL: srv.URL})

	require.Empty(t, app.Session.Model())
	require.NoError(t, app.LoadModels(context.Background()))
	assert.Equal(t, "llama3", app.Session.Model())
	assert.Len(t, app.Catalog.Models(), 2)
}

func TestApp_UpdateSavesAndSwapsTransport(t *testing.T) {
	dir := isolateHome(t)
	first := newFakeServer(t, "first")
	second := newFakeServer(t, "second")
	app, _ := newTestApp(t, Args{})

	next := app.Current()
	next.Server.URL = first.URL
	next.Chat.Model = "llama3"
	next.Chat.Stream = false
	require.NoError(t, app.Update(next))

	saved, err := config.LoadFromPath(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, first.URL, saved.Server.URL)
	assert.Equal(t, "llama3", app.Session.Model())

	ctx := context.Background()
	require.NoError(t, app.Session.Send(ctx, "one"))
	require.NoError(t, app.Session.Wait(ctx))
	assert.Equal(t, "one", first.lastRequest(t).Messages[0].Content)

	next = app.Current()
	next.Server.URL = second.URL
	next.Server.APIKey = "sk-new"
	require.NoError(t, app.Update(next))

	require.NoError(t, app.Session.Send(ctx, "two"))
	require.NoError(t, app.Session.Wait(ctx))
	req := second.lastRequest(t)
	assert.Len(t, req.Messages, 3, "history carries over to the new server")
	second.mu.Lock()
	assert.Equal(t, "Bearer sk-new", second.auth[len(second.auth)-1])
	second.mu.Unlock()

	msgs := app.Session.Messages()
	assert.Equal(t, "answer from second", msgs[len(msgs)-1].Content)
}

func TestApp_WatchConfigAppliesFileChanges(t *testing.T) {
	dir := isolateHome(t)
	srv := newFakeServer(t, "a")
	path := filepath.Join(dir, "config.toml")
	cfg := config.Default()
	cfg.Chat.Model = "llama3"
	require.NoError(t, config.SaveTOML(cfg, path))

	app, _ := newTestApp(t, Args{URL: srv.URL})
	require.NoError(t, app.WatchConfig())

	cfg.Chat.Model = "mistral"
	require.NoError(t, config.SaveTOML(cfg, path))

	require.Eventually(t, func() bool { return app.Session.Model() == "mistral" }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, srv.URL, app.Config().Server.URL, "flags still win after a reload")
}

func TestRunAsk_StreamsAndSaves(t *testing.T) {
	isolateHome(t)
	srv := newFakeServer(t, "a")
	app, out := newTestApp(t, Args{URL: srv.URL, Model: "llama3", NoMarkdown: true})

	err := RunAsk(context.Background(), app, Args{Query: "hello?"}, strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "Hello from a\n", out.String())

	req := srv.lastRequest(t)
	assert.True(t, req.Stream)
	assert.Equal(t, "llama3", req.Model)

	metas, err := app.Store.List(context.Background(), -1)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, 2, metas[0].MessageCount)
}

func TestRunAsk_ReadsStdin(t *testing.T) {
	isolateHome(t)
	srv := newFakeServer(t, "a")
	app, out := newTestApp(t, Args{URL: srv.URL, Model: "llama3", NoStream: true, NoMarkdown: true})

	err := RunAsk(context.Background(), app, Args{Query: "-"}, strings.NewReader("  piped question\n"))
	require.NoError(t, err)
	assert.Equal(t, "answer from a\n", out.String())
	assert.Equal(t, "piped question", srv.lastRequest(t).Messages[0].Content)
}

func TestRunAsk_RejectsCommands(t *testing.T) {
	isolateHome(t)
	srv := newFakeServer(t, "a")
	app, _ := newTestApp(t, Args{URL: srv.URL, Model: "llama3", NoMarkdown: true})

	err := RunAsk(context.Background(), app, Args{Query: ">clear"}, strings.NewReader(""))
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestRunAsk_UnauthorizedExitCode(t *testing.T) {
	isolateHome(t)
	srv := newFakeServer(t, "a")
	srv.setStatus(http.StatusUnauthorized)
	app, _ := newTestApp(t, Args{URL: srv.URL, Model: "llama3", NoMarkdown: true})

	err := RunAsk(context.Background(), app, Args{Query: "hi"}, strings.NewReader(""))
	require.Error(t, err)
	assert.ErrorIs(t, err, openwebui.ErrUnauthorized)
	assert.Equal(t, ExitAuthError, GetExitCode(err))
}

func TestRun_ModelsCommand(t *testing.T) {
	isolateHome(t)
	srv := newFakeServer(t, "a")

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"models", "--url", srv.URL, "-m", "mistral"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, ExitSuccess, code, stderr.String())
	assert.Contains(t, stdout.String(), "llama3")
	assert.Contains(t, stdout.String(), "* mistral")
}

func TestRun_ModelsFallbackOnFailure(t *testing.T) {
	dir := isolateHome(t)
	srv := newFakeServer(t, "a")
	srv.setStatus(http.StatusInternalServerError)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"),
		[]byte("[chat]\nfallback_models = [\"backup-model\"]\n"), 0600))

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"models", "--url", srv.URL}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout.String(), "backup-model")
	assert.Contains(t, stderr.String(), "could not fetch models")
}

func TestRun_ModelsFallbackIncludesConfiguredModel(t *testing.T) {
	isolateHome(t)
	srv := newFakeServer(t, "a")
	srv.setStatus(http.StatusInternalServerError)

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"models", "--url", srv.URL, "--model", "my-model"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, ExitSuccess, code, stderr.String())
	assert.Contains(t, stdout.String(), "* my-model")
	assert.Contains(t, stderr.String(), "showing fallback models")
}

func TestRun_UsageAndVersion(t *testing.T) {
	isolateHome(t)
	var stdout, stderr bytes.Buffer

	assert.Equal(t, ExitUsageError, Run(context.Background(), []string{"--bogus"}, nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unknown flag --bogus")

	stdout.Reset()
	assert.Equal(t, ExitSuccess, Run(context.Background(), []string{"--version"}, nil, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "webui-chat version "+Version)

	stdout.Reset()
	assert.Equal(t, ExitSuccess, Run(context.Background(), []string{"help"}, nil, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Usage:")
}

// =============================================================================
// PRINTER TESTS (chat.go)
// =============================================================================

func TestPrinter_StreamsFragmentsRaw(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, &Renderer{})

	msg := model.Message{Role: model.RoleAssistant}
	p.OnFragment(msg, "Hel")
	p.OnFragment(msg, "lo")
	msg.Content = "Hello"
	p.OnComplete(msg)
	assert.Equal(t, "Hello\n\n", out.String())

	out.Reset()
	p.reset()
	p.OnComplete(model.Message{Content: "whole answer"})
	assert.Equal(t, "whole answer\n\n", out.String())
}

func TestPrinter_AbortAndError(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, &Renderer{})

	p.OnFragment(model.Message{}, "partial")
	p.OnAbort(model.Message{Content: "partial"})
	assert.Contains(t, out.String(), "partial\n")
	assert.Contains(t, out.String(), "[Cancelled]")

	out.Reset()
	p.reset()
	p.OnError(model.Message{}, &openwebui.APIError{Kind: openwebui.KindHTTPStatus, StatusCode: 500, Message: "Server error occurred."})
	assert.Contains(t, out.String(), "[ERROR]")
	assert.Contains(t, out.String(), "Server error occurred. (HTTP 500)")
}
