// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openwebui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseHandler writes each frame as a "data: " line and flushes.
func sseHandler(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			flusher.Flush()
		}
	}
}

func deltaFrame(s string) string {
	b, _ := json.Marshal(map[string]any{"choices": []any{map[string]any{"delta": map[string]any{"content": s}}}})
	return string(b)
}

// recorder collects StreamCallbacks events.
type recorder struct {
	mu        sync.Mutex
	fragments []string
	completed []string
	errs      []error
}

func (r *recorder) callbacks() StreamCallbacks {
	return StreamCallbacks{
		OnFragment: func(d string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.fragments = append(r.fragments, d)
		},
		OnComplete: func(text string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.completed = append(r.completed, text)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func (r *recorder) finalizations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed) + len(r.errs)
}

func TestStream_Headers(t *testing.T) {
	var header http.Header
	var body map[string]any
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		sseHandler(deltaFrame("x"), "[DONE]")(w, r)
	}), "Bearer sk-1")

	s := client.Stream(context.Background(), NewChatRequest("m", []ChatMessage{{Role: RoleUser, Content: "q"}}, ""))
	for _, err := range s.Fragments() {
		require.NoError(t, err)
	}

	assert.Equal(t, "text/event-stream", header.Get("Accept"))
	assert.Equal(t, "no-cache", header.Get("Cache-Control"))
	assert.Equal(t, "no", header.Get("X-Accel-Buffering"))
	assert.Equal(t, "Bearer sk-1", header.Get("Authorization"))
	assert.Equal(t, true, body["stream"])
}

func TestStream_IsLazy(t *testing.T) {
	var hits atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}), "")

	s := client.Stream(context.Background(), NewChatRequest("m", nil, ""))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, hits.Load())

	for range s.Fragments() {
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestStream_RunConcatenatesFragments(t *testing.T) {
	deltas := []string{"Hel", "lo", ", ", "wor", "ld"}
	frames := make([]string, 0, len(deltas)+2)
	for _, d := range deltas {
		frames = append(frames, deltaFrame(d))
	}
	frames = append(frames, `{"choices":[{"delta":{"role":"assistant"}}]}`, "[DONE]")
	client := testClient(t, sseHandler(frames...), "")

	rec := &recorder{}
	s := client.Stream(context.Background(), NewChatRequest("m", nil, ""))
	s.Run(rec.callbacks())

	assert.Equal(t, deltas, rec.fragments)
	assert.Equal(t, []string{"Hello, world"}, rec.completed)
	assert.Empty(t, rec.errs)
	assert.Equal(t, "Hello, world", s.Text())
	assert.False(t, s.Aborted())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Run")
	}
}

func TestStream_SecondConsumeFails(t *testing.T) {
	client := testClient(t, sseHandler(deltaFrame("a")), "")
	s := client.Stream(context.Background(), NewChatRequest("m", nil, ""))
	for range s.Fragments() {
	}

	var gotErr error
	for _, err := range s.Fragments() {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, ErrStreamConsumed)
}

func TestStream_HTTPErrorGoesToOnError(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}), "")

	rec := &recorder{}
	client.Stream(context.Background(), NewChatRequest("m", nil, "")).Run(rec.callbacks())

	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], ErrUnauthorized)
	assert.Empty(t, rec.completed)
}

func TestStream_AbortStopsAndCompletesOnce(t *testing.T) {
	var stopHits atomic.Int32
	firstSent := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "data: %s\n\n", deltaFrame("partial"))
		flusher.Flush()
		close(firstSent)
		<-r.Context().Done()
	})
	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		stopHits.Add(1)
	})
	client := testClient(t, mux, "")

	rec := &recorder{}
	gotFirst := make(chan struct{})
	cb := rec.callbacks()
	onFragment := cb.OnFragment
	var once sync.Once
	cb.OnFragment = func(d string) {
		onFragment(d)
		once.Do(func() { close(gotFirst) })
	}

	s := client.Stream(context.Background(), NewChatRequest("m", nil, ""))
	runDone := make(chan struct{})
	go func() {
		s.Run(cb)
		close(runDone)
	}()

	<-firstSent
	<-gotFirst
	s.Abort()
	s.Abort()

	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Abort")
	}

	assert.True(t, s.Aborted())
	assert.Equal(t, int32(1), stopHits.Load())
	assert.Equal(t, 1, rec.finalizations())
	assert.Equal(t, []string{"partial"}, rec.completed)
	assert.Equal(t, []string{"partial"}, rec.fragments)
}

func TestStream_AbortBoundedByStopTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	client := testClient(t, mux, "")
	client.stopTimeout = 100 * time.Millisecond

	rec := &recorder{}
	s := client.Stream(context.Background(), NewChatRequest("m", nil, ""))
	go s.Run(rec.callbacks())
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	s.Abort()
	assert.Less(t, time.Since(start), 2*time.Second)

	<-s.Done()
	assert.Equal(t, 1, rec.finalizations())
	assert.Empty(t, rec.errs)
}

func TestStream_AbortBeforeRun(t *testing.T) {
	var chatHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		chatHits.Add(1)
	})
	mux.HandleFunc("/api/stop", func(w http.ResponseWriter, r *http.Request) {})
	client := testClient(t, mux, "")

	s := client.Stream(context.Background(), NewChatRequest("m", nil, ""))
	s.Abort()

	rec := &recorder{}
	s.Run(rec.callbacks())

	assert.Zero(t, chatHits.Load())
	assert.Empty(t, rec.fragments)
	assert.Empty(t, rec.errs)
}

func TestStream_BreakEndsRequest(t *testing.T) {
	client := testClient(t, sseHandler(deltaFrame("a"), deltaFrame("b"), deltaFrame("c")), "")
	s := client.Stream(context.Background(), NewChatRequest("m", nil, ""))

	var got []string
	for fragment, err := range s.Fragments() {
		require.NoError(t, err)
		got = append(got, fragment)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, "ab", s.Text())
}

func TestStream_MixedShapes(t *testing.T) {
	client := testClient(t, sseHandler(
		deltaFrame("one "),
		`{"content":"two "}`,
		`not json at all`,
		`{"text":"three"}`,
		"[DONE]",
	), "")

	rec := &recorder{}
	client.Stream(context.Background(), NewChatRequest("m", nil, "")).Run(rec.callbacks())
	assert.Equal(t, []string{"one two three"}, rec.completed)
	assert.Equal(t, "one two three", strings.Join(rec.fragments, ""))
}
