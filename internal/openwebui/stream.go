// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openwebui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jeranaias/webui-chat/internal/stream"
)

// =============================================================================
// STREAM HANDLE
// =============================================================================

// StreamCallbacks receive the events of Stream.Run. Exactly one of
// OnComplete or OnError is called.
type StreamCallbacks struct {
	// OnFragment receives each non-empty delta in arrival order.
	OnFragment func(delta string)

	// OnComplete receives the accumulated text after a normal end or an abort.
	OnComplete func(text string)

	// OnError receives the failure that ended the stream.
	OnError func(err error)
}

// Stream is one in-flight streaming completion. The HTTP request is issued
// when the fragments are first consumed.
type Stream struct {
	client *Client
	req    ChatRequest
	ctx    context.Context
	cancel context.CancelFunc

	consumed atomic.Bool
	aborted  atomic.Bool

	// deliverMu is held while a fragment is handed to a callback so Abort can
	// wait out an in-flight delivery.
	deliverMu sync.Mutex

	mu        sync.Mutex
	text      strings.Builder
	callbacks StreamCallbacks

	finishOnce sync.Once
	abortOnce  sync.Once
	done       chan struct{}
}

// Stream prepares a streaming completion. It returns immediately; nothing is
// sent until Fragments or Run is called.
func (c *Client) Stream(ctx context.Context, chatReq ChatRequest) *Stream {
	chatReq.Stream = true
	sctx, cancel := context.WithCancel(ctx)
	return &Stream{
		client: c,
		req:    chatReq,
		ctx:    sctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Fragments returns the lazy, non-restartable fragment sequence. A second
// call yields ErrStreamConsumed. After Abort the sequence ends silently.
func (s *Stream) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			yield("", ErrStreamConsumed)
			return
		}

		body, err := s.open()
		if err != nil {
			if !s.aborted.Load() {
				yield("", err)
			}
			return
		}
		defer body.Close()

		dec := stream.NewDecoder(body, stream.WithLogger(s.client.logger))
		for {
			fragment, err := dec.Next()
			if err == io.EOF {
				s.client.logger.Debug("stream ended", "fragments", dec.Stats().Fragments, "skipped", dec.Stats().Skipped, "done", dec.Stats().DoneSeen)
				return
			}
			if s.aborted.Load() {
				return
			}
			if err != nil {
				yield("", &APIError{Kind: KindNetwork, Message: "Stream interrupted", Cause: err})
				return
			}

			s.mu.Lock()
			s.text.WriteString(fragment)
			s.mu.Unlock()

			if !yield(fragment, nil) {
				return
			}
		}
	}
}

// open issues the streaming request.
func (s *Stream) open() (io.ReadCloser, error) {
	bodyBytes, err := json.Marshal(s.req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.client.endpoint(pathChat), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Accel-Buffering", "no")

	resp, err := s.client.do(s.client.streamClient, req)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// Run consumes the stream, reporting events through cb. It blocks until the
// stream finishes or is aborted. Callbacks must not call Abort.
func (s *Stream) Run(cb StreamCallbacks) {
	s.mu.Lock()
	s.callbacks = cb
	s.mu.Unlock()
	defer s.cancel()

	for fragment, err := range s.Fragments() {
		if err != nil {
			s.finish(err)
			return
		}
		if !s.deliver(fragment) {
			break
		}
	}
	s.finish(nil)
}

// deliver hands one fragment to OnFragment unless the stream was aborted.
func (s *Stream) deliver(fragment string) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.aborted.Load() {
		return false
	}
	s.mu.Lock()
	onFragment := s.callbacks.OnFragment
	s.mu.Unlock()
	if onFragment != nil {
		onFragment(fragment)
	}
	return true
}

// Abort stops the stream: reads are cancelled, the server is asked to stop
// within the stop timeout, and the stream completes with the text received
// so far. Abort is idempotent.
func (s *Stream) Abort() {
	s.abortOnce.Do(func() {
		// Taking deliverMu waits out an in-flight OnFragment.
		s.deliverMu.Lock()
		s.aborted.Store(true)
		s.deliverMu.Unlock()
		s.cancel()

		s.client.stopBestEffort()
		s.finish(nil)
	})
}

// finish reports the terminal event exactly once.
func (s *Stream) finish(err error) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		cb := s.callbacks
		text := s.text.String()
		s.mu.Unlock()

		if err != nil && !s.aborted.Load() {
			s.client.logger.Warn("stream failed", "error", err)
			if cb.OnError != nil {
				cb.OnError(err)
			}
		} else if cb.OnComplete != nil {
			cb.OnComplete(text)
		}
		close(s.done)
	})
}

// Text returns the text accumulated so far.
func (s *Stream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Done is closed once the stream has finalized through Run or Abort.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Aborted reports whether Abort was called.
func (s *Stream) Aborted() bool {
	return s.aborted.Load()
}
