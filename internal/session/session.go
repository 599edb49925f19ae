// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/webui-chat/internal/model"
	"github.com/jeranaias/webui-chat/internal/openwebui"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// DefaultCommandPrefix starts a local command instead of a message.
	DefaultCommandPrefix = ">"

	// CancelledMarker is appended to a partial response on abort.
	CancelledMarker = model.CancelledMarker

	// CancelledNotice is the whole response when abort came before any text.
	CancelledNotice = model.CancelledNotice
)

var (
	ErrEmptyInput           = errors.New("message is empty")
	ErrGenerationInProgress = errors.New("a response is still being generated")
	ErrNoModel              = errors.New("no model selected")
	ErrNoCommandHandler     = errors.New("commands are not available")
	ErrNotAssistant         = errors.New("message is not an assistant response")

	errEmptyResponse = &openwebui.APIError{Kind: openwebui.KindMalformedResponse, Message: "The server returned an empty response"}
)

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle position of the most recent exchange.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateErrored
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Busy reports whether an exchange is in flight.
func (s State) Busy() bool {
	return s == StateSending || s == StateStreaming
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Transport is the server capability a Session needs. *openwebui.Client
// implements it.
type Transport interface {
	Chat(ctx context.Context, req openwebui.ChatRequest) (*openwebui.ChatResult, error)
	Stream(ctx context.Context, req openwebui.ChatRequest) *openwebui.Stream
	Stop(ctx context.Context) error
}

// CommandHandler runs a command line with the prefix removed.
type CommandHandler interface {
	HandleCommand(ctx context.Context, line string) error
}

// CommandFunc adapts a function to CommandHandler.
type CommandFunc func(ctx context.Context, line string) error

// HandleCommand calls f.
func (f CommandFunc) HandleCommand(ctx context.Context, line string) error {
	return f(ctx, line)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds session options.
type Config struct {
	// Model is sent with every request
	Model string

	// Stream selects streaming completions (default: true via DefaultConfig)
	Stream bool

	// CommandPrefix marks command input (default: ">")
	CommandPrefix string

	// StopTimeout bounds the stop call for non-streaming aborts (default: 1s)
	StopTimeout time.Duration

	// Logger for exchange lifecycle logs (default: slog.Default())
	Logger *slog.Logger
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Stream:        true,
		CommandPrefix: DefaultCommandPrefix,
		StopTimeout:   openwebui.DefaultStopTimeout,
	}
}

// =============================================================================
// SESSION
// =============================================================================

// exchange is one request/response cycle.
type exchange struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	streaming bool
	stream    *openwebui.Stream

	// placeholder is the assistant message, created on the first fragment.
	placeholder *model.Message

	// terminal is set by whichever of complete, fail or Abort runs first.
	terminal bool
	done     chan struct{}
}

// Session owns a conversation and its exchanges. It is safe for concurrent
// use.
type Session struct {
	transport   Transport
	logger      *slog.Logger
	stopTimeout time.Duration

	// notifyMu serializes listener calls; it is taken before mu.
	notifyMu sync.Mutex

	mu       sync.Mutex
	conv     *model.Conversation
	model    string
	stream   bool
	prefix   string
	fileID   string
	state    State
	active   *exchange
	last     *exchange
	dirty    bool
	listener Listener
	commands CommandHandler
}

// New creates a session over transport.
func New(transport Transport, cfg Config) *Session {
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = DefaultCommandPrefix
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = openwebui.DefaultStopTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{
		transport:   transport,
		logger:      cfg.Logger.With("component", "session"),
		stopTimeout: cfg.StopTimeout,
		conv:        model.NewConversationWithModel(cfg.Model),
		model:       cfg.Model,
		stream:      cfg.Stream,
		prefix:      cfg.CommandPrefix,
		listener:    ListenerFuncs{},
	}
}

// SetListener replaces the event listener. nil disables events.
func (s *Session) SetListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l == nil {
		l = ListenerFuncs{}
	}
	s.listener = l
}

// SetCommandHandler sets the handler for prefixed input.
func (s *Session) SetCommandHandler(h CommandHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = h
}

// SetTransport swaps the transport, for example after settings change.
// The in-flight exchange keeps the transport it started with.
func (s *Session) SetTransport(t Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = t
}

// SetModel selects the model for subsequent exchanges.
func (s *Session) SetModel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = id
	s.conv.Model = id
}

// Model returns the selected model.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// SetStreaming chooses between streaming and non-streaming exchanges.
func (s *Session) SetStreaming(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = on
}

// Streaming reports whether new exchanges stream.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// AttachFile attaches an uploaded file id to the next exchange. An empty id
// detaches.
func (s *Session) AttachFile(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileID = strings.TrimSpace(id)
}

// AttachedFile returns the pending attachment id.
func (s *Session) AttachedFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileID
}

// State returns the state of the most recent exchange.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a snapshot of the conversation.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Snapshot()
}

// Conversation returns a deep copy of the conversation.
func (s *Session) Conversation() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Clone()
}

// Dirty reports whether the conversation changed since MarkSaved.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// MarkSaved clears the dirty flag.
func (s *Session) MarkSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

// Clear removes every message. It fails while an exchange is in flight.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return ErrGenerationInProgress
	}
	s.conv.ClearHistory()
	s.state = StateIdle
	s.dirty = false
	return nil
}

// Load replaces the conversation, for example with a stored transcript.
func (s *Session) Load(conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return ErrGenerationInProgress
	}
	s.conv = conv.Clone()
	if s.conv.Model != "" {
		s.model = s.conv.Model
	} else {
		s.conv.Model = s.model
	}
	s.state = StateIdle
	s.dirty = false
	return nil
}

// =============================================================================
// SEND
// =============================================================================

// Send handles one line of user input. Prefixed input goes to the command
// handler; anything else is appended as a user message and starts an
// exchange. Send returns once the exchange has started; ctx bounds the whole
// exchange.
func (s *Session) Send(ctx context.Context, input string) error {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ErrEmptyInput
	}

	s.mu.Lock()
	prefix, handler := s.prefix, s.commands
	s.mu.Unlock()
	if strings.HasPrefix(trimmed, prefix) {
		if handler == nil {
			return ErrNoCommandHandler
		}
		return handler.HandleCommand(ctx, strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)))
	}

	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return ErrGenerationInProgress
	}
	if s.model == "" {
		s.mu.Unlock()
		return ErrNoModel
	}
	s.conv.AddMessage(model.NewUserMessage(trimmed))
	ex, req := s.startLocked(ctx, s.conv.ToWireMessages())
	s.mu.Unlock()

	go s.run(ex, req)
	return nil
}

// startLocked claims the active slot. Callers hold mu.
func (s *Session) startLocked(ctx context.Context, history []openwebui.ChatMessage) (*exchange, openwebui.ChatRequest) {
	exCtx, cancel := context.WithCancel(ctx)
	ex := &exchange{
		id:        uuid.NewString(),
		ctx:       exCtx,
		cancel:    cancel,
		streaming: s.stream,
		done:      make(chan struct{}),
	}
	req := openwebui.NewChatRequest(s.model, history, s.fileID)
	s.fileID = ""
	s.active = ex
	s.last = ex
	s.state = StateSending
	s.dirty = true
	return ex, req
}

// run drives an exchange to its end on its own goroutine.
func (s *Session) run(ex *exchange, req openwebui.ChatRequest) {
	defer close(ex.done)
	defer ex.cancel()

	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()

	s.logger.Info("exchange started",
		"exchange", ex.id, "model", req.Model, "messages", len(req.Messages),
		"stream", ex.streaming, "files", len(req.Files))

	if !ex.streaming {
		result, err := transport.Chat(ex.ctx, req)
		if err != nil {
			s.fail(ex, err)
			return
		}
		s.complete(ex, result.Content)
		return
	}

	st := transport.Stream(ex.ctx, req)
	s.mu.Lock()
	aborted := ex.terminal
	if !aborted {
		ex.stream = st
		s.state = StateStreaming
	}
	s.mu.Unlock()
	if aborted {
		return
	}

	st.Run(openwebui.StreamCallbacks{
		OnFragment: func(delta string) { s.applyFragment(ex, delta) },
		OnComplete: func(text string) { s.complete(ex, text) },
		OnError:    func(err error) { s.fail(ex, err) },
	})
}

func (s *Session) applyFragment(ex *exchange, delta string) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if ex.terminal {
		s.mu.Unlock()
		return
	}
	if ex.placeholder == nil {
		ex.placeholder = model.NewStreamingMessage(ex.id)
		s.conv.AddMessage(ex.placeholder)
	}
	ex.placeholder.AppendFragment(delta)
	s.state = StateStreaming
	snap := *ex.placeholder
	listener := s.listener
	s.mu.Unlock()

	listener.OnFragment(snap, delta)
}

func (s *Session) complete(ex *exchange, text string) {
	if strings.TrimSpace(text) == "" {
		s.fail(ex, errEmptyResponse)
		return
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if ex.terminal {
		s.mu.Unlock()
		return
	}
	ex.terminal = true
	msg := ex.placeholder
	if msg == nil {
		msg = model.NewStreamingMessage(ex.id)
		s.conv.AddMessage(msg)
	}
	msg.Finalize(text)
	s.conv.Touch()
	s.finishLocked(ex, StateCompleted)
	snap := *msg
	listener := s.listener
	s.mu.Unlock()

	s.logger.Info("exchange completed", "exchange", ex.id, "chars", len(snap.Content))
	listener.OnComplete(snap)
}

func (s *Session) fail(ex *exchange, err error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if ex.terminal {
		s.mu.Unlock()
		return
	}
	ex.terminal = true
	desc := openwebui.DescribeError(err)
	code := openwebui.StatusCode(err)
	msg := ex.placeholder
	if msg != nil {
		msg.SetError(desc, code)
	} else {
		msg = model.NewErrorMessage(desc, code)
		msg.ID = ex.id
		s.conv.AddMessage(msg)
	}
	s.conv.Touch()
	s.finishLocked(ex, StateErrored)
	snap := *msg
	listener := s.listener
	s.mu.Unlock()

	s.logger.Error("exchange failed", "exchange", ex.id, "status", code, "error", err)
	listener.OnError(snap, err)
}

// finishLocked releases the active slot. Callers hold mu.
func (s *Session) finishLocked(ex *exchange, state State) {
	if s.active == ex {
		s.active = nil
	}
	s.state = state
	s.dirty = true
}

// =============================================================================
// ABORT AND WAIT
// =============================================================================

// Abort cancels the in-flight exchange. The partial response is kept with
// CancelledMarker appended, or CancelledNotice is added when no text had
// arrived. A bounded stop request is sent to the server. Abort reports
// whether there was anything to cancel.
func (s *Session) Abort() bool {
	s.notifyMu.Lock()
	s.mu.Lock()
	ex := s.active
	if ex == nil || ex.terminal {
		s.mu.Unlock()
		s.notifyMu.Unlock()
		return false
	}
	ex.terminal = true

	msg := ex.placeholder
	partial := msg != nil
	if partial {
		msg.Cancel()
	} else {
		msg = model.NewCancelledNotice(ex.id)
		s.conv.AddMessage(msg)
	}
	s.conv.Touch()
	s.finishLocked(ex, StateAborted)
	st := ex.stream
	transport := s.transport
	snap := *msg
	listener := s.listener
	s.mu.Unlock()

	listener.OnAbort(snap)
	s.notifyMu.Unlock()

	s.logger.Info("exchange aborted", "exchange", ex.id, "partial", partial)
	if st != nil {
		st.Abort()
		return true
	}
	ex.cancel()
	s.stopBestEffort(transport)
	return true
}

func (s *Session) stopBestEffort(transport Transport) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()
	if err := transport.Stop(ctx); err != nil {
		s.logger.Warn("stop request failed", "error", err)
	}
}

// Wait blocks until the most recent exchange goroutine has finished or ctx
// is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	ex := s.last
	s.mu.Unlock()
	if ex == nil {
		return nil
	}
	select {
	case <-ex.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for response: %w", ctx.Err())
	}
}
