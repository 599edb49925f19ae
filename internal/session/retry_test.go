// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/webui-chat/internal/model"
	"github.com/jeranaias/webui-chat/internal/openwebui"
)

func user(content string) *model.Message      { return model.NewUserMessage(content) }
func assistant(content string) *model.Message { return model.NewAssistantMessage(content) }

func plainUser(content string) *model.Message {
	m := model.NewUserMessage(content)
	m.IsOriginalUserMessage = false
	return m
}

func TestResolveRetry(t *testing.T) {
	tests := []struct {
		name  string
		msgs  []*model.Message
		index int
		want  int
		ok    bool
	}{
		{
			name:  "retry of a retry follows the back-reference",
			msgs:  []*model.Message{user("U0"), assistant("A0"), model.NewRetryPrompt("R", 0), assistant("A1")},
			index: 3,
			want:  0,
			ok:    true,
		},
		{
			name:  "nearest original user message",
			msgs:  []*model.Message{user("U0"), assistant("A0"), user("U1"), assistant("A1")},
			index: 3,
			want:  2,
			ok:    true,
		},
		{
			name:  "original preferred over plain user",
			msgs:  []*model.Message{user("U0"), plainUser("P"), assistant("A0")},
			index: 2,
			want:  0,
			ok:    true,
		},
		{
			name:  "falls back to any user message",
			msgs:  []*model.Message{plainUser("P0"), assistant("A0")},
			index: 1,
			want:  0,
			ok:    true,
		},
		{
			name:  "invalid back-reference falls through",
			msgs:  []*model.Message{user("U0"), assistant("A0"), model.NewRetryPrompt("R", 7), assistant("A1")},
			index: 3,
			want:  0,
			ok:    true,
		},
		{
			name:  "no user message",
			msgs:  []*model.Message{model.NewSystemMessage("sys"), assistant("A0")},
			index: 1,
			ok:    false,
		},
		{
			name:  "index zero",
			msgs:  []*model.Message{assistant("A0")},
			index: 0,
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, ok := ResolveRetry(tt.msgs, tt.index)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.want, rc.OriginalMessageIndex)
			assert.Equal(t, fmt.Sprintf(RetryTemplate, tt.msgs[tt.want].Content), rc.SyntheticPrompt)
		})
	}
}

func TestRetryHistory(t *testing.T) {
	msgs := []*model.Message{
		user("U0"),
		assistant("A0"),
		model.NewErrorMessage("failed", 500),
		user("U1"),
		assistant("A1"),
	}
	rc := RetryContext{OriginalMessageIndex: 3, SyntheticPrompt: "again"}

	got := retryHistory(msgs, 4, rc)
	assert.Equal(t, []openwebui.ChatMessage{
		{Role: "user", Content: "U0"},
		{Role: "assistant", Content: "A0"},
		{Role: "user", Content: "U1"},
		{Role: "user", Content: "again"},
	}, got)
}

func TestRetry_StartsExchange(t *testing.T) {
	fs := newFakeServer(t, streamFrames(deltaFrame("A different answer"), "[DONE]"))
	s, ev := newSession(t, fs.client, true)

	conv := model.NewConversationWithModel("test-model")
	conv.AddMessage(user("What is Go?"))
	conv.AddMessage(assistant("A language."))
	require.NoError(t, s.Load(conv))

	require.NoError(t, s.Retry(context.Background(), 1))
	waitDone(t, s)

	prompt := fmt.Sprintf(RetryTemplate, "What is Go?")
	req := <-fs.requests
	assert.Equal(t, []openwebui.ChatMessage{
		{Role: "user", Content: "What is Go?"},
		{Role: "user", Content: prompt},
	}, req.Messages)

	msgs := s.Messages()
	require.Len(t, msgs, 4)
	assert.True(t, msgs[2].IsRetryPrompt)
	assert.False(t, msgs[2].IsOriginalUserMessage)
	assert.Equal(t, 0, msgs[2].OriginalMessageIndex)
	assert.Equal(t, prompt, msgs[2].Content)
	assert.Equal(t, "A different answer", msgs[3].Content)
	require.Len(t, ev.completes, 1)

	// Retrying the retry still targets the first question.
	require.NoError(t, s.Retry(context.Background(), 3))
	waitDone(t, s)
	msgs = s.Messages()
	require.Len(t, msgs, 6)
	assert.Equal(t, 0, msgs[4].OriginalMessageIndex)
	assert.Equal(t, 5, s.LastAssistantIndex())
}

func TestRetry_Validation(t *testing.T) {
	fs := newFakeServer(t, streamFrames(deltaFrame("x")))
	s, _ := newSession(t, fs.client, true)

	conv := model.NewConversation()
	conv.AddMessage(model.NewSystemMessage("sys"))
	conv.AddMessage(assistant("A0"))
	conv.AddMessage(user("U0"))
	require.NoError(t, s.Load(conv))

	assert.ErrorIs(t, s.Retry(context.Background(), 2), ErrNotAssistant)
	assert.ErrorIs(t, s.Retry(context.Background(), 9), ErrNotAssistant)

	// No user message before index 1: logged no-op.
	require.NoError(t, s.Retry(context.Background(), 1))
	assert.Len(t, s.Messages(), 3)
	assert.Zero(t, fs.chats.Load())
}
