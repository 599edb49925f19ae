// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"

	"github.com/jeranaias/webui-chat/internal/model"
	"github.com/jeranaias/webui-chat/internal/openwebui"
)

// RetryTemplate builds the synthetic regenerate prompt; %s is the original
// user message.
const RetryTemplate = `Acknowledge that your previous response wasn't satisfactory and provide a new, different response to the user's question. Take a different approach this time by:
1. Using a different perspective or methodology
2. Providing more specific examples or details
3. Breaking down the explanation in a clearer way
4. Being more direct and concise

Important: Do not repeat content from your previous response. Focus on giving a fresh, alternative answer that might better address what the user is looking for.

Original user message: %s`

// RetryContext is the resolved target of one regenerate request.
type RetryContext struct {
	OriginalMessageIndex int
	SyntheticPrompt      string
}

// ResolveRetry finds the user message whose answer at index should be
// regenerated. It follows, in order: the back-reference of a retry prompt
// directly before index, the nearest earlier message the user typed, the
// nearest earlier user-role message.
func ResolveRetry(msgs []*model.Message, index int) (RetryContext, bool) {
	if index <= 0 || index >= len(msgs) {
		return RetryContext{}, false
	}

	original := -1
	if prev := msgs[index-1]; prev.IsRetryPrompt {
		if ref := prev.OriginalMessageIndex; ref >= 0 && ref < index && msgs[ref].IsUser() {
			original = ref
		}
	}
	if original < 0 {
		for i := index - 1; i >= 0; i-- {
			if msgs[i].IsOriginalUserMessage {
				original = i
				break
			}
		}
	}
	if original < 0 {
		for i := index - 1; i >= 0; i-- {
			if msgs[i].IsUser() {
				original = i
				break
			}
		}
	}
	if original < 0 {
		return RetryContext{}, false
	}

	return RetryContext{
		OriginalMessageIndex: original,
		SyntheticPrompt:      fmt.Sprintf(RetryTemplate, msgs[original].Content),
	}, true
}

// retryHistory is the request history for a regenerate of the answer at
// index: transmittable messages through index, without the most recent
// assistant message, followed by the synthetic prompt.
func retryHistory(msgs []*model.Message, index int, rc RetryContext) []openwebui.ChatMessage {
	kept := make([]*model.Message, 0, index+1)
	for _, m := range msgs[:index+1] {
		if m.Transmittable() {
			kept = append(kept, m)
		}
	}
	for i := len(kept) - 1; i >= 0; i-- {
		if kept[i].IsAssistant() {
			kept = append(kept[:i], kept[i+1:]...)
			break
		}
	}
	history := model.WireMessages(kept)
	return append(history, openwebui.ChatMessage{Role: openwebui.RoleUser, Content: rc.SyntheticPrompt})
}

// Retry regenerates the assistant response at index. The synthetic prompt is
// appended to the conversation flagged as a retry prompt and a new exchange
// starts. When no user message can be found Retry logs and does nothing.
func (s *Session) Retry(ctx context.Context, index int) error {
	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return ErrGenerationInProgress
	}
	if s.model == "" {
		s.mu.Unlock()
		return ErrNoModel
	}
	target := s.conv.At(index)
	if target == nil || !target.IsAssistant() {
		s.mu.Unlock()
		return fmt.Errorf("%w: index %d", ErrNotAssistant, index)
	}

	rc, ok := ResolveRetry(s.conv.Messages, index)
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("retry has no user message to regenerate", "index", index)
		return nil
	}

	history := retryHistory(s.conv.Messages, index, rc)
	s.conv.AddMessage(model.NewRetryPrompt(rc.SyntheticPrompt, rc.OriginalMessageIndex))
	ex, req := s.startLocked(ctx, history)
	s.mu.Unlock()

	s.logger.Info("retry started", "index", index, "original", rc.OriginalMessageIndex)
	go s.run(ex, req)
	return nil
}

// LastAssistantIndex returns the index of the most recent assistant message,
// or -1.
func (s *Session) LastAssistantIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.LastAssistantIndex()
}
