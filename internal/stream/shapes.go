// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"encoding/json"
	"errors"
)

// =============================================================================
// FRAME PAYLOAD
// =============================================================================

// Text is a JSON field that only counts when it holds a string.
// Numbers, objects and nulls decode without error and stay unset.
type Text struct {
	Value string
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '"' {
		return nil
	}
	if err := json.Unmarshal(data, &t.Value); err != nil {
		return err
	}
	t.Set = true
	return nil
}

// Frame is the decoded JSON payload of one "data: " line. Choices stay raw
// and are resolved per shape, so a sibling field of an unexpected type never
// hides the field a shape reads.
type Frame struct {
	Model   Text            `json:"model"`
	Choices json.RawMessage `json:"choices"`
	Content Text            `json:"content"`
	Text    Text            `json:"text"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// choice is one entry of a frame's choices array.
type choice struct {
	Delta        json.RawMessage `json:"delta"`
	Message      json.RawMessage `json:"message"`
	FinishReason Text            `json:"finish_reason"`
}

// ParseFrame decodes a frame payload. Only invalid JSON is an error; valid
// JSON that is not an object yields an empty Frame.
func ParseFrame(payload []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &Frame{}, nil
		}
		return nil, err
	}
	return &f, nil
}

// firstChoice returns choices[0] when choices is an array starting with an
// object.
func (f *Frame) firstChoice() (choice, bool) {
	var choices []json.RawMessage
	if !isJSONKind(f.Choices, '[') || json.Unmarshal(f.Choices, &choices) != nil || len(choices) == 0 {
		return choice{}, false
	}
	var c choice
	if !isJSONKind(choices[0], '{') || json.Unmarshal(choices[0], &c) != nil {
		return choice{}, false
	}
	return c, true
}

// contentOf returns raw.content when raw is an object.
func contentOf(raw json.RawMessage) Text {
	var inner struct {
		Content Text `json:"content"`
	}
	if !isJSONKind(raw, '{') || json.Unmarshal(raw, &inner) != nil {
		return Text{}
	}
	return inner.Content
}

func isJSONKind(raw json.RawMessage, open byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == open
}

// Lookup returns the field at the shape's path. The result is Set only when
// the field holds a string, which may be empty.
func (f *Frame) Lookup(s Shape) Text {
	switch s {
	case ShapeChoiceDelta:
		if c, ok := f.firstChoice(); ok {
			return contentOf(c.Delta)
		}
	case ShapeChoiceMessage:
		if c, ok := f.firstChoice(); ok {
			return contentOf(c.Message)
		}
	case ShapeContent:
		return f.Content
	case ShapeText:
		return f.Text
	}
	return Text{}
}

// FinishReason returns choices[0].finish_reason, or "".
func (f *Frame) FinishReason() string {
	c, _ := f.firstChoice()
	return c.FinishReason.Value
}

// =============================================================================
// SHAPES
// =============================================================================

// Shape is one place a delta can live inside a frame.
type Shape int

const (
	// ShapeChoiceDelta is choices[0].delta.content (OpenAI streaming).
	ShapeChoiceDelta Shape = iota
	// ShapeChoiceMessage is choices[0].message.content.
	ShapeChoiceMessage
	// ShapeContent is a top-level content field.
	ShapeContent
	// ShapeText is a top-level text field.
	ShapeText
)

// DefaultShapes is the extraction order used by NewDecoder.
var DefaultShapes = []Shape{ShapeChoiceDelta, ShapeChoiceMessage, ShapeContent, ShapeText}

// String returns the JSON path the shape reads.
func (s Shape) String() string {
	switch s {
	case ShapeChoiceDelta:
		return "choices[0].delta.content"
	case ShapeChoiceMessage:
		return "choices[0].message.content"
	case ShapeContent:
		return "content"
	case ShapeText:
		return "text"
	default:
		return "unknown"
	}
}

// Extract returns the non-empty string at the shape's path.
func (s Shape) Extract(f *Frame) (string, bool) {
	t := f.Lookup(s)
	if !t.Set || t.Value == "" {
		return "", false
	}
	return t.Value, true
}

// Extract tries shapes in order and returns the first match.
func Extract(f *Frame, shapes []Shape) (string, Shape, bool) {
	for _, s := range shapes {
		if delta, ok := s.Extract(f); ok {
			return delta, s, true
		}
	}
	return "", 0, false
}
