// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openwebui

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// =============================================================================
// MODEL LIST SHAPES
// =============================================================================

// modelShape decodes one accepted layout of the /api/models body.
// decode reports false when the body does not have that layout.
type modelShape struct {
	name   string
	decode func(body []byte) ([]Model, bool)
}

// modelShapes are tried in order; the first that recognizes the body wins.
var modelShapes = []modelShape{
	{name: "array", decode: decodeModelArray},
	{name: "data", decode: decodeModelData},
	{name: "keyed", decode: decodeModelKeys},
}

// modelEntry is the union of fields seen on model objects. Fields are read
// one at a time so an optional field of an unexpected type never loses the
// model.
type modelEntry struct {
	ID      string
	Name    string
	OwnedBy string

	// sizes lists parameter sizes by precedence: size_parameters,
	// parameter_size, details.parameter_size, ollama.details.parameter_size
	sizes []string
}

// decodeEntry reads a model object. It reports false when raw is not an
// object.
func decodeEntry(raw json.RawMessage) (modelEntry, bool) {
	obj, ok := objectField(raw)
	if !ok {
		return modelEntry{}, false
	}
	e := modelEntry{
		ID:      textField(obj, "id"),
		Name:    textField(obj, "name"),
		OwnedBy: textField(obj, "owned_by"),
		sizes:   []string{textField(obj, "size_parameters"), textField(obj, "parameter_size")},
	}
	if details, ok := objectField(obj["details"]); ok {
		e.sizes = append(e.sizes, textField(details, "parameter_size"))
	}
	if ollama, ok := objectField(obj["ollama"]); ok {
		if details, ok := objectField(ollama["details"]); ok {
			e.sizes = append(e.sizes, textField(details, "parameter_size"))
		}
	}
	return e, true
}

func (e modelEntry) sizeParameters() string {
	for _, size := range e.sizes {
		if size != "" {
			return size
		}
	}
	return ""
}

// objectField decodes raw as a JSON object.
func objectField(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// textField returns obj[key] as text. Strings are returned trimmed, numbers
// in their JSON spelling; anything else is "".
func textField(obj map[string]json.RawMessage, key string) string {
	raw := bytes.TrimSpace(obj[key])
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// parseModels decodes a model list body in any accepted shape.
func parseModels(body []byte) ([]Model, error) {
	body = bytes.TrimSpace(body)
	for _, shape := range modelShapes {
		if models, ok := shape.decode(body); ok {
			return models, nil
		}
	}
	return nil, &APIError{Kind: KindMalformedResponse, Message: "Unrecognized model list format"}
}

func decodeModelArray(body []byte) ([]Model, bool) {
	if len(body) == 0 || body[0] != '[' {
		return nil, false
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false
	}
	return decodeEntries(raw), true
}

func decodeModelData(body []byte) ([]Model, bool) {
	if len(body) == 0 || body[0] != '{' {
		return nil, false
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Data) == 0 {
		return nil, false
	}
	return decodeModelArray(bytes.TrimSpace(envelope.Data))
}

func decodeModelKeys(body []byte) ([]Model, bool) {
	if len(body) == 0 || body[0] != '{' {
		return nil, false
	}
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(body, &keyed); err != nil {
		return nil, false
	}
	if _, ok := keyed["data"]; ok {
		return nil, false
	}

	ids := make([]string, 0, len(keyed))
	for id := range keyed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	models := make([]Model, 0, len(ids))
	for _, id := range ids {
		m := Model{ID: id, Raw: keyed[id]}
		if entry, ok := decodeEntry(keyed[id]); ok {
			m.Name = entry.Name
			m.OwnedBy = entry.OwnedBy
			m.SizeParameters = entry.sizeParameters()
		}
		models = append(models, m)
	}
	return models, true
}

// decodeEntries accepts model objects and bare id strings; entries with
// neither id nor name are dropped.
func decodeEntries(raw []json.RawMessage) []Model {
	models := make([]Model, 0, len(raw))
	for _, item := range raw {
		var id string
		if err := json.Unmarshal(item, &id); err == nil {
			if id = strings.TrimSpace(id); id != "" {
				models = append(models, Model{ID: id, Raw: item})
			}
			continue
		}

		entry, ok := decodeEntry(item)
		if !ok {
			continue
		}
		if entry.ID == "" {
			entry.ID = entry.Name
		}
		if entry.ID == "" {
			continue
		}
		models = append(models, Model{
			ID:             entry.ID,
			Name:           entry.Name,
			SizeParameters: entry.sizeParameters(),
			OwnedBy:        entry.OwnedBy,
			Raw:            item,
		})
	}
	return models
}
