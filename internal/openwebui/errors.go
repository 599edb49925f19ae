// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openwebui

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorKind categorizes client errors for handling.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNetwork
	KindHTTPStatus
	KindMalformedResponse
	KindDecodeFrame
	KindAborted
)

// String returns a short label for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindHTTPStatus:
		return "http_status"
	case KindMalformedResponse:
		return "malformed_response"
	case KindDecodeFrame:
		return "decode_frame"
	case KindAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// APIError is returned for every failed request.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Cause      error
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors of the same kind and status.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.StatusCode == 0 || t.StatusCode == e.StatusCode
}

// Sentinel errors for easy checking with errors.Is.
var (
	ErrUnauthorized    = &APIError{Kind: KindHTTPStatus, StatusCode: http.StatusUnauthorized}
	ErrForbidden       = &APIError{Kind: KindHTTPStatus, StatusCode: http.StatusForbidden}
	ErrNotFound        = &APIError{Kind: KindHTTPStatus, StatusCode: http.StatusNotFound}
	ErrMalformed       = &APIError{Kind: KindMalformedResponse}
	ErrAborted         = &APIError{Kind: KindAborted, Message: "request aborted"}
	ErrStreamConsumed  = errors.New("stream already consumed")
	ErrMissingFilename = errors.New("file path is empty")
)

// Human-readable messages for well-known statuses.
const (
	msgUnauthorized = "Authentication failed. Please check your API key in settings."
	msgForbidden    = "Access denied. Please verify your API key has the correct permissions."
	msgNotFound     = "The requested resource was not found. Please check the API URL in settings."
	msgServerError  = "Server error occurred. Please try again later."
)

// errorBody covers the error payloads Open WebUI and OpenAI-style proxies
// return: {"detail": "..."}, {"error": "..."} and {"error": {"message": "..."}}.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
	Error  json.RawMessage `json:"error"`
}

// newStatusError converts a non-2xx response into an APIError.
func newStatusError(statusCode int, body []byte) *APIError {
	e := &APIError{Kind: KindHTTPStatus, StatusCode: statusCode}

	switch {
	case statusCode == http.StatusUnauthorized:
		e.Message = msgUnauthorized
	case statusCode == http.StatusForbidden:
		e.Message = msgForbidden
	case statusCode == http.StatusNotFound:
		e.Message = msgNotFound
	case statusCode >= 500:
		e.Message = msgServerError
	default:
		e.Message = bodyMessage(body)
		if e.Message == "" {
			e.Message = fmt.Sprintf("Request failed with status %d", statusCode)
		}
	}
	return e
}

// bodyMessage extracts a server-provided message from an error body.
func bodyMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	for _, raw := range []json.RawMessage{eb.Error, eb.Detail} {
		if msg := rawMessage(raw); msg != "" {
			return msg
		}
	}
	return ""
}

func rawMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Message)
	}
	return ""
}

// DescribeError renders err for display in a conversation: the reason,
// followed by "(HTTP <code>)" when a status is known.
func DescribeError(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Kind.String()
		}
		if apiErr.Kind == KindNetwork && apiErr.Cause != nil {
			msg = fmt.Sprintf("%s: %v", msg, apiErr.Cause)
		}
		if apiErr.StatusCode != 0 {
			msg = fmt.Sprintf("%s (HTTP %d)", msg, apiErr.StatusCode)
		}
		return msg
	}
	return err.Error()
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
