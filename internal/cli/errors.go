// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - error display and exit codes for webui-chat.
//
// STANDARDIZED PATTERN:
//   - Commands return errors; Run decides how to display them
//   - Exit codes come from the error chain, never from message text

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/webui-chat/internal/config"
	"github.com/jeranaias/webui-chat/internal/openwebui"
	"github.com/jeranaias/webui-chat/internal/session"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates an unreadable or invalid config file
	ExitConfigError = 3
	// ExitAuthError indicates the server rejected the API key
	ExitAuthError = 4
	// ExitNetworkError indicates the server could not be reached
	ExitNetworkError = 5
	// ExitNotFoundError indicates a missing endpoint or model
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitInterrupted indicates the user stopped the response
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports bad command-line arguments.
type UsageError struct {
	Reason  string
	Example string
}

func (e *UsageError) Error() string {
	msg := "usage: " + e.Reason
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// ConfigError wraps a failure to load settings.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// errInterrupted is returned by ask when the response was stopped.
var errInterrupted = errors.New("response cancelled")

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err in the standard format.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), describe(err))
	if hint := errorHint(err); hint != "" {
		fmt.Fprintln(w, DimStyle.Render(hint))
	}
}

// describe prefers the server-facing description for transport errors.
func describe(err error) string {
	var apiErr *openwebui.APIError
	if errors.As(err, &apiErr) {
		return openwebui.DescribeError(err)
	}
	return err.Error()
}

// errorHint suggests the next step for errors the user can fix.
func errorHint(err error) string {
	switch {
	case errors.Is(err, openwebui.ErrUnauthorized), errors.Is(err, openwebui.ErrForbidden):
		return "Set a key with --api-key, WEBUI_CHAT_API_KEY or >settings set server.api_key <key>."
	case errors.Is(err, session.ErrNoModel):
		return "Pick a model with --model or >model <id>; >models lists them."
	case isNetworkError(err):
		return "Check that the server is running and server.url is correct."
	}
	return ""
}

func isNetworkError(err error) bool {
	var apiErr *openwebui.APIError
	return errors.As(err, &apiErr) && apiErr.Kind == openwebui.KindNetwork
}

// GetExitCode maps an error to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		return ExitUsageError
	}

	var configErr *ConfigError
	var validateErrs config.ValidateErrors
	if errors.As(err, &configErr) || errors.As(err, &validateErrs) {
		return ExitConfigError
	}

	switch {
	case errors.Is(err, errInterrupted):
		return ExitInterrupted
	case errors.Is(err, openwebui.ErrUnauthorized), errors.Is(err, openwebui.ErrForbidden):
		return ExitAuthError
	case errors.Is(err, openwebui.ErrNotFound), errors.Is(err, session.ErrNoModel):
		return ExitNotFoundError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case isNetworkError(err):
		return ExitNetworkError
	}
	return ExitGeneralError
}
