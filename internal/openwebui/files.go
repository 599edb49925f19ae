// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openwebui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// =============================================================================
// FILE UPLOAD
// =============================================================================

// UploadFile sends the file at path as multipart field "file" and returns
// the server's file record. The id is what NewChatRequest attaches.
func (c *Client) UploadFile(ctx context.Context, path string) (*FileInfo, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrMissingFilename
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	// Stream the form through a pipe instead of buffering the file.
	pr, pw := io.Pipe()
	defer pr.Close()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(pathFiles), pr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(c.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	var info FileInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &APIError{Kind: KindMalformedResponse, Message: "Invalid upload response", Cause: err}
	}
	if info.ID == "" {
		return nil, &APIError{Kind: KindMalformedResponse, Message: "Upload response has no file id"}
	}
	if info.Filename == "" {
		info.Filename = filepath.Base(path)
	}
	c.logger.Info("file uploaded", "id", info.ID, "filename", info.Filename)
	return &info, nil
}
