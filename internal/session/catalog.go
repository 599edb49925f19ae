// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jeranaias/webui-chat/internal/openwebui"
)

// ModelLister lists the models a server offers.
type ModelLister interface {
	ListModels(ctx context.Context) ([]openwebui.Model, error)
}

// Catalog caches the model list and falls back to a configured set when the
// server cannot be asked.
type Catalog struct {
	mu       sync.RWMutex
	lister   ModelLister
	fallback []openwebui.Model
	models   []openwebui.Model
	lastErr  error
	logger   *slog.Logger
}

// NewCatalog creates a catalog. fallback ids are used when listing fails.
func NewCatalog(lister ModelLister, fallback []string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		lister:   lister,
		fallback: fallbackModels(fallback),
		logger:   logger.With("component", "catalog"),
	}
}

func fallbackModels(ids []string) []openwebui.Model {
	fb := make([]openwebui.Model, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			fb = append(fb, openwebui.Model{ID: id})
		}
	}
	return fb
}

// SetFallback replaces the fallback ids. The current list is untouched until
// the next failed Load.
func (c *Catalog) SetFallback(ids []string) {
	fb := fallbackModels(ids)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback = fb
}

// SetLister swaps the lister, for example after settings change.
func (c *Catalog) SetLister(l ModelLister) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lister = l
}

// Load fetches the model list. On failure it stores and returns the fallback
// models together with the error so callers can show both.
func (c *Catalog) Load(ctx context.Context) ([]openwebui.Model, error) {
	c.mu.RLock()
	lister := c.lister
	c.mu.RUnlock()

	models, err := lister.ListModels(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Warn("model list failed, using fallback", "error", err, "fallback", len(c.fallback))
		c.models = append([]openwebui.Model(nil), c.fallback...)
		c.lastErr = err
		return append([]openwebui.Model(nil), c.models...), err
	}
	c.logger.Info("model list loaded", "count", len(models))
	c.models = models
	c.lastErr = nil
	return append([]openwebui.Model(nil), models...), nil
}

// Models returns the last loaded list.
func (c *Catalog) Models() []openwebui.Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]openwebui.Model(nil), c.models...)
}

// Err returns the error of the last Load, if any.
func (c *Catalog) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Contains reports whether id is in the last loaded list.
func (c *Catalog) Contains(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, m := range c.models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Default returns the first model, or "" when the list is empty.
func (c *Catalog) Default() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.models) == 0 {
		return ""
	}
	return c.models[0].ID
}
