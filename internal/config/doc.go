// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// webui-chat.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, validation and a file watcher.
//
// Configuration file locations (in order of precedence):
//   - ~/.webui-chat/config.toml
//   - ~/.webui-chat/config.json
//   - Built-in defaults
//
// WEBUI_CHAT_HOME replaces ~/.webui-chat.
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Printf("config: %v (using defaults)", err)
//	}
//	cfg.Set("chat.model", "llama3")
//	config.Save(cfg)
package config
