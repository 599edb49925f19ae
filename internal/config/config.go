// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/webui-chat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete webui-chat configuration.
type Config struct {
	Version string        `toml:"version" json:"version"`
	Server  ServerConfig  `toml:"server" json:"server"`
	Chat    ChatConfig    `toml:"chat" json:"chat"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Log     LogConfig     `toml:"log" json:"log"`
}

// ServerConfig holds connection settings.
type ServerConfig struct {
	// URL is the Open WebUI root, e.g. http://localhost:3000
	URL string `toml:"url" json:"url"`

	// APIKey is sent as a bearer token; a "Bearer " prefix is accepted
	APIKey string `toml:"api_key" json:"api_key"`

	// TimeoutSecs bounds non-streaming requests
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`

	// StopTimeoutMs bounds the stop request sent on abort
	StopTimeoutMs int `toml:"stop_timeout_ms" json:"stop_timeout_ms"`
}

// ChatConfig holds conversation settings.
type ChatConfig struct {
	Model          string   `toml:"model" json:"model"`
	Stream         bool     `toml:"stream" json:"stream"`
	CommandPrefix  string   `toml:"command_prefix" json:"command_prefix"`
	FallbackModels []string `toml:"fallback_models" json:"fallback_models"`
	RenderMarkdown bool     `toml:"render_markdown" json:"render_markdown"`
}

// StorageConfig holds transcript storage settings.
type StorageConfig struct {
	Enabled  bool   `toml:"enabled" json:"enabled"`
	Path     string `toml:"path" json:"path"`
	AutoSave bool   `toml:"auto_save" json:"auto_save"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Path  string `toml:"path" json:"path"`
	Level string `toml:"level" json:"level"`
}

// CurrentVersion is written to new config files.
const CurrentVersion = "1"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			URL:           "http://localhost:3000",
			TimeoutSecs:   120,
			StopTimeoutMs: 1000,
		},
		Chat: ChatConfig{
			Stream:         true,
			CommandPrefix:  ">",
			RenderMarkdown: true,
		},
		Storage: StorageConfig{
			Enabled:  true,
			AutoSave: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Timeout returns the request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Server.TimeoutSecs) * time.Second
}

// StopTimeout returns the stop request bound as a duration.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Server.StopTimeoutMs) * time.Millisecond
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// HomeEnv overrides the configuration directory.
const HomeEnv = "WEBUI_CHAT_HOME"

// ConfigDir returns the webui-chat configuration directory path.
func ConfigDir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".webui-chat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// DataPath resolves name inside the config directory unless path is set.
func DataPath(path, name string) (string, error) {
	if path != "" {
		return path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ensureSecurePermissions tightens a config file to 0600 since it may hold
// an API key.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	var loadErr error

	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		if err != nil {
			loadErr = err
			break
		}
		return cfg, nil
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, loadErr
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file over the defaults,
// then applies environment overrides and validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var b strings.Builder
	b.WriteString("# webui-chat configuration file\n")
	b.WriteString("# Generated by webui-chat - edit with care\n\n")
	if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(b.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes the configuration as JSON atomically with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.URL == "" {
		errs = append(errs, ValidationError{Field: "server.url", Message: "must not be empty"})
	} else if u, err := url.Parse(c.Server.URL); err != nil {
		errs = append(errs, ValidationError{Field: "server.url", Message: fmt.Sprintf("invalid URL: %v", err)})
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, ValidationError{Field: "server.url", Message: fmt.Sprintf("scheme must be http or https, got '%s'", u.Scheme)})
	} else if u.Host == "" {
		errs = append(errs, ValidationError{Field: "server.url", Message: "missing host"})
	}

	if c.Server.TimeoutSecs < 1 || c.Server.TimeoutSecs > 3600 {
		errs = append(errs, ValidationError{Field: "server.timeout_secs", Message: fmt.Sprintf("must be between 1 and 3600, got %d", c.Server.TimeoutSecs)})
	}
	if c.Server.StopTimeoutMs < 1 || c.Server.StopTimeoutMs > 60000 {
		errs = append(errs, ValidationError{Field: "server.stop_timeout_ms", Message: fmt.Sprintf("must be between 1 and 60000, got %d", c.Server.StopTimeoutMs)})
	}

	if p := c.Chat.CommandPrefix; p == "" || strings.ContainsAny(p, " \t\r\n") {
		errs = append(errs, ValidationError{Field: "chat.command_prefix", Message: "must be a non-empty token without whitespace"})
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{Field: "log.level", Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level)})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	defaults := Default()
	if c.Version == "" {
		c.Version = defaults.Version
	}
	if c.Server.URL == "" {
		c.Server.URL = defaults.Server.URL
	}
	c.Server.URL = strings.TrimRight(strings.TrimSpace(c.Server.URL), "/")
	if c.Server.TimeoutSecs == 0 {
		c.Server.TimeoutSecs = defaults.Server.TimeoutSecs
	}
	if c.Server.StopTimeoutMs == 0 {
		c.Server.StopTimeoutMs = defaults.Server.StopTimeoutMs
	}
	if c.Chat.CommandPrefix == "" {
		c.Chat.CommandPrefix = defaults.Chat.CommandPrefix
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - WEBUI_CHAT_URL: overrides server.url
//   - WEBUI_CHAT_API_KEY: overrides server.api_key
//   - WEBUI_CHAT_MODEL: overrides chat.model
//   - WEBUI_CHAT_STREAM: overrides chat.stream (1/true/yes or 0/false/no)
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("WEBUI_CHAT_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("WEBUI_CHAT_API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := os.Getenv("WEBUI_CHAT_MODEL"); v != "" {
		c.Chat.Model = v
	}
	if v := os.Getenv("WEBUI_CHAT_STREAM"); v != "" {
		if b, ok := parseBool(v); ok {
			c.Chat.Stream = b
		}
	}
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "server.url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "chat.stream").
// String values are converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})
	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strings.TrimSpace(strVal), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			boolVal, ok := parseBool(strVal)
			if !ok {
				return fmt.Errorf("invalid boolean value: %q", strVal)
			}
			field.SetBool(boolVal)
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, item := range strings.Split(strVal, ",") {
					if item = strings.TrimSpace(item); item != "" {
						items = append(items, item)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.IsValid() && val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.IsValid() && val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation, sorted.
func GetAllKeys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		sectionKey := tomlName(section)
		if section.Type.Kind() != reflect.Struct {
			keys = append(keys, sectionKey)
			continue
		}
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, sectionKey+"."+tomlName(section.Type.Field(j)))
		}
	}
	sort.Strings(keys)
	return keys
}

func tomlName(f reflect.StructField) string {
	if tag := f.Tag.Get("toml"); tag != "" {
		return strings.Split(tag, ",")[0]
	}
	return strings.ToLower(f.Name)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Chat.FallbackModels != nil {
		clone.Chat.FallbackModels = append([]string(nil), c.Chat.FallbackModels...)
	}
	return &clone
}

// FallbackModelIDs returns the models offered when the server cannot list
// them: the configured model first, then chat.fallback_models, without blanks
// or duplicates.
func (c *Config) FallbackModelIDs() []string {
	ids := make([]string, 0, len(c.Chat.FallbackModels)+1)
	seen := make(map[string]bool)
	for _, id := range append([]string{c.Chat.Model}, c.Chat.FallbackModels...) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// String returns a JSON rendering with the API key redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Server.APIKey != "" {
		safe.Server.APIKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfigMu.Lock()
		globalConfig = cfg
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
