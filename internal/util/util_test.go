// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_Basic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")

	require.NoError(t, AtomicWriteFile(path, []byte("model = \"llama3\"\n"), 0600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "model = \"llama3\"\n", string(data))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestAtomicWriteFile_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "settings.toml")

	require.NoError(t, AtomicWriteFile(path, []byte("x"), 0600))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestAtomicWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")

	require.NoError(t, AtomicWriteFile(path, []byte("first"), 0600))
	require.NoError(t, AtomicWriteFile(path, []byte("second"), 0600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  string
	}{
		{"fits", "llama3", 10, "llama3"},
		{"exact", "llama3", 6, "llama3"},
		{"ascii truncated", "qwen2.5-coder:14b", 10, "qwen2.5..."},
		{"zero width", "anything", 0, ""},
		{"tiny width no ellipsis", "abcdef", 2, "ab"},
		{"wide characters", "日本語のモデル", 7, "日本..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Truncate(tc.input, tc.width)
			assert.Equal(t, tc.want, got)
			assert.LessOrEqual(t, StringWidth(got), tc.width)
		})
	}
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab   ", PadRight("ab", 5))
	assert.Equal(t, "日本 ", PadRight("日本", 5))
	assert.Equal(t, "abcdef", PadRight("abcdef", 3))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "first line second line", Preview("first line\n\n  second\tline", 80))
	assert.Equal(t, "first...", Preview("first line\nsecond", 8))
}
