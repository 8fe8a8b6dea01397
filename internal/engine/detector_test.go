package engine

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}
	dir := t.TempDir()

	exe := filepath.Join(dir, "stockfish")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o700))
	got, err := ResolveBinary(exe)
	require.NoError(t, err)
	assert.Equal(t, exe, got)

	plain := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(plain, []byte("x"), 0o600))
	_, err = ResolveBinary(plain)
	assert.ErrorContains(t, err, "not executable")

	_, err = ResolveBinary(dir)
	assert.ErrorContains(t, err, "is a directory")

	_, err = ResolveBinary("definitely-not-an-engine-binary")
	assert.ErrorContains(t, err, "not found in PATH")
}

func TestDetectEnginePrefersConfigured(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}
	exe := filepath.Join(t.TempDir(), "myengine")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o700))

	found, err := DetectEngine(exe)
	require.NoError(t, err)
	assert.Equal(t, exe, found.BinaryPath)
}

func TestInstallationInstructions(t *testing.T) {
	assert.Contains(t, GetInstallationInstructions(), "CHESS_STUDY_ENGINE_PATH")
}
