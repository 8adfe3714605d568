package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qpuforge/qpuc/asm"
)

func TestDefaultConfigToOptions(t *testing.T) {
	cfg := DefaultConfig()
	opts, err := cfg.ToOptions()
	require.NoError(t, err)
	assert.Equal(t, MathStrict, opts.MathType)
	assert.Equal(t, asm.Binary, opts.OutputMode)
	assert.Equal(t, "textir", opts.Frontend)
	assert.True(t, opts.VerifyOutput)
}

func TestToOptionsRejectsUnknownMathType(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compile.MathType = "blazing"
	_, err := cfg.ToOptions()
	require.Error(t, err)
}

func TestToOptionsRejectsUnknownOutputMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Compile.OutputMode = "punchcard"
	_, err := cfg.ToOptions()
	require.Error(t, err)
}

func TestToOptionsRejectsNegativeStackFrameSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Emit.StackFrameSize = -8
	_, err := cfg.ToOptions()
	require.Error(t, err)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, "strict", cfg.Compile.MathType)
}

func TestLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := "[compile]\nmath_type = \"full\"\noutput_mode = \"hex\"\n\n[log]\nlevel = \"debug\"\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	opts, err := cfg.ToOptions()
	require.NoError(t, err)
	assert.Equal(t, MathFull, opts.MathType)
	assert.Equal(t, asm.Hex, opts.OutputMode)
	assert.Equal(t, LogDebug, opts.LogLevel)
}

func TestDefaultPathEndsInConfigToml(t *testing.T) {
	assert.Equal(t, "config.toml", filepath.Base(DefaultPath()))
}
