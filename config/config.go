// Package config loads the compiler's TOML configuration file, grouped
// into separate tables for unrelated settings: `[compile]` (legalization
// policy), `[emit]` (code-generation shape) and `[log]` (diagnostics).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"

	"github.com/qpuforge/qpuc/asm"
	"github.com/qpuforge/qpuc/intrinsics"
)

// Config is the on-disk TOML shape. Field validation and conversion to the
// types the rest of the compiler wants live in ToOptions, keeping a raw
// decoded Config separate from a validated in-memory form.
type Config struct {
	Compile struct {
		MathType     string `toml:"math_type"`     // strict | fast | full
		OutputMode   string `toml:"output_mode"`   // binary | hex | assembler
		Frontend     string `toml:"frontend"`       // name of the front end to parse input with
		VerifyOutput bool   `toml:"verify_output"`
	} `toml:"compile"`

	Emit struct {
		IncludeComments bool `toml:"include_comments"`
		StackFrameSize  int  `toml:"stack_frame_size"`
	} `toml:"emit"`

	Log struct {
		Level string `toml:"level"` // quiet | info | debug
		File  string `toml:"file"`  // not read by cmd/qpuc, which always logs to stderr
	} `toml:"log"`
}

// LogLevel mirrors Config.Log.Level once validated.
type LogLevel int

const (
	LogQuiet LogLevel = iota
	LogInfo
	LogDebug
)

// Options is the validated, in-memory form ToOptions produces: everything
// downstream (package compile, package asm) consumes this rather than the
// raw TOML Config, so an invalid string setting is caught once at load time
// instead of at every use site.
type Options struct {
	MathType     MathType
	OutputMode   asm.OutputMode
	Frontend     string
	VerifyOutput bool

	IncludeComments bool
	StackFrameSize  int

	LogLevel LogLevel
	LogFile  string
}

// MathType selects fdiv's legalization strategy.
type MathType int

const (
	MathStrict MathType = iota // SFU reciprocal seed refined by five Newton-Raphson steps
	MathFast                   // a single SFU reciprocal multiply is acceptable
	MathFull                   // a single SFU reciprocal multiply, plus fast-math
)

func (m MathType) String() string {
	switch m {
	case MathStrict:
		return "strict"
	case MathFast:
		return "fast"
	case MathFull:
		return "full"
	default:
		return "?"
	}
}

// IntrinsicsConfig converts the math-type policy into the Config the
// intrinsics pass consults.
func (o *Options) IntrinsicsConfig() intrinsics.Config {
	return intrinsics.Config{
		AllowReciprocal: o.MathType == MathFast || o.MathType == MathFull,
		FastMath:        o.MathType == MathFull,
	}
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Compile.MathType = "strict"
	cfg.Compile.OutputMode = "binary"
	cfg.Compile.Frontend = "textir"
	cfg.Compile.VerifyOutput = true
	cfg.Emit.IncludeComments = true
	cfg.Emit.StackFrameSize = 0
	cfg.Log.Level = "info"
	cfg.Log.File = ""
	return cfg
}

// ToOptions validates c and converts it to an Options. Unknown enum-valued
// strings are reported as errors rather than silently falling back to a
// default, since a misconfigured math_type or output_mode would otherwise
// silently change code generation.
func (c *Config) ToOptions() (*Options, error) {
	opts := &Options{
		Frontend:        c.Compile.Frontend,
		VerifyOutput:    c.Compile.VerifyOutput,
		IncludeComments: c.Emit.IncludeComments,
		StackFrameSize:  c.Emit.StackFrameSize,
		LogFile:         c.Log.File,
	}

	switch c.Compile.MathType {
	case "", "strict":
		opts.MathType = MathStrict
	case "fast":
		opts.MathType = MathFast
	case "full":
		opts.MathType = MathFull
	default:
		return nil, fmt.Errorf("config: unknown compile.math_type %q", c.Compile.MathType)
	}

	switch c.Compile.OutputMode {
	case "", "binary":
		opts.OutputMode = asm.Binary
	case "hex":
		opts.OutputMode = asm.Hex
	case "assembler":
		opts.OutputMode = asm.Assembler
	default:
		return nil, fmt.Errorf("config: unknown compile.output_mode %q", c.Compile.OutputMode)
	}

	switch c.Log.Level {
	case "", "quiet":
		opts.LogLevel = LogQuiet
	case "info":
		opts.LogLevel = LogInfo
	case "debug":
		opts.LogLevel = LogDebug
	default:
		return nil, fmt.Errorf("config: unknown log.level %q", c.Log.Level)
	}

	if opts.StackFrameSize < 0 {
		return nil, fmt.Errorf("config: emit.stack_frame_size must be >= 0, got %d", opts.StackFrameSize)
	}

	return opts, nil
}

// DefaultPath returns the platform-specific config file path used when
// -config isn't given explicitly.
func DefaultPath() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "qpuc")

	case "darwin", "linux":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.toml"
		}
		configDir = filepath.Join(homeDir, ".config", "qpuc")

	default:
		return "config.toml"
	}

	if err := os.MkdirAll(configDir, 0750); err != nil {
		return "config.toml"
	}
	return filepath.Join(configDir, "config.toml")
}

// Load reads and decodes the config file at path, returning defaults for any
// table or field it omits. A missing file is not an error: it yields
// DefaultConfig() unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return cfg, nil
}
