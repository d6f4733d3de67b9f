// Package config provides unified configuration loading for drawloop.
// It supports loading from YAML or TOML files and environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/drawloop/internal/constants"
	"github.com/nvandessel/drawloop/internal/driver"
	"github.com/nvandessel/drawloop/internal/logging"
)

// Render modes.
const (
	ModeTerminal = "terminal"
	ModeTrace    = "trace"
	ModeWeb      = "web"
	ModeWindow   = "window"
	ModeNone     = "none"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// DrawloopConfig contains all drawloop configuration settings.
type DrawloopConfig struct {
	Pool    PoolConfig    `json:"pool" yaml:"pool" toml:"pool"`
	Run     RunConfig     `json:"run" yaml:"run" toml:"run"`
	Render  RenderConfig  `json:"render" yaml:"render" toml:"render"`
	MCP     MCPConfig     `json:"mcp" yaml:"mcp" toml:"mcp"`
	Logging LoggingConfig `json:"logging" yaml:"logging" toml:"logging"`
}

// PoolConfig configures the sampling pool.
type PoolConfig struct {
	// Size is the number of items. At least 2.
	Size int `json:"size" yaml:"size" toml:"size"`

	// Seed seeds the random source. 0 seeds from the clock.
	Seed uint64 `json:"seed" yaml:"seed" toml:"seed"`
}

// RunConfig configures the driving loop.
type RunConfig struct {
	// Steps is the number of draws per run.
	Steps int `json:"steps" yaml:"steps" toml:"steps"`

	// Interval is the pause between draws.
	Interval Duration `json:"interval" yaml:"interval" toml:"interval"`

	// InitialDelay is waited once before the first draw of a run.
	InitialDelay Duration `json:"initial_delay" yaml:"initial_delay" toml:"initial_delay"`

	// Watch restarts the run whenever the config file changes.
	Watch bool `json:"watch" yaml:"watch" toml:"watch"`
}

// RenderConfig selects and tunes the renderer.
type RenderConfig struct {
	// Mode is one of terminal, trace, web, window or none.
	Mode string `json:"mode" yaml:"mode" toml:"mode"`

	// TracePath records every step to a trace file in any mode. Required
	// for trace mode.
	TracePath string `json:"trace_path,omitempty" yaml:"trace_path,omitempty" toml:"trace_path,omitempty"`

	// Compress zstd-compresses the trace body.
	Compress bool `json:"compress" yaml:"compress" toml:"compress"`

	// Listen is the web mode address.
	Listen string `json:"listen" yaml:"listen" toml:"listen"`

	// BarScale converts a weight into terminal columns.
	BarScale float64 `json:"bar_scale" yaml:"bar_scale" toml:"bar_scale"`

	// Clear erases the terminal between frames.
	Clear bool `json:"clear" yaml:"clear" toml:"clear"`

	// OpenBrowser opens the chart page when web mode starts.
	OpenBrowser bool `json:"open_browser" yaml:"open_browser" toml:"open_browser"`
}

// MCPConfig configures the MCP server.
type MCPConfig struct {
	// Audit writes one line per tool call to audit.jsonl in the config dir.
	Audit bool `json:"audit" yaml:"audit" toml:"audit"`
}

// LoggingConfig configures drawloop's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to <dir>/decisions.jsonl.
	Level string `json:"level" yaml:"level" toml:"level"`

	// Dir receives decisions.jsonl. Defaults to the config directory.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty" toml:"dir,omitempty"`
}

// Default returns a DrawloopConfig with sensible defaults.
func Default() *DrawloopConfig {
	return &DrawloopConfig{
		Pool: PoolConfig{
			Size: constants.DefaultPoolSize,
		},
		Run: RunConfig{
			Steps:        constants.DefaultTotalSteps,
			Interval:     Duration(constants.DefaultInterval),
			InitialDelay: Duration(constants.DefaultInitialDelay),
		},
		Render: RenderConfig{
			Mode:     ModeTerminal,
			Listen:   constants.DefaultListenAddr,
			BarScale: constants.DefaultBarScale,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Dir returns ~/.drawloop.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".drawloop"), nil
}

// DefaultPath returns the first existing ~/.drawloop/config.{yaml,yml,toml}.
// If none exists it returns the YAML path and false.
func DefaultPath() (string, bool, error) {
	dir, err := Dir()
	if err != nil {
		return "", false, err
	}
	for _, name := range []string{"config.yaml", "config.yml", "config.toml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, true, nil
		}
	}
	return filepath.Join(dir, "config.yaml"), false, nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.drawloop/config.{yaml,toml} -> environment variables
func Load() (*DrawloopConfig, error) {
	return LoadPath("")
}

// LoadPath is Load with an explicit file. An empty path falls back to the
// default locations; an explicit path must exist.
func LoadPath(path string) (*DrawloopConfig, error) {
	config := Default()

	if path == "" {
		p, found, err := DefaultPath()
		if err == nil && found {
			path = p
		}
	}
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a YAML (.yaml, .yml) or TOML (.toml)
// file. The document is checked against the schema before decoding.
func LoadFromFile(path string) (*DrawloopConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		var doc map[string]any
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		if err := validateDocument(doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case ".yaml", ".yml", "":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		if err := validateDocument(doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q (use .yaml or .toml)", ext)
	}

	config.Render.TracePath = expandEnvVars(config.Render.TracePath)
	config.Logging.Dir = expandEnvVars(config.Logging.Dir)
	return config, nil
}

// Save writes the configuration as YAML or TOML depending on the extension.
func (c *DrawloopConfig) Save(path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var buf bytes.Buffer
		enc := toml.NewEncoder(&buf)
		err = enc.Encode(c)
		data = buf.Bytes()
	default:
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *DrawloopConfig) Validate() error {
	if c.Pool.Size < 2 || c.Pool.Size > constants.MaxPoolSize {
		return fmt.Errorf("%w: pool.size must be between 2 and %d, got %d", ErrInvalid, constants.MaxPoolSize, c.Pool.Size)
	}
	if c.Run.Steps < 1 || c.Run.Steps > constants.MaxTotalSteps {
		return fmt.Errorf("%w: run.steps must be between 1 and %d, got %d", ErrInvalid, constants.MaxTotalSteps, c.Run.Steps)
	}
	if c.Run.Interval < 0 {
		return fmt.Errorf("%w: run.interval must be non-negative, got %v", ErrInvalid, c.Run.Interval)
	}
	if c.Run.InitialDelay < 0 {
		return fmt.Errorf("%w: run.initial_delay must be non-negative, got %v", ErrInvalid, c.Run.InitialDelay)
	}

	validModes := map[string]bool{ModeTerminal: true, ModeTrace: true, ModeWeb: true, ModeWindow: true, ModeNone: true}
	if !validModes[c.Render.Mode] {
		return fmt.Errorf("%w: invalid render mode: %s (valid: terminal, trace, web, window, none)", ErrInvalid, c.Render.Mode)
	}
	if c.Render.Mode == ModeTrace && c.Render.TracePath == "" {
		return fmt.Errorf("%w: render.trace_path is required for trace mode", ErrInvalid)
	}
	if c.Render.BarScale <= 0 || math.IsNaN(c.Render.BarScale) || math.IsInf(c.Render.BarScale, 0) {
		return fmt.Errorf("%w: render.bar_scale must be positive, got %v", ErrInvalid, c.Render.BarScale)
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("%w: invalid log level: %s (valid: trace, debug, info, warn, error, or empty for default)", ErrInvalid, c.Logging.Level)
	}

	return nil
}

// DriverConfig returns the run shape for driver.Configure.
func (c *DrawloopConfig) DriverConfig() driver.Config {
	return driver.Config{PoolSize: c.Pool.Size, TotalSteps: c.Run.Steps}
}

// LogDir returns the directory for decisions.jsonl and audit.jsonl.
func (c *DrawloopConfig) LogDir() string {
	if c.Logging.Dir != "" {
		return c.Logging.Dir
	}
	if dir, err := Dir(); err == nil {
		return dir
	}
	return "."
}

// DecisionsEnabled reports whether the level turns on decision logging.
func (c *DrawloopConfig) DecisionsEnabled() bool {
	return logging.ParseLevel(c.Logging.Level) < slog.LevelInfo
}

// applyEnvOverrides applies environment variable overrides to the config.
// Values that do not parse are ignored.
func applyEnvOverrides(config *DrawloopConfig) {
	if v := os.Getenv("DRAWLOOP_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Pool.Size = n
		}
	}

	if v := os.Getenv("DRAWLOOP_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Pool.Seed = n
		}
	}

	if v := os.Getenv("DRAWLOOP_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Run.Steps = n
		}
	}

	if v := os.Getenv("DRAWLOOP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Run.Interval = Duration(d)
		}
	}

	if v := os.Getenv("DRAWLOOP_RENDER_MODE"); v != "" {
		config.Render.Mode = v
	}

	if v := os.Getenv("DRAWLOOP_TRACE_PATH"); v != "" {
		config.Render.TracePath = v
	}

	if v := os.Getenv("DRAWLOOP_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
