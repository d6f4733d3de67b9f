package config

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	config := Default()

	if config.Pool.Size != 16 {
		t.Errorf("expected Pool.Size 16, got %d", config.Pool.Size)
	}
	if config.Pool.Seed != 0 {
		t.Errorf("expected Pool.Seed 0, got %d", config.Pool.Seed)
	}
	if config.Run.Steps != 64 {
		t.Errorf("expected Run.Steps 64, got %d", config.Run.Steps)
	}
	if config.Run.Interval.Std() != 10*time.Millisecond {
		t.Errorf("expected Interval 10ms, got %v", config.Run.Interval)
	}
	if config.Run.InitialDelay.Std() != time.Second {
		t.Errorf("expected InitialDelay 1s, got %v", config.Run.InitialDelay)
	}
	if config.Render.Mode != ModeTerminal {
		t.Errorf("expected Render.Mode 'terminal', got '%s'", config.Render.Mode)
	}
	if config.Render.BarScale != 100 {
		t.Errorf("expected BarScale 100, got %v", config.Render.BarScale)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("expected default config to be valid, got: %v", err)
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
pool:
  size: 4
  seed: 99
run:
  steps: 3
  interval: 250ms
  initial_delay: 0
render:
  mode: trace
  trace_path: ${DRAWLOOP_TEST_DIR}/run.trace
  compress: true
logging:
  level: debug
`)
	t.Setenv("DRAWLOOP_TEST_DIR", "/tmp/traces")

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Pool.Size != 4 || config.Pool.Seed != 99 {
		t.Errorf("pool = %+v, want size 4 seed 99", config.Pool)
	}
	if config.Run.Steps != 3 {
		t.Errorf("expected Steps 3, got %d", config.Run.Steps)
	}
	if config.Run.Interval.Std() != 250*time.Millisecond {
		t.Errorf("expected Interval 250ms, got %v", config.Run.Interval)
	}
	if config.Run.InitialDelay != 0 {
		t.Errorf("expected InitialDelay 0, got %v", config.Run.InitialDelay)
	}
	if config.Render.TracePath != "/tmp/traces/run.trace" {
		t.Errorf("expected expanded TracePath, got %q", config.Render.TracePath)
	}
	if !config.Render.Compress {
		t.Error("expected Compress to be true")
	}
	// Untouched sections keep their defaults.
	if config.Render.BarScale != 100 {
		t.Errorf("expected default BarScale, got %v", config.Render.BarScale)
	}
	if !config.DecisionsEnabled() {
		t.Error("expected debug level to enable decisions")
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFromFile_TOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.toml", `
[pool]
size = 8

[run]
steps = 20
interval = "1ms"

[render]
mode = "web"
listen = "127.0.0.1:9000"
`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.Pool.Size != 8 || config.Run.Steps != 20 {
		t.Errorf("shape = %d/%d, want 8/20", config.Pool.Size, config.Run.Steps)
	}
	if config.Run.Interval.Std() != time.Millisecond {
		t.Errorf("expected Interval 1ms, got %v", config.Run.Interval)
	}
	if config.Render.Mode != ModeWeb || config.Render.Listen != "127.0.0.1:9000" {
		t.Errorf("render = %+v", config.Render)
	}
	if config.Run.InitialDelay.Std() != time.Second {
		t.Errorf("expected default InitialDelay, got %v", config.Run.InitialDelay)
	}
}

func TestLoadFromFile_SchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unknown key", "config.yaml", "pool:\n  colour: red\n"},
		{"pool too small", "config.yaml", "pool:\n  size: 1\n"},
		{"bad mode", "config.yaml", "render:\n  mode: hologram\n"},
		{"bad duration", "config.yaml", "run:\n  interval: soon\n"},
		{"wrong type", "config.toml", "[run]\nsteps = \"many\"\n"},
		{"unknown section", "config.toml", "[llm]\nprovider = \"x\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.file, tt.content)
			_, err := LoadFromFile(path)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("LoadFromFile() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadFromFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeFile(t, dir, "broken.yaml", "pool: [unterminated\n")
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for invalid YAML")
	}

	path = writeFile(t, dir, "config.json", "{}")
	if _, err := LoadFromFile(path); err == nil || !strings.Contains(err.Error(), "unsupported config format") {
		t.Errorf("expected unsupported format error, got %v", err)
	}

	path = writeFile(t, dir, "empty.yaml", "")
	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("empty file should load defaults: %v", err)
	}
	if config.Pool.Size != 16 {
		t.Errorf("expected default pool size, got %d", config.Pool.Size)
	}
}

func TestLoadPath_DefaultLocation(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("DRAWLOOP_POOL_SIZE", "")

	// No file: defaults.
	config, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Pool.Size != 16 {
		t.Errorf("expected default pool size, got %d", config.Pool.Size)
	}

	if err := os.MkdirAll(filepath.Join(home, ".drawloop"), 0700); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(home, ".drawloop"), "config.toml", "[pool]\nsize = 5\n")

	path, found, err := DefaultPath()
	if err != nil || !found || filepath.Base(path) != "config.toml" {
		t.Fatalf("DefaultPath() = %q, %v, %v", path, found, err)
	}
	config, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Pool.Size != 5 {
		t.Errorf("expected pool size from file, got %d", config.Pool.Size)
	}

	if _, err := LoadPath(filepath.Join(home, "nope.yaml")); err == nil {
		t.Error("expected error for explicit missing path")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DRAWLOOP_POOL_SIZE", "7")
	t.Setenv("DRAWLOOP_SEED", "12345")
	t.Setenv("DRAWLOOP_STEPS", "9")
	t.Setenv("DRAWLOOP_INTERVAL", "5ms")
	t.Setenv("DRAWLOOP_RENDER_MODE", "none")
	t.Setenv("DRAWLOOP_TRACE_PATH", "/tmp/x.trace")
	t.Setenv("DRAWLOOP_LOG_LEVEL", "trace")

	config := Default()
	applyEnvOverrides(config)

	if config.Pool.Size != 7 || config.Pool.Seed != 12345 {
		t.Errorf("pool = %+v", config.Pool)
	}
	if config.Run.Steps != 9 || config.Run.Interval.Std() != 5*time.Millisecond {
		t.Errorf("run = %+v", config.Run)
	}
	if config.Render.Mode != ModeNone || config.Render.TracePath != "/tmp/x.trace" {
		t.Errorf("render = %+v", config.Render)
	}
	if config.Logging.Level != "trace" {
		t.Errorf("expected Logging.Level 'trace', got %q", config.Logging.Level)
	}
}

func TestEnvOverrides_IgnoresGarbage(t *testing.T) {
	t.Setenv("DRAWLOOP_POOL_SIZE", "lots")
	t.Setenv("DRAWLOOP_SEED", "-1")
	t.Setenv("DRAWLOOP_INTERVAL", "fast")

	config := Default()
	applyEnvOverrides(config)

	if config.Pool.Size != 16 || config.Pool.Seed != 0 {
		t.Errorf("pool = %+v, want defaults", config.Pool)
	}
	if config.Run.Interval.Std() != 10*time.Millisecond {
		t.Errorf("interval = %v, want default", config.Run.Interval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DrawloopConfig)
	}{
		{"pool size 1", func(c *DrawloopConfig) { c.Pool.Size = 1 }},
		{"pool too large", func(c *DrawloopConfig) { c.Pool.Size = 5000 }},
		{"zero steps", func(c *DrawloopConfig) { c.Run.Steps = 0 }},
		{"negative interval", func(c *DrawloopConfig) { c.Run.Interval = -1 }},
		{"negative delay", func(c *DrawloopConfig) { c.Run.InitialDelay = -1 }},
		{"bad mode", func(c *DrawloopConfig) { c.Render.Mode = "hologram" }},
		{"trace without path", func(c *DrawloopConfig) { c.Render.Mode = ModeTrace }},
		{"zero bar scale", func(c *DrawloopConfig) { c.Render.BarScale = 0 }},
		{"nan bar scale", func(c *DrawloopConfig) { c.Render.BarScale = math.NaN() }},
		{"infinite bar scale", func(c *DrawloopConfig) { c.Render.BarScale = math.Inf(1) }},
		{"bad log level", func(c *DrawloopConfig) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			if err := config.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}

	for _, level := range []string{"", "trace", "debug", "info", "warn", "error"} {
		config := Default()
		config.Logging.Level = level
		if err := config.Validate(); err != nil {
			t.Errorf("level %q: unexpected error %v", level, err)
		}
	}
}

func TestDriverConfig(t *testing.T) {
	config := Default()
	config.Pool.Size = 4
	config.Run.Steps = 3
	got := config.DriverConfig()
	if got.PoolSize != 4 || got.TotalSteps != 3 {
		t.Errorf("DriverConfig() = %+v", got)
	}
}

func TestLogDir(t *testing.T) {
	config := Default()
	config.Logging.Dir = "/var/tmp/drawloop"
	if got := config.LogDir(); got != "/var/tmp/drawloop" {
		t.Errorf("LogDir() = %q", got)
	}

	home := t.TempDir()
	t.Setenv("HOME", home)
	config.Logging.Dir = ""
	if got := config.LogDir(); got != filepath.Join(home, ".drawloop") {
		t.Errorf("LogDir() = %q, want the config dir", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			config := Default()
			config.Pool.Size = 6
			config.Pool.Seed = 3
			config.Run.Interval = Duration(40 * time.Millisecond)
			config.Render.Mode = ModeNone

			path := filepath.Join(t.TempDir(), "sub", name)
			if err := config.Save(path); err != nil {
				t.Fatalf("Save: %v", err)
			}
			loaded, err := LoadFromFile(path)
			if err != nil {
				t.Fatalf("LoadFromFile: %v", err)
			}
			if *loaded != *config {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *loaded, *config)
			}
		})
	}
}

func TestGetSet(t *testing.T) {
	config := Default()

	for _, key := range Keys {
		if _, ok := config.Get(key); !ok {
			t.Errorf("Get(%q) not found", key)
		}
	}
	if _, ok := config.Get("pool.colour"); ok {
		t.Error("expected unknown key to be missing")
	}

	if err := config.Set("run.interval", "20ms"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, _ := config.Get("run.interval"); v != "20ms" {
		t.Errorf("run.interval = %v, want 20ms", v)
	}
	if err := config.Set("render.compress", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !config.Render.Compress {
		t.Error("expected Compress to be set")
	}
	for _, value := range []string{"1", "TRUE", "t"} {
		config.Run.Watch = false
		if err := config.Set("run.watch", value); err != nil {
			t.Fatalf("Set(run.watch, %q): %v", value, err)
		}
		if !config.Run.Watch {
			t.Errorf("Set(run.watch, %q) did not enable watch", value)
		}
	}
	config.Run.Watch = false

	bad := []struct{ key, value string }{
		{"pool.size", "1"},
		{"pool.size", "many"},
		{"pool.seed", "-4"},
		{"run.interval", "soon"},
		{"render.mode", "trace"},
		{"render.bar_scale", "wide"},
		{"render.bar_scale", "NaN"},
		{"render.bar_scale", "+Inf"},
		{"run.watch", "yes"},
		{"mcp.audit", "on"},
		{"nope", "1"},
	}
	for _, b := range bad {
		before := *config
		if err := config.Set(b.key, b.value); err == nil {
			t.Errorf("Set(%q, %q) should fail", b.key, b.value)
		}
		if *config != before {
			t.Errorf("Set(%q, %q) changed the config on failure", b.key, b.value)
		}
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Std() != 90*time.Second {
		t.Errorf("got %v, want 1m30s", d)
	}
	if b, _ := d.MarshalText(); string(b) != "1m30s" {
		t.Errorf("MarshalText = %q", b)
	}
	if err := d.UnmarshalText([]byte("ninety")); err == nil {
		t.Error("expected error for bad duration")
	}
}

func TestSchema_Compiles(t *testing.T) {
	if _, err := Schema(); err != nil {
		t.Fatalf("Schema: %v", err)
	}
	if !strings.Contains(SchemaJSON(), `"pool"`) {
		t.Error("schema document missing pool section")
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "pool:\n  size: 4\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var sizes []int
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(c *DrawloopConfig) {
			mu.Lock()
			sizes = append(sizes, c.Pool.Size)
			mu.Unlock()
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	// An invalid edit is skipped.
	writeFile(t, dir, "config.yaml", "pool:\n  size: 1\n")
	time.Sleep(300 * time.Millisecond)
	writeFile(t, dir, "config.yaml", "pool:\n  size: 9\n")

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(sizes)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sizes) == 0 {
		t.Fatal("expected at least one reload")
	}
	for _, s := range sizes {
		if s != 9 {
			t.Errorf("reloaded size %d, want only 9", s)
		}
	}
}
