package config

import (
	"fmt"
	"strconv"
	"time"
)

// Keys lists the dot-notation keys accepted by Get and Set.
var Keys = []string{
	"pool.size",
	"pool.seed",
	"run.steps",
	"run.interval",
	"run.initial_delay",
	"run.watch",
	"render.mode",
	"render.trace_path",
	"render.compress",
	"render.listen",
	"render.bar_scale",
	"render.clear",
	"render.open_browser",
	"mcp.audit",
	"logging.level",
	"logging.dir",
}

// Get retrieves a configuration value by dot-notation key.
func (c *DrawloopConfig) Get(key string) (any, bool) {
	switch key {
	case "pool.size":
		return c.Pool.Size, true
	case "pool.seed":
		return c.Pool.Seed, true
	case "run.steps":
		return c.Run.Steps, true
	case "run.interval":
		return c.Run.Interval.String(), true
	case "run.initial_delay":
		return c.Run.InitialDelay.String(), true
	case "run.watch":
		return c.Run.Watch, true
	case "render.mode":
		return c.Render.Mode, true
	case "render.trace_path":
		return c.Render.TracePath, true
	case "render.compress":
		return c.Render.Compress, true
	case "render.listen":
		return c.Render.Listen, true
	case "render.bar_scale":
		return c.Render.BarScale, true
	case "render.clear":
		return c.Render.Clear, true
	case "render.open_browser":
		return c.Render.OpenBrowser, true
	case "mcp.audit":
		return c.MCP.Audit, true
	case "logging.level":
		return c.Logging.Level, true
	case "logging.dir":
		return c.Logging.Dir, true
	default:
		return nil, false
	}
}

// Set parses value and stores it under key. The result is validated as a
// whole; on failure c is left unchanged.
func (c *DrawloopConfig) Set(key, value string) error {
	next := *c
	if err := next.set(key, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

func (c *DrawloopConfig) set(key, value string) error {
	switch key {
	case "pool.size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid pool size: %s", value)
		}
		c.Pool.Size = n
	case "pool.seed":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed: %s (must be a non-negative integer)", value)
		}
		c.Pool.Seed = n
	case "run.steps":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid step count: %s", value)
		}
		c.Run.Steps = n
	case "run.interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		c.Run.Interval = Duration(d)
	case "run.initial_delay":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		c.Run.InitialDelay = Duration(d)
	case "run.watch":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.Run.Watch = b
	case "render.mode":
		c.Render.Mode = value
	case "render.trace_path":
		c.Render.TracePath = value
	case "render.compress":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.Render.Compress = b
	case "render.listen":
		c.Render.Listen = value
	case "render.bar_scale":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid bar scale: %s", value)
		}
		c.Render.BarScale = f
	case "render.clear":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.Render.Clear = b
	case "render.open_browser":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.Render.OpenBrowser = b
	case "mcp.audit":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.MCP.Audit = b
	case "logging.level":
		c.Logging.Level = value
	case "logging.dir":
		c.Logging.Dir = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid boolean for %s: %s", key, value)
	}
	return b, nil
}
