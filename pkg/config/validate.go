package config

import (
	"fmt"
	"slices"
	"strings"
)

// Validate checks the config for structural correctness.
func Validate(c *Config) []error {
	var errs []error

	if c.Version != 1 {
		errs = append(errs, fmt.Errorf("version must be 1, got %d", c.Version))
	}
	if c.Socket == "" {
		errs = append(errs, fmt.Errorf("socket is required"))
	}
	if _, err := ParseLogLevel(c.LogLevel); c.LogLevel != "" && err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("poll_interval must not be negative"))
	}

	names := make([]string, 0, len(c.Games))
	for name := range c.Games {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		g := c.Games[name]
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("game name must not be empty"))
		}
		if g.Exe == "" {
			errs = append(errs, fmt.Errorf("game %q: exe is required", name))
		}
		for k := range g.Env {
			if k == "" || strings.Contains(k, "=") {
				errs = append(errs, fmt.Errorf("game %q: invalid env name %q", name, k))
			}
		}
	}

	return errs
}
