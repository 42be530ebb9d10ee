package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvSocket = "GAMEHOST_SOCKET"
	EnvLog    = "GAMEHOST_LOG"
)

// Load reads the config at path. A missing file yields Default() with
// environment overrides applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		applyEnv(cfg)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg *Config
	if isTOML(path) {
		cfg, err = ParseTOML(data)
	} else {
		cfg, err = Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	applyEnv(cfg)
	return cfg, nil
}

// Parse decodes YAML config data and expands ${root}.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	interpolate(cfg)
	return cfg, nil
}

// ParseTOML decodes TOML config data and expands ${root}.
func ParseTOML(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	interpolate(cfg)
	return cfg, nil
}

// Save writes cfg to path as YAML, or TOML for a .toml path.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvSocket); v != "" {
		cfg.Socket = v
	}
	if v := os.Getenv(EnvLog); v != "" {
		cfg.LogLevel = v
	}
}

// interpolate replaces ${root} in game exe, dir and args.
func interpolate(cfg *Config) {
	if cfg.Root == "" {
		return
	}
	expand := func(s string) string { return strings.ReplaceAll(s, "${root}", cfg.Root) }
	for name, g := range cfg.Games {
		g.Exe = expand(g.Exe)
		g.Dir = expand(g.Dir)
		for i, a := range g.Args {
			g.Args[i] = expand(a)
		}
		cfg.Games[name] = g
	}
}
