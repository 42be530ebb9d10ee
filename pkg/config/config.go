// Package config loads gamehost.yaml / gamehost.toml: daemon settings and
// named game launch profiles.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents a gamehost configuration file.
type Config struct {
	Version      int             `yaml:"version"                 toml:"version"                 json:"version"`
	Socket       string          `yaml:"socket,omitempty"        toml:"socket,omitempty"        json:"socket,omitempty"`
	LogLevel     string          `yaml:"log_level,omitempty"     toml:"log_level,omitempty"     json:"log_level,omitempty"`
	LogFormat    string          `yaml:"log_format,omitempty"    toml:"log_format,omitempty"    json:"log_format,omitempty"`
	PollInterval Duration        `yaml:"poll_interval,omitempty" toml:"poll_interval,omitempty" json:"poll_interval,omitempty"`
	Root         string          `yaml:"root,omitempty"          toml:"root,omitempty"          json:"root,omitempty"`
	IPC          IPC             `yaml:"ipc"                     toml:"ipc"                     json:"ipc"`
	Games        map[string]Game `yaml:"games,omitempty"         toml:"games,omitempty"         json:"games,omitempty"`
}

// IPC controls the emulator's stderr control protocol.
type IPC struct {
	// AutoRun sends RUN as soon as the handshake completes.
	AutoRun bool `yaml:"auto_run" toml:"auto_run" json:"auto_run"`
}

// Game is a named launch profile.
type Game struct {
	Exe  string            `yaml:"exe"            toml:"exe"            json:"exe"`
	Dir  string            `yaml:"dir,omitempty"  toml:"dir,omitempty"  json:"dir,omitempty"`
	Args []string          `yaml:"args,omitempty" toml:"args,omitempty" json:"args,omitempty"`
	Env  map[string]string `yaml:"env,omitempty"  toml:"env,omitempty"  json:"env,omitempty"`
}

// Duration is a time.Duration written as "2s", "500ms", ...
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// Defaults.
const (
	DefaultPollInterval = time.Second
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	FileName            = "gamehost.yaml"
)

// Default returns a configuration with every field at its default.
func Default() *Config {
	return &Config{
		Version:      1,
		Socket:       DefaultSocket(),
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		PollInterval: Duration(DefaultPollInterval),
		Games:        map[string]Game{},
	}
}

// Poll returns the poll interval, falling back to the default.
func (c *Config) Poll() time.Duration {
	if c.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return time.Duration(c.PollInterval)
}

// DefaultSocket is $XDG_RUNTIME_DIR/gamehost.sock, or a per-user path in
// the temp dir when no runtime dir is set.
func DefaultSocket() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "gamehost.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("gamehost-%d.sock", os.Getuid()))
}

// DefaultPath is $XDG_CONFIG_HOME/gamehost/gamehost.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return FileName
	}
	return filepath.Join(dir, "gamehost", FileName)
}
