// Package service manages the gamehostd systemd user units.
package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	unitName   = "gamehostd.service"
	socketName = "gamehostd.socket"
)

// UnitContents returns the service unit for the given binary path and
// optional config file.
func UnitContents(binaryPath, configPath string) string {
	start := binaryPath
	if configPath != "" {
		start += " --config " + configPath
	}
	return fmt.Sprintf(`[Unit]
Description=gamehost daemon for emulated game processes
Requires=%s
After=%s

[Service]
Type=notify
ExecStart=%s
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`, socketName, socketName, start)
}

// SocketContents returns the socket unit listening on the default
// runtime socket.
func SocketContents() string {
	return `[Unit]
Description=gamehost daemon socket

[Socket]
ListenStream=%t/gamehost.sock
SocketMode=0600

[Install]
WantedBy=sockets.target
`
}

func unitDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	return filepath.Join(configDir, "systemd", "user"), nil
}

// UnitPath returns the path to the systemd user service unit.
func UnitPath() (string, error) {
	dir, err := unitDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, unitName), nil
}

// SocketPath returns the path to the systemd user socket unit.
func SocketPath() (string, error) {
	dir, err := unitDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, socketName), nil
}

// WriteUnits writes both unit files for binaryPath.
func WriteUnits(binaryPath, configPath string) error {
	unitPath, err := UnitPath()
	if err != nil {
		return err
	}
	socketPath, err := SocketPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(unitPath), 0o755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	if err := os.WriteFile(unitPath, []byte(UnitContents(binaryPath, configPath)), 0o644); err != nil {
		return fmt.Errorf("cannot write unit file: %w", err)
	}
	if err := os.WriteFile(socketPath, []byte(SocketContents()), 0o644); err != nil {
		return fmt.Errorf("cannot write socket unit: %w", err)
	}
	return nil
}

// Install writes the units, reloads systemd and enables the socket so the
// daemon starts on first connection.
func Install(configPath string) error {
	binaryPath, err := exec.LookPath("gamehostd")
	if err != nil {
		return fmt.Errorf("gamehostd not found in PATH: %w", err)
	}
	binaryPath, err = filepath.Abs(binaryPath)
	if err != nil {
		return fmt.Errorf("cannot resolve gamehostd path: %w", err)
	}

	if err := WriteUnits(binaryPath, configPath); err != nil {
		return err
	}
	if err := systemctl("daemon-reload"); err != nil {
		return err
	}
	return systemctl("enable", "--now", socketName)
}

// Uninstall stops and disables both units, removes them and reloads systemd.
func Uninstall() error {
	// not running is fine
	_ = systemctl("stop", unitName, socketName)
	_ = systemctl("disable", socketName)

	for _, path := range []func() (string, error){UnitPath, SocketPath} {
		p, err := path()
		if err != nil {
			return err
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("cannot remove %s: %w", p, err)
		}
	}

	return systemctl("daemon-reload")
}

// Status returns a human-readable status string.
func Status(socketPath string) string {
	var lines []string

	if _, err := os.Stat(socketPath); err == nil {
		lines = append(lines, "socket: active ("+socketPath+")")
	} else {
		lines = append(lines, "socket: inactive ("+socketPath+")")
	}

	unitPath, err := UnitPath()
	if err == nil {
		if _, statErr := os.Stat(unitPath); statErr == nil {
			for _, unit := range []string{socketName, unitName} {
				lines = append(lines, unit+": "+isActive(unit))
			}
		} else {
			lines = append(lines, "systemd user service: not installed")
		}
	}

	return strings.Join(lines, "\n")
}

func isActive(unit string) string {
	out, err := exec.Command("systemctl", "--user", "is-active", unit).Output()
	state := strings.TrimSpace(string(out))
	if err != nil && state == "" {
		state = "unknown"
	}
	return state
}

func systemctl(args ...string) error {
	cmd := exec.Command("systemctl", append([]string{"--user"}, args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl --user %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
