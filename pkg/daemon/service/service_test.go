package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestUnitContents(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   []string
	}{
		{"plain", "", []string{"ExecStart=/usr/local/bin/gamehostd\n", "Type=notify", "Requires=gamehostd.socket", "[Install]"}},
		{"with config", "/etc/gamehost.yaml", []string{"ExecStart=/usr/local/bin/gamehostd --config /etc/gamehost.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UnitContents("/usr/local/bin/gamehostd", tt.config)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("unit file missing %q:\n%s", w, got)
				}
			}
		})
	}
}

func TestSocketContents(t *testing.T) {
	got := SocketContents()
	if !strings.Contains(got, "ListenStream=%t/gamehost.sock") {
		t.Error("socket unit missing ListenStream")
	}
	if !strings.Contains(got, "WantedBy=sockets.target") {
		t.Error("socket unit missing install target")
	}
}

func TestUnitPath(t *testing.T) {
	path, err := UnitPath()
	if err != nil {
		t.Fatalf("UnitPath() error: %v", err)
	}
	if !strings.HasSuffix(path, "systemd/user/gamehostd.service") {
		t.Errorf("UnitPath() = %q, want suffix systemd/user/gamehostd.service", path)
	}
}

func TestWriteUnits(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	if err := WriteUnits("/opt/gamehostd", ""); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"gamehostd.service", "gamehostd.socket"} {
		path := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "systemd", "user", name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestStatusNoSocket(t *testing.T) {
	got := Status(filepath.Join(t.TempDir(), "missing.sock"))
	if !strings.Contains(got, "socket: inactive") {
		t.Errorf("Status() should report inactive socket, got: %s", got)
	}
}

func TestStatusWithSocket(t *testing.T) {
	f, err := os.CreateTemp("", "gamehost-test-*.sock")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	f.Close()

	got := Status(f.Name())
	if !strings.Contains(got, "socket: active") {
		t.Errorf("Status() should report active socket, got: %s", got)
	}
}
