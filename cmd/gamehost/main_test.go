package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modoterra/gamehost/pkg/config"
	"github.com/modoterra/gamehost/pkg/psf"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestConfigValidateCommand(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "gamehost.yaml")
	content := []byte(`version: 1
log_level: debug
games:
  bloodborne:
    exe: /opt/shadps4/shadps4
    args: ["CUSA00900/eboot.bin"]
`)
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "config", "validate", tmp)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "valid (1 games)") {
		t.Errorf("output = %q", out)
	}
}

func TestConfigValidateInvalid(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "bad.yaml")
	content := []byte(`version: 2
games:
  broken: {}
`)
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := execute(t, "config", "validate", tmp); err == nil {
		t.Error("expected validation error")
	}
}

func TestConfigInit(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "gamehost.toml")
	if _, err := execute(t, "config", "init", tmp, "--exe", "/opt/shadps4"); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(tmp)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Games["default"].Exe != "/opt/shadps4" {
		t.Errorf("games = %+v", cfg.Games)
	}

	if _, err := execute(t, "config", "init", tmp); err == nil {
		t.Error("expected error for existing file")
	}
}

func TestVersionCommand(t *testing.T) {
	if _, err := execute(t, "version"); err != nil {
		t.Fatal(err)
	}
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in         string
		begin, end uint32
		wantErr    bool
	}{
		{"3:5", 3, 5, false},
		{"10:", 10, ^uint32(0), false},
		{":4", 0, 4, false},
		{"5:3", 0, 0, true},
		{"7", 0, 0, true},
		{"a:b", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := parseRange(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (r.Begin != tt.begin || r.End != tt.end) {
				t.Errorf("got %+v", r)
			}
		})
	}
}

func TestQueryFlags(t *testing.T) {
	f := queryFlags{levels: []string{"warning", "Error"}, classes: []string{"Render"}, rng: "0:9"}
	q, err := f.query()
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Levels) != 2 || q.Range == nil || q.Range.End != 9 || q.Classes[0] != "Render" {
		t.Errorf("query = %+v", q)
	}

	f.levels = []string{"loud"}
	if _, err := f.query(); err == nil {
		t.Error("expected unknown level error")
	}
}

func TestSpawnRequest(t *testing.T) {
	spawnGame, spawnEnv = "", []string{"A=1"}
	defer func() { spawnEnv = nil }()

	req, err := spawnRequest([]string{"/opt/shadps4", "eboot.bin"})
	if err != nil {
		t.Fatal(err)
	}
	if req.Exe != "/opt/shadps4" || len(req.Args) != 1 || req.Env["A"] != "1" {
		t.Errorf("request = %+v", req)
	}

	if _, err := spawnRequest(nil); err == nil {
		t.Error("expected error without exe or game")
	}
	spawnEnv = []string{"novalue"}
	if _, err := spawnRequest([]string{"x"}); err == nil {
		t.Error("expected env error")
	}
}

func TestPSFShow(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, psf.Magic)
	for _, v := range []uint32{psf.Version11, 0x14 + 0x10, 0x14 + 0x10 + 6, 1} {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	binary.Write(&buf, binary.BigEndian, psf.FormatText)
	for _, v := range []uint32{10, 10, 0} {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	buf.WriteString("TITLE\x00")
	buf.WriteString("Bloodborn\x00")

	path := filepath.Join(t.TempDir(), "param.sfo")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "psf", "show", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "TITLE") || !strings.Contains(out, "Bloodborn") {
		t.Errorf("output = %q", out)
	}
}
