package daemon

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modoterra/gamehost/pkg/config"
	"github.com/modoterra/gamehost/pkg/core"
	"github.com/modoterra/gamehost/pkg/gameproc"
	"github.com/modoterra/gamehost/pkg/logstore"
	"github.com/modoterra/gamehost/pkg/psf"
	"github.com/modoterra/gamehost/pkg/transport/uds"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := config.Default()
	cfg.Socket = filepath.Join(t.TempDir(), "gamehost.sock")
	d := New(cfg, gameproc.NewRegistry(logger), logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		d.registry.Shutdown(ctx)
	})
	return d
}

func makeMsg(t *testing.T, req any) uds.Message {
	t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	return uds.Message{Data: data}
}

func spawn(t *testing.T, d *Daemon, req uds.SpawnRequest) *gameproc.Process {
	t.Helper()
	res, err := d.handleSpawn(context.Background(), makeMsg(t, req))
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	p, err := d.registry.Get(res.(uds.SpawnResponse).PID)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func waitDone(t *testing.T, p *gameproc.Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("pid %d did not finish", p.PID())
	}
}

func tenLines() uds.SpawnRequest {
	return uds.SpawnRequest{Exe: "/bin/sh", Args: []string{"-c", `for i in 0 1 2 3 4 5 6 7 8 9; do echo "[Loop] <Info> row $i"; done`}}
}

func TestSpawnAndGetLogRange(t *testing.T) {
	d := newTestDaemon(t)
	p := spawn(t, d, tenLines())
	waitDone(t, p)

	req := uds.GetLogRequest{PID: p.PID(), Query: logstore.Query{Range: &logstore.Range{Begin: 3, End: 5}}}
	res, err := d.handleGetLog(context.Background(), makeMsg(t, req))
	if err != nil {
		t.Fatal(err)
	}
	rows := res.([]core.LogRow)
	if len(rows) != 3 {
		t.Fatalf("rows: %+v", rows)
	}
	for i, r := range rows {
		if r.RowID != uint32(3+i) {
			t.Errorf("row %d has id %d", i, r.RowID)
		}
	}
	if rows[0].Message != "row 3" || rows[0].Class != "Loop" {
		t.Errorf("first row: %+v", rows[0])
	}
}

func TestLookupErrors(t *testing.T) {
	d := newTestDaemon(t)
	missing := uds.PIDRequest{PID: 1 << 30}
	ctx := context.Background()

	handlers := map[string]func(context.Context, uds.Message) (any, error){
		"kill":    d.handleKill,
		"delete":  d.handleDelete,
		"classes": d.handleGetClasses,
		"process": d.handleGetProcess,
		"log":     d.handleGetLog,
	}
	for name, h := range handlers {
		if _, err := h(ctx, makeMsg(t, missing)); !errors.Is(err, gameproc.ErrNotFound) {
			t.Errorf("%s: got %v, want ErrNotFound", name, err)
		}
	}
	send := uds.SendRequest{PID: 1 << 30, Text: "x"}
	if _, err := d.handleSend(ctx, makeMsg(t, send)); !errors.Is(err, gameproc.ErrNotFound) {
		t.Errorf("send: got %v", err)
	}
	if _, err := d.handleKill(ctx, uds.Message{}); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestKillSendDelete(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()
	p := spawn(t, d, uds.SpawnRequest{Exe: "cat"})
	pid := uds.PIDRequest{PID: p.PID()}

	if _, err := d.handleSend(ctx, makeMsg(t, uds.SendRequest{PID: p.PID(), Text: "[Pad] <Info> press"})); err != nil {
		t.Fatal(err)
	}
	if _, err := d.handleDelete(ctx, makeMsg(t, pid)); !errors.Is(err, gameproc.ErrStillRunning) {
		t.Errorf("delete live: %v", err)
	}
	if _, err := d.handleKill(ctx, makeMsg(t, pid)); err != nil {
		t.Fatal(err)
	}
	waitDone(t, p)

	if _, err := d.handleKill(ctx, makeMsg(t, pid)); err != nil {
		t.Errorf("second kill: %v", err)
	}
	_, err := d.handleSend(ctx, makeMsg(t, uds.SendRequest{PID: p.PID(), Text: "late"}))
	if !errors.Is(err, gameproc.ErrChannelClosed) {
		t.Errorf("send after exit: %v", err)
	}

	res, err := d.handleGetProcess(ctx, makeMsg(t, pid))
	if err != nil {
		t.Fatal(err)
	}
	if info := res.(core.ProcessInfo); info.Status != core.StatusExited {
		t.Errorf("status: %v", info.Status)
	}

	if _, err := d.handleDelete(ctx, makeMsg(t, pid)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := d.handleGetLog(ctx, makeMsg(t, uds.GetLogRequest{PID: p.PID()})); !errors.Is(err, gameproc.ErrNotFound) {
		t.Errorf("log after delete: %v", err)
	}
}

func TestSpawnGameProfile(t *testing.T) {
	d := newTestDaemon(t)
	d.Config().Games["echo"] = config.Game{
		Exe:  "/bin/sh",
		Args: []string{"-c", `echo "[Boot] <Info> $TITLE"`},
		Env:  map[string]string{"TITLE": "from-profile"},
	}

	p := spawn(t, d, uds.SpawnRequest{Game: "echo", Env: map[string]string{"TITLE": "override"}})
	waitDone(t, p)
	e, ok := p.Data().Log.Get(0)
	if !ok || e.Message != "override" {
		t.Errorf("row: %+v", e)
	}

	if _, err := d.handleSpawn(context.Background(), makeMsg(t, uds.SpawnRequest{Game: "missing"})); err == nil {
		t.Error("expected unknown game error")
	}
	_, err := d.handleSpawn(context.Background(), makeMsg(t, uds.SpawnRequest{Exe: "/nonexistent/shadps4"}))
	if !errors.Is(err, gameproc.ErrInvalidPath) {
		t.Errorf("bad exe: %v", err)
	}
}

func TestAutoRunAfterHandshake(t *testing.T) {
	d := newTestDaemon(t)
	d.Config().IPC.AutoRun = true

	script := `echo ";#IPC_ENABLED" >&2; echo ";ENABLE_MEMORY_PATCH" >&2; echo ";#IPC_END" >&2; read cmd; echo "[IPC] <Info> got $cmd"`
	p := spawn(t, d, uds.SpawnRequest{Exe: "/bin/sh", Args: []string{"-c", script}})
	waitDone(t, p)

	e, ok := p.Data().Log.Get(0)
	if !ok || e.Message != "got RUN" {
		t.Errorf("row: %+v %v", e, ok)
	}
	if caps := p.Info().Capabilities; len(caps) != 1 || caps[0] != "ENABLE_MEMORY_PATCH" {
		t.Errorf("capabilities: %v", caps)
	}
}

func TestExportLog(t *testing.T) {
	d := newTestDaemon(t)
	p := spawn(t, d, tenLines())
	waitDone(t, p)

	path := filepath.Join(t.TempDir(), "run.log")
	req := uds.ExportLogRequest{
		GetLogRequest: uds.GetLogRequest{PID: p.PID(), Query: logstore.Query{Filter: `message.endsWith("7")`}},
		Path:          path,
	}
	res, err := d.handleExportLog(context.Background(), makeMsg(t, req))
	if err != nil {
		t.Fatal(err)
	}
	if r := res.(uds.ExportLogResponse); r.Rows != 1 || r.Format != "text" {
		t.Errorf("response: %+v", r)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(strings.TrimSpace(string(data)), "[Loop] <Info> row 7") {
		t.Errorf("exported: %q", data)
	}

	req.Path = "relative.log"
	if _, err := d.handleExportLog(context.Background(), makeMsg(t, req)); !errors.Is(err, gameproc.ErrInvalidPath) {
		t.Errorf("relative path: %v", err)
	}
	req.Path = path
	req.Format = "xml"
	if _, err := d.handleExportLog(context.Background(), makeMsg(t, req)); err == nil {
		t.Error("expected format error")
	}
}

func TestGetClassesAndList(t *testing.T) {
	d := newTestDaemon(t)
	p := spawn(t, d, uds.SpawnRequest{Exe: "/bin/sh", Args: []string{"-c", `echo "[A] <Info> x"; echo "[B] <Info> y"; echo err >&2`}})
	waitDone(t, p)

	res, err := d.handleGetClasses(context.Background(), makeMsg(t, uds.PIDRequest{PID: p.PID()}))
	if err != nil {
		t.Fatal(err)
	}
	classes := strings.Join(res.([]string), ",")
	for _, c := range []string{"A", "B", "STDERR"} {
		if !strings.Contains(classes, c) {
			t.Errorf("classes %q missing %s", classes, c)
		}
	}

	res, err = d.handleListProcesses(context.Background(), uds.Message{})
	if err != nil {
		t.Fatal(err)
	}
	list := res.([]core.ProcessInfo)
	if len(list) != 1 || list[0].PID != p.PID() || list[0].Rows != 3 {
		t.Errorf("list: %+v", list)
	}
}

func TestDecodePSF(t *testing.T) {
	d := newTestDaemon(t)

	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, psf.Magic)
	for _, v := range []uint32{psf.Version11, 0x14 + 0x10, 0x14 + 0x10 + 8, 1} {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	binary.Write(&buf, binary.BigEndian, psf.FormatInteger)
	for _, v := range []uint32{4, 4, 0} {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	buf.WriteString("VERSION\x00")
	binary.Write(&buf, binary.LittleEndian, int32(42))

	path := filepath.Join(t.TempDir(), "param.sfo")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := d.handleDecodePSF(context.Background(), makeMsg(t, uds.DecodePSFRequest{Path: path}))
	if err != nil {
		t.Fatal(err)
	}
	doc := res.(*psf.Document)
	if v := doc.Entries["VERSION"]; v.Kind != psf.KindInteger || v.Integer != 42 {
		t.Errorf("VERSION: %+v", v)
	}
	if doc.LastWrite.IsZero() {
		t.Error("last write not recorded")
	}

	if _, err := d.handleDecodePSF(context.Background(), makeMsg(t, uds.DecodePSFRequest{})); err == nil {
		t.Error("expected error for empty path")
	}
}
