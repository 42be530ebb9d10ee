package model

import (
	"encoding/json"
	"testing"

	"github.com/modoterra/gamehost/pkg/core"
	"github.com/modoterra/gamehost/pkg/transport/uds"
)

func TestApplyDelta(t *testing.T) {
	procs := []core.ProcessInfo{{PID: 1}, {PID: 5, Rows: 1}}
	delta := uds.ProcessesDelta{
		Added:   []core.ProcessInfo{{PID: 3}},
		Updated: []core.ProcessInfo{{PID: 5, Rows: 9}},
		Removed: []int{1},
	}
	got := applyDelta(procs, delta)
	if len(got) != 2 || got[0].PID != 3 || got[1].PID != 5 || got[1].Rows != 9 {
		t.Errorf("applyDelta = %+v", got)
	}
}

func TestApplyEvent_LogForSelected(t *testing.T) {
	a := New("/nonexistent.sock")
	a.logPID = 7

	push := func(ev core.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			t.Fatal(err)
		}
		a = a.applyEvent(uds.Message{Type: uds.MsgTypeEvt, Method: uds.EventProcess, Data: data})
	}
	push(core.LogEvent(7, core.LogRow{RowID: 0, Level: core.LevelInfo, Class: "Core", Message: "boot"}))
	push(core.LogEvent(8, core.LogRow{RowID: 0, Message: "other"}))
	push(core.GameExitEvent(7, 2))

	if len(a.logRows) != 1 || a.logRows[0].Message != "boot" {
		t.Errorf("logRows = %+v", a.logRows)
	}
	if a.statusMsg != "pid 7 exited with status 2" {
		t.Errorf("statusMsg = %q", a.statusMsg)
	}
}

func TestVisibleRows(t *testing.T) {
	a := New("/nonexistent.sock")
	a.logRows = []core.LogRow{
		{Level: core.LevelDebug}, {Level: core.LevelInfo}, {Level: core.LevelWarning}, {Level: core.LevelError},
	}
	tests := []struct {
		step int
		want int
	}{
		{0, 4},
		{1, 3},
		{2, 2},
		{3, 1},
	}
	for _, tt := range tests {
		a.minLevel = tt.step
		if got := len(a.visibleRows()); got != tt.want {
			t.Errorf("step %d: got %d rows, want %d", tt.step, got, tt.want)
		}
	}
}

func TestEditorRequest(t *testing.T) {
	e := NewEditorForProcess(core.ProcessInfo{PID: 42, Exe: "/opt/shadps4", Args: []string{"eboot.bin"}})
	e.fields[4].Input.SetValue("A=1 B=2")

	req, err := e.Request()
	if err != nil {
		t.Fatal(err)
	}
	if req.Exe != "/opt/shadps4" || req.CopyFrom != 42 || len(req.Args) != 1 || req.Env["B"] != "2" {
		t.Errorf("request = %+v", req)
	}

	e.fields[4].Input.SetValue("broken")
	if _, err := e.Request(); err == nil {
		t.Error("expected env error")
	}
	if _, err := NewEditorForNew().Request(); err == nil {
		t.Error("expected error for empty form")
	}
}
