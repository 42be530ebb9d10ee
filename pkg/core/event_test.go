package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestGameExitEventKeepsZeroStatus(t *testing.T) {
	data, err := json.Marshal(GameExitEvent(42, 0))
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.Contains(got, `"event":"gameExit"`) {
		t.Errorf("missing event tag: %s", got)
	}
	if !strings.Contains(got, `"status":0`) {
		t.Errorf("zero status dropped: %s", got)
	}
}

func TestLogEventShape(t *testing.T) {
	ev := LogEvent(7, LogRow{RowID: 3, Level: LevelWarning, Class: "CORE", Message: "hi"})
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	var back Event
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Kind != EventLog || back.PID != 7 || back.Row == nil {
		t.Fatalf("round trip: %+v", back)
	}
	if back.Row.RowID != 3 || back.Row.Level != LevelWarning || back.Row.Class != "CORE" {
		t.Errorf("row: %+v", back.Row)
	}
	if back.Status != nil {
		t.Error("log event must not carry a status")
	}
}

func TestSinks(t *testing.T) {
	var got []string
	sinks := Sinks{
		SinkFunc(func(ev Event) { got = append(got, "a:"+string(ev.Kind)) }),
		SinkFunc(func(ev Event) { got = append(got, "b:"+string(ev.Kind)) }),
	}
	sinks.Emit(IOErrorEvent(1, errors.New("boom")))
	if strings.Join(got, ",") != "a:ioError,b:ioError" {
		t.Errorf("fan-out order: %v", got)
	}
}
