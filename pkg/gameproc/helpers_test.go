package gameproc

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/modoterra/gamehost/pkg/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recorder) Emit(ev core.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) kinds() []core.EventKind {
	var out []core.EventKind
	for _, ev := range r.snapshot() {
		out = append(out, ev.Kind)
	}
	return out
}

func sh(script string) SpawnOptions {
	return SpawnOptions{Exe: "/bin/sh", Args: []string{"-c", script}}
}

func waitDone(t *testing.T, p *Process) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(10 * time.Second):
		t.Fatalf("pid %d did not finish", p.PID())
	}
}

// waitRows polls until the process log holds n rows.
func waitRows(t *testing.T, p *Process, n int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for p.Data().Log.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("pid %d: got %d rows, want %d", p.PID(), p.Data().Log.Len(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// assertExitLast checks the shutdown ordering: at most one ioError, then
// exactly one gameExit as the final event.
func assertExitLast(t *testing.T, events []core.Event) core.Event {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events")
	}
	last := events[len(events)-1]
	if last.Kind != core.EventGameExit || last.Status == nil {
		t.Fatalf("last event: %+v", last)
	}
	exits, ioErrs := 0, 0
	for i, ev := range events {
		switch ev.Kind {
		case core.EventGameExit:
			exits++
		case core.EventIOError:
			ioErrs++
			if i != len(events)-2 {
				t.Errorf("ioError at %d of %d", i, len(events))
			}
		}
	}
	if exits != 1 || ioErrs > 1 {
		t.Errorf("gameExit x%d, ioError x%d", exits, ioErrs)
	}
	return last
}
