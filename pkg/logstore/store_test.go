package logstore

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/modoterra/gamehost/pkg/core"
)

func fixedClock() func() time.Time {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var n int
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestParseEntry(t *testing.T) {
	s := New()

	e, isNew, ok := s.ParseEntry("[CORE] <Info> hello")
	if !ok {
		t.Fatal("expected a match")
	}
	if !isNew {
		t.Error("first occurrence of CORE must be new")
	}
	if got := s.ClassName(e.Class); got != "CORE" {
		t.Errorf("class: got %q", got)
	}
	if e.Level != core.LevelInfo || e.Message != "hello" {
		t.Errorf("entry: %+v", e)
	}

	if _, _, ok := s.ParseEntry("not a log line"); ok {
		t.Error("expected no match")
	}
	if s.Len() != 0 {
		t.Error("ParseEntry must not store rows")
	}
}

func TestInterningIdentity(t *testing.T) {
	s := New()

	first, newFirst, _ := s.ParseEntry("[Lib.Pad] <Debug> one")
	second, newSecond, _ := s.ParseEntry("[Lib.Pad] <Error> two")
	other, newOther, _ := s.ParseEntry("[Lib.Net] <Debug> three")

	if !newFirst || newSecond {
		t.Errorf("isNewClass: got %v then %v, want true then false", newFirst, newSecond)
	}
	if first.Class != second.Class {
		t.Errorf("handles differ for equal text: %d vs %d", first.Class, second.Class)
	}
	if !newOther || other.Class == first.Class {
		t.Error("distinct class text must get a new handle")
	}
	if got := s.Classes(); len(got) != 2 || got[0] != "Lib.Pad" || got[1] != "Lib.Net" {
		t.Errorf("classes: %v", got)
	}
}

func TestRowIDsAreSequential(t *testing.T) {
	s := New()
	for i := 0; i < 100; i++ {
		var a Appended
		switch i % 3 {
		case 0:
			a = s.AppendLine(fmt.Sprintf("[C%d] <Info> line %d", i%5, i))
		case 1:
			a = s.AppendStderr(fmt.Sprintf("stderr %d", i))
		default:
			a = s.AppendLine("free-form output")
		}
		if a.ID != RowID(i) {
			t.Fatalf("row %d got id %d", i, a.ID)
		}
	}
	if s.Len() != 100 {
		t.Errorf("len: got %d", s.Len())
	}
}

func TestAddEntry(t *testing.T) {
	s := New()
	cid, _ := s.Intern("CORE")
	id0 := s.AddEntry(Entry{Level: core.LevelInfo, Class: cid, Message: "a"})
	id1 := s.AddEntry(Entry{Level: core.LevelError, Class: cid, Message: "b"})
	if id0 != 0 || id1 != 1 {
		t.Fatalf("ids: %d, %d", id0, id1)
	}
	e, ok := s.Get(1)
	if !ok || e.Message != "b" || e.Level != core.LevelError {
		t.Errorf("get: %+v %v", e, ok)
	}
	if _, ok := s.Get(2); ok {
		t.Error("unexpected row 2")
	}
}

func TestAppendFallbacks(t *testing.T) {
	s := New()

	unk := s.AppendLine("plain text")
	if unk.Class != ClassUnknown || unk.Entry.Level != core.LevelUnknown || unk.Entry.Message != "plain text" {
		t.Errorf("fallback entry: %+v", unk)
	}
	if !unk.NewClass {
		t.Error("first UNK must announce the class")
	}
	if again := s.AppendLine("more text"); again.NewClass {
		t.Error("second UNK must not announce the class")
	}

	errRow := s.AppendStderr("segfault")
	if errRow.Class != ClassStderr || errRow.Entry.Level != core.LevelError {
		t.Errorf("stderr entry: %+v", errRow)
	}
	row := errRow.Row()
	if row.RowID != 2 || row.Class != ClassStderr || row.Message != "segfault" {
		t.Errorf("row: %+v", row)
	}
}

func TestLevelIndexMatchesScan(t *testing.T) {
	s := New()
	lines := []string{
		"[A] <Info> 1", "[B] <Error> 2", "x", "[A] <Info> 3", "[C] <Critical> 4",
		"[A] <Trace> 5", "[B] <Error> 6", "[B] <Bogus> 7", "[A] <Debug> 8", "[A] <Warning> 9",
	}
	for _, l := range lines {
		s.AppendLine(l)
	}
	s.AppendStderr("oops")

	for _, level := range core.AllLevels {
		var scanned []RowID
		for id := 0; id < s.Len(); id++ {
			e, _ := s.Get(RowID(id))
			if e.Level == level {
				scanned = append(scanned, RowID(id))
			}
		}
		indexed := s.LevelIndex(level)
		if fmt.Sprint(indexed) != fmt.Sprint(scanned) {
			t.Errorf("level %v: index %v, scan %v", level, indexed, scanned)
		}
	}
}

func TestWithClock(t *testing.T) {
	s := New(WithClock(fixedClock()))
	a := s.AppendLine("[A] <Info> x")
	b := s.AppendLine("[A] <Info> y")
	if !b.Entry.Time.After(a.Entry.Time) {
		t.Errorf("times: %v then %v", a.Entry.Time, b.Entry.Time)
	}
}

func TestConcurrentAppends(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.AppendLine(fmt.Sprintf("[W%d] <Info> %d", w, i))
			}
		}(w)
	}
	wg.Wait()

	if s.Len() != 400 {
		t.Fatalf("len: got %d", s.Len())
	}
	if len(s.Classes()) != 8 {
		t.Errorf("classes: got %d", len(s.Classes()))
	}
	if len(s.LevelIndex(core.LevelInfo)) != 400 {
		t.Error("level index incomplete")
	}
}
