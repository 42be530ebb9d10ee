package logstore

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/modoterra/gamehost/pkg/core"
)

// RowID identifies a stored entry. IDs start at 0, grow by one per insertion
// and are never reused.
type RowID = uint32

// Fallback class labels for lines that carry none.
const (
	ClassUnknown = "UNK"
	ClassStderr  = "STDERR"
)

// Entry is one stored log line. Entries are immutable once added.
type Entry struct {
	Time    time.Time
	Level   core.Level
	Class   ClassID
	Message string
}

// Appended reports the outcome of recording one line.
type Appended struct {
	ID       RowID
	Entry    Entry
	Class    string
	NewClass bool
}

// Row returns the serialized form of the appended entry.
func (a Appended) Row() core.LogRow {
	return core.LogRow{
		RowID:   a.ID,
		Time:    a.Entry.Time,
		Level:   a.Entry.Level,
		Class:   a.Class,
		Message: a.Entry.Message,
	}
}

// Store is an append-only log with a level index and a class intern table.
type Store struct {
	mu      sync.RWMutex
	rows    []Entry // indexed by RowID
	next    RowID
	byLevel map[core.Level][]RowID
	classes internTable
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source for new entries.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		byLevel: make(map[core.Level][]RowID),
		classes: newInternTable(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseEntry classifies line and interns its class. isNewClass is true
// exactly once per distinct class text. ok is false when the line does not
// match the log grammar, in which case nothing is interned.
func (s *Store) ParseEntry(line string) (entry Entry, isNewClass bool, ok bool) {
	class, level, message, ok := Classify(line)
	if !ok {
		return Entry{}, false, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, isNew := s.classes.intern(class)
	return Entry{Time: s.now(), Level: level, Class: id, Message: message}, isNew, true
}

// AddEntry stores e under the next RowID.
func (s *Store) AddEntry(e Entry) RowID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(e)
}

func (s *Store) add(e Entry) RowID {
	if int(s.next) != len(s.rows) {
		panic(fmt.Sprintf("logstore: row id %d collides with %d stored rows", s.next, len(s.rows)))
	}
	if s.next == math.MaxUint32 {
		panic("logstore: row id space exhausted")
	}
	id := s.next
	s.next++
	s.rows = append(s.rows, e)
	s.byLevel[e.Level] = append(s.byLevel[e.Level], id)
	return id
}

// AppendLine classifies and stores one stdout line. Lines outside the log
// grammar are stored as LevelUnknown under the UNK class.
func (s *Store) AppendLine(line string) Appended {
	class, level, message, ok := Classify(line)
	if !ok {
		class, level, message = ClassUnknown, core.LevelUnknown, line
	}
	return s.append(class, level, message)
}

// AppendStderr stores one stderr line as an Error under the STDERR class.
func (s *Store) AppendStderr(line string) Appended {
	return s.append(ClassStderr, core.LevelError, line)
}

func (s *Store) append(class string, level core.Level, message string) Appended {
	s.mu.Lock()
	defer s.mu.Unlock()
	cid, isNew := s.classes.intern(class)
	e := Entry{Time: s.now(), Level: level, Class: cid, Message: message}
	id := s.add(e)
	return Appended{ID: id, Entry: e, Class: class, NewClass: isNew}
}

// Intern registers raw as a class label without storing a row.
func (s *Store) Intern(raw string) (ClassID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classes.intern(raw)
}

// ClassName resolves an interned handle.
func (s *Store) ClassName(id ClassID) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.classes.name(id)
}

// Classes returns every interned class label in discovery order.
func (s *Store) Classes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.classes.names))
	copy(out, s.classes.names)
	return out
}

// Len returns the number of stored rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Get returns the entry stored under id.
func (s *Store) Get(id RowID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(id) >= len(s.rows) {
		return Entry{}, false
	}
	return s.rows[id], true
}

// LevelIndex returns the RowIDs indexed under level, ascending.
func (s *Store) LevelIndex(level core.Level) []RowID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byLevel[level]
	out := make([]RowID, len(ids))
	copy(out, ids)
	return out
}

func (s *Store) row(id RowID) core.LogRow {
	e := s.rows[id]
	return core.LogRow{
		RowID:   id,
		Time:    e.Time,
		Level:   e.Level,
		Class:   s.classes.name(e.Class),
		Message: e.Message,
	}
}
