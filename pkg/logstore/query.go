package logstore

import (
	"slices"

	"github.com/modoterra/gamehost/pkg/core"
)

// Range selects rows whose RowID lies in [Begin, End].
type Range struct {
	Begin RowID `json:"begin" yaml:"begin"`
	End   RowID `json:"end"   yaml:"end"`
}

// Query filters stored rows. Empty fields select everything.
type Query struct {
	Levels  []core.Level `json:"levels,omitempty"`
	Classes []string     `json:"classes,omitempty"`
	Range   *Range       `json:"range,omitempty"`
	Filter  string       `json:"filter,omitempty"` // CEL expression, see CompileFilter
}

// Query returns matching rows in ascending RowID order.
func (s *Store) Query(q Query) ([]core.LogRow, error) {
	filter, err := CompileFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var classSet map[ClassID]struct{}
	if len(q.Classes) > 0 {
		classSet = make(map[ClassID]struct{}, len(q.Classes))
		for _, name := range q.Classes {
			if id, ok := s.classes.lookup(name); ok {
				classSet[id] = struct{}{}
			}
		}
		if len(classSet) == 0 {
			return []core.LogRow{}, nil
		}
	}

	rows := []core.LogRow{}
	visit := func(id RowID) {
		if classSet != nil {
			if _, ok := classSet[s.rows[id].Class]; !ok {
				return
			}
		}
		row := s.row(id)
		if filter != nil && !filter.Match(row) {
			return
		}
		rows = append(rows, row)
	}

	if len(q.Levels) > 0 {
		for _, id := range s.levelCandidates(q.Levels) {
			if q.Range != nil && (id < q.Range.Begin || id > q.Range.End) {
				continue
			}
			visit(id)
		}
		return rows, nil
	}

	if len(s.rows) == 0 {
		return rows, nil
	}
	begin, end := RowID(0), RowID(len(s.rows)-1)
	if q.Range != nil {
		if q.Range.Begin > q.Range.End || q.Range.Begin > end {
			return rows, nil
		}
		begin = q.Range.Begin
		end = min(end, q.Range.End)
	}
	for id := begin; ; id++ {
		visit(id)
		if id == end {
			break
		}
	}
	return rows, nil
}

// levelCandidates merges the level index sets into one ascending list.
func (s *Store) levelCandidates(levels []core.Level) []RowID {
	seen := make(map[core.Level]bool, len(levels))
	var ids []RowID
	for _, level := range levels {
		if seen[level] {
			continue
		}
		seen[level] = true
		ids = append(ids, s.byLevel[level]...)
	}
	if len(seen) > 1 {
		slices.Sort(ids)
	}
	return ids
}
