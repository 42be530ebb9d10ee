package logstore

// ClassID is the stable handle of an interned class label. Equal class text
// always maps to the same ClassID within one Store.
type ClassID uint32

type internTable struct {
	ids   map[string]ClassID
	names []string
}

func newInternTable() internTable {
	return internTable{ids: make(map[string]ClassID)}
}

// intern returns the handle for raw, registering it on first sight.
func (t *internTable) intern(raw string) (ClassID, bool) {
	if id, ok := t.ids[raw]; ok {
		return id, false
	}
	id := ClassID(len(t.names))
	t.names = append(t.names, raw)
	t.ids[raw] = id
	return id, true
}

func (t *internTable) lookup(raw string) (ClassID, bool) {
	id, ok := t.ids[raw]
	return id, ok
}

func (t *internTable) name(id ClassID) string {
	if int(id) < len(t.names) {
		return t.names[id]
	}
	return ""
}
