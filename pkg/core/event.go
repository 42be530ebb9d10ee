package core

// EventKind tags a GameEvent.
type EventKind string

const (
	EventLog         EventKind = "log"
	EventAddLogClass EventKind = "addLogClass"
	EventGameExit    EventKind = "gameExit"
	EventIOError     EventKind = "ioError"
	EventIPCLine     EventKind = "ipcLine"
)

// Event is a notification pushed for one supervised process. Which payload
// field is set depends on Kind:
//
//	log          Row
//	addLogClass  Value (class name)
//	ipcLine      Value (line without the IPC marker)
//	gameExit     Status
//	ioError      Err
type Event struct {
	PID    int       `json:"pid"`
	Kind   EventKind `json:"event"`
	Row    *LogRow   `json:"row,omitempty"`
	Value  string    `json:"value,omitempty"`
	Status *int      `json:"status,omitempty"`
	Err    string    `json:"err,omitempty"`
}

func LogEvent(pid int, row LogRow) Event {
	return Event{PID: pid, Kind: EventLog, Row: &row}
}

func AddLogClassEvent(pid int, class string) Event {
	return Event{PID: pid, Kind: EventAddLogClass, Value: class}
}

func IPCLineEvent(pid int, line string) Event {
	return Event{PID: pid, Kind: EventIPCLine, Value: line}
}

func GameExitEvent(pid, status int) Event {
	return Event{PID: pid, Kind: EventGameExit, Status: &status}
}

func IOErrorEvent(pid int, err error) Event {
	return Event{PID: pid, Kind: EventIOError, Err: err.Error()}
}

// EventSink receives events in emission order. Emit is called from the
// process's control loop and must not block for long.
type EventSink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// Sinks fans one event out to several sinks in order.
type Sinks []EventSink

func (s Sinks) Emit(ev Event) {
	for _, sink := range s {
		sink.Emit(ev)
	}
}
