package uds

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/modoterra/gamehost/pkg/core"
	"github.com/modoterra/gamehost/pkg/logstore"
)

var reqCounter atomic.Uint64

// MsgType identifies the kind of message.
type MsgType string

const (
	MsgTypeReq MsgType = "req"
	MsgTypeRes MsgType = "res"
	MsgTypeEvt MsgType = "evt"
)

// Message is the NDJSON envelope for all communication.
type Message struct {
	Type   MsgType         `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// UnmarshalData decodes the message payload into v.
func (m Message) UnmarshalData(v any) error {
	if len(m.Data) == 0 {
		return errors.New("empty message data")
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s data: %w", m.Method, err)
	}
	return nil
}

func marshalData(data any) (json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	return json.Marshal(data)
}

// NewRequest creates a new request message with a unique ID.
func NewRequest(method string, data any) (Message, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeReq,
		ID:     fmt.Sprintf("req-%d", reqCounter.Add(1)),
		Method: method,
		Data:   raw,
	}, nil
}

// NewResponse creates a response to a request.
func NewResponse(reqID, method string, data any) (Message, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeRes,
		ID:     reqID,
		Method: method,
		Data:   raw,
	}, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(reqID, method, errMsg string) Message {
	return Message{
		Type:   MsgTypeRes,
		ID:     reqID,
		Method: method,
		Error:  errMsg,
	}
}

// NewEvent creates a server-pushed event.
func NewEvent(method string, data any) (Message, error) {
	raw, err := marshalData(data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		Type:   MsgTypeEvt,
		ID:     fmt.Sprintf("evt-%d", reqCounter.Add(1)),
		Method: method,
		Data:   raw,
	}, nil
}

// Methods
const (
	MethodPing          = "Ping"
	MethodSpawn         = "Spawn"
	MethodKill          = "Kill"
	MethodSend          = "Send"
	MethodDelete        = "Delete"
	MethodGetLog        = "GetLog"
	MethodExportLog     = "ExportLog"
	MethodGetClasses    = "GetClasses"
	MethodListProcesses = "ListProcesses"
	MethodGetProcess    = "GetProcess"
	MethodDecodePSF     = "DecodePSF"

	EventProcess        = "process.event"
	EventProcessesDelta = "processes.delta"
)

// PingResponse is the response to a Ping request.
type PingResponse struct {
	Pong    bool   `json:"pong"`
	Version string `json:"version,omitempty"`
}

// SpawnRequest starts a child. Game names a configured profile; explicit
// fields override it.
type SpawnRequest struct {
	Game     string            `json:"game,omitempty"`
	Exe      string            `json:"exe,omitempty"`
	Dir      string            `json:"dir,omitempty"`
	Args     []string          `json:"args,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	CopyFrom int               `json:"copy_data_from_pid,omitempty"`
}

// SpawnResponse carries the new child's pid.
type SpawnResponse struct {
	PID     int    `json:"pid"`
	Session string `json:"session"`
}

// PIDRequest addresses one process.
type PIDRequest struct {
	PID int `json:"pid"`
}

// SendRequest writes one line to a child's stdin.
type SendRequest struct {
	PID  int    `json:"pid"`
	Text string `json:"text"`
}

// GetLogRequest filters a process log.
type GetLogRequest struct {
	PID int `json:"pid"`
	logstore.Query
}

// ExportLogRequest writes a filtered process log to a file on the daemon's
// host. Format defaults to the one implied by Path.
type ExportLogRequest struct {
	GetLogRequest
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
}

// ExportLogResponse reports what was written.
type ExportLogResponse struct {
	Path   string `json:"path"`
	Format string `json:"format"`
	Rows   int    `json:"rows"`
}

// DecodePSFRequest names a parameter file.
type DecodePSFRequest struct {
	Path string `json:"path"`
}

// ProcessesDelta is the payload of EventProcessesDelta.
type ProcessesDelta struct {
	Added   []core.ProcessInfo `json:"added,omitempty"`
	Updated []core.ProcessInfo `json:"updated,omitempty"`
	Removed []int              `json:"removed,omitempty"`
}
