package core

import "time"

// LogRow is the serialized view of one stored log entry.
type LogRow struct {
	RowID   uint32    `json:"row_id"  cbor:"row_id"`
	Time    time.Time `json:"time"    cbor:"time"`
	Level   Level     `json:"level"   cbor:"level"`
	Class   string    `json:"class"   cbor:"class"`
	Message string    `json:"message" cbor:"message"`
}
