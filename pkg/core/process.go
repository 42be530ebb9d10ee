package core

import "time"

// Status represents the lifecycle state of a supervised process.
type Status string

const (
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusUnknown Status = "unknown"
)

// ProcessInfo describes a supervised process for listings.
type ProcessInfo struct {
	PID          int       `json:"pid"`
	Session      string    `json:"session"`
	Exe          string    `json:"exe"`
	Dir          string    `json:"dir"`
	Args         []string  `json:"args,omitempty"`
	Status       Status    `json:"status"`
	ExitCode     *int      `json:"exit_code,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	Rows         int       `json:"rows"`
	Classes      []string  `json:"classes,omitempty"`
	IPC          bool      `json:"ipc"`
	Capabilities []string  `json:"capabilities,omitempty"`
	CPUPct       float64   `json:"cpu_pct"`
	MemBytes     uint64    `json:"mem_bytes"`
	UptimeSec    uint64    `json:"uptime_sec"`
}
