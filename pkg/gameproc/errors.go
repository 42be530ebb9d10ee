package gameproc

import "errors"

var (
	// ErrNotFound means the pid was never spawned here or has been deleted.
	ErrNotFound = errors.New("process not found")
	// ErrChannelClosed means the process exists but its control loop has ended.
	ErrChannelClosed = errors.New("process already stopped")
	// ErrStillRunning is returned when deleting a process that has not exited.
	ErrStillRunning = errors.New("process still running")
	// ErrInvalidPath is returned by Spawn for a missing executable or directory.
	ErrInvalidPath = errors.New("invalid path")
)
